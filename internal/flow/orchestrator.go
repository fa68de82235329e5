package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"gold-trading-insight/internal/domain/model"
	"gold-trading-insight/internal/domain/ports/adapter"
	"gold-trading-insight/internal/domain/ports/repository"
	"gold-trading-insight/internal/infra/logging"
	"gold-trading-insight/internal/infra/metrics"
)

// Substituted when the nested data-analysis run fails: marketing must
// not be blocked by an analysis failure.
const fallbackAnalysisSummary = `## 数据分析简要结果

### 用户分析
- 高价值用户群体: 45-60岁男性，高频交易者
- 稳定用户群体: 35-45岁，定期小额交易
- 新兴用户群体: 25-35岁，科技偏好高，移动端操作

### 交易行为
- 交易高峰: 工作日10:00-15:00
- 客单价: 平均¥5,500
- 频次: 每用户每月2.3次`

// Request describes one flow invocation.
type Request struct {
	JobID          string
	FlowType       model.FlowType
	Query          string
	UserID         string
	ConversationID string
}

// Orchestrator routes a classified query through the right pipeline(s)
// and composes partial failures into a combined result. Every failure
// kind is recovered here into a chat-shaped reply: callers always get
// text plus a terminal status, never an error.
type Orchestrator struct {
	progress   repository.ProgressStore
	history    repository.HistoryStore
	ai         adapter.ModelClient
	classifier *Classifier

	analysisSteps  []Step
	marketingSteps []Step

	log *zerolog.Logger
}

func NewOrchestrator(
	progress repository.ProgressStore,
	history repository.HistoryStore,
	ai adapter.ModelClient,
	classifier *Classifier,
	analysisSteps []Step,
	marketingSteps []Step,
	log *zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		progress:       progress,
		history:        history,
		ai:             ai,
		classifier:     classifier,
		analysisSteps:  analysisSteps,
		marketingSteps: marketingSteps,
		log:            log,
	}
}

// Execute runs the requested flow to a terminal state and returns the
// assistant-visible text plus the flow type that actually ran, which
// may differ from the requested one after classification. When a
// conversation id is supplied the text is appended to its history
// exactly once, whichever branch ran.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (string, model.FlowType, model.JobStatus) {
	if req.ConversationID != "" {
		ctx = logging.WithConversationID(ctx, req.ConversationID)
	}
	ctx = logging.WithJobID(ctx, req.JobID)
	log := logging.With(ctx, o.log)

	flowType := req.FlowType
	// An explicit marketing or complete request always wins; only the
	// default and auto routes consult the classifier.
	if flowType == model.FlowDataAnalysis || flowType == model.FlowAuto {
		if classified := o.classifier.Classify(ctx, req.Query); classified != flowType {
			log.Info().Str("from", string(flowType)).Str("to", string(classified)).
				Msg("flow escalated by classifier")
			flowType = classified
		}
	}

	historyText := o.historyText(ctx, req.ConversationID)

	if err := o.progress.Save(ctx, req.JobID, model.JobRecord{
		Progress:      model.ProgressCreated,
		CurrentOutput: fmt.Sprintf("准备执行%s流程", flowType),
		Status:        model.JobStatusStarted,
	}); err != nil {
		log.Warn().Err(err).Msg("could not record job start")
	}

	var result string
	var status model.JobStatus
	switch flowType {
	case model.FlowDataAnalysis:
		if len(o.analysisSteps) == 0 {
			result, status = o.runDirect(ctx, req, flowType, historyText)
			break
		}
		result, status = o.runDataAnalysis(ctx, req, historyText)
	case model.FlowMarketing:
		if len(o.marketingSteps) == 0 {
			result, status = o.runDirect(ctx, req, flowType, historyText)
			break
		}
		result, status = o.runMarketing(ctx, req, historyText)
	case model.FlowComplete:
		if len(o.analysisSteps) == 0 || len(o.marketingSteps) == 0 {
			result, status = o.runDirect(ctx, req, flowType, historyText)
			break
		}
		result, status = o.runComplete(ctx, req, historyText)
	default:
		result, status = o.runDirect(ctx, req, flowType, historyText)
	}
	metrics.IncFlowExecuted(string(flowType), string(status))

	if req.ConversationID != "" {
		if err := o.history.Append(ctx, req.ConversationID, "assistant", result); err != nil {
			log.Warn().Err(err).Msg("could not append assistant reply to history")
		}
	}
	return result, flowType, status
}

func (o *Orchestrator) runDataAnalysis(ctx context.Context, req Request, historyText string) (string, model.JobStatus) {
	pl := NewPipeline("data_analysis", o.analysisSteps, o.progress, o.log)
	rendered, err := pl.Execute(ctx, req.JobID, NewContext(req.Query, historyText), "")
	if err != nil {
		return o.fail(ctx, req.JobID, err)
	}
	return rendered, model.JobStatusCompleted
}

func (o *Orchestrator) runMarketing(ctx context.Context, req Request, historyText string) (string, model.JobStatus) {
	analysis := o.analysisInput(ctx, req.Query, historyText)

	fc := NewContext(req.Query, historyText)
	fc.Analysis = analysis
	pl := NewPipeline("marketing", o.marketingSteps, o.progress, o.log)
	rendered, err := pl.Execute(ctx, req.JobID, fc, "")
	if err != nil {
		return o.fail(ctx, req.JobID, err)
	}
	return rendered, model.JobStatusCompleted
}

func (o *Orchestrator) runComplete(ctx context.Context, req Request, historyText string) (string, model.JobStatus) {
	log := logging.With(ctx, o.log)

	// First half: data analysis, scaled into the lower progress range.
	apl := NewPipeline("data_analysis", o.analysisSteps, o.progress, o.log).Scaled(0, 50)
	analysisText, aerr := apl.Execute(ctx, req.JobID, NewContext(req.Query, historyText), "")
	rendered := analysisText
	analysisOK := aerr == nil
	if aerr != nil {
		// Degraded continuation: marketing proceeds on the fallback summary.
		log.Warn().Err(aerr).Msg("data analysis failed, continuing with fallback summary")
		analysisText = fallbackAnalysisSummary
		if rendered != "" {
			rendered += "\n\n"
		}
		rendered += "数据分析失败，使用简化分析结果继续...\n\n" + fallbackAnalysisSummary
	}
	if rendered != "" {
		rendered += "\n\n"
	}
	rendered += "数据分析完成，开始营销战略制定..."
	if err := o.progress.UpdateProgress(ctx, req.JobID, 50, rendered); err != nil {
		log.Warn().Err(err).Msg("progress update failed")
	}

	// Second half: marketing on top of the analysis result. The
	// pipeline inserts the separator after a non-empty prefix itself.
	fc := NewContext(req.Query, historyText)
	fc.Analysis = analysisText
	mpl := NewPipeline("marketing", o.marketingSteps, o.progress, o.log).Scaled(50, 45)
	mrendered, merr := mpl.Execute(ctx, req.JobID, fc, rendered)
	if merr != nil {
		if !analysisOK {
			// Nothing usable survived from either half.
			return o.fail(ctx, req.JobID, merr)
		}
		// Partial success is a first-class terminal state, distinct
		// from total failure.
		combined := combineSections(analysisText, "营销战略生成失败: "+merr.Error())
		if err := o.progress.Save(ctx, req.JobID, model.JobRecord{
			Progress:      model.ProgressPartial,
			CurrentOutput: combined,
			Status:        model.JobStatusPartialComplete,
		}); err != nil {
			log.Warn().Err(err).Msg("could not record partial completion")
		}
		return combined, model.JobStatusPartialComplete
	}

	combined := combineSections(analysisText, strings.TrimPrefix(mrendered, rendered+"\n\n"))
	if err := o.progress.UpdateProgress(ctx, req.JobID, model.ProgressDone, combined); err != nil {
		log.Warn().Err(err).Msg("final progress update failed")
	}
	return combined, model.JobStatusCompleted
}

// runDirect answers with a single model completion. It serves both
// conversational queries that fit no pipeline and known flow types
// whose pipeline carries no steps.
func (o *Orchestrator) runDirect(ctx context.Context, req Request, flowType model.FlowType, historyText string) (string, model.JobStatus) {
	log := logging.With(ctx, o.log)
	prompt := buildDirectPrompt(flowType, req.Query, historyText)
	msgs := []adapter.Message{{Role: "user", Content: prompt}}
	if n, err := o.ai.CountTokens(ctx, msgs); err == nil {
		log.Debug().Int("prompt_tokens", n).Msg("direct completion")
	}
	text, err := o.ai.Complete(ctx, msgs)
	if err != nil {
		return o.fail(ctx, req.JobID, err)
	}
	if err := o.progress.UpdateProgress(ctx, req.JobID, model.ProgressDone, text); err != nil {
		log.Warn().Err(err).Msg("final progress update failed")
	}
	return text, model.JobStatusCompleted
}

// fail records the terminal error state and converts the failure into a
// chat-shaped reply.
func (o *Orchestrator) fail(ctx context.Context, jobID string, cause error) (string, model.JobStatus) {
	msg := fmt.Sprintf("处理您的请求时出现错误: %v", cause)
	if err := o.progress.Save(ctx, jobID, model.JobRecord{
		Progress:      model.ProgressFailed,
		CurrentOutput: msg,
		Status:        model.JobStatusError,
	}); err != nil {
		logging.With(ctx, o.log).Warn().Err(err).Msg("could not record job failure")
	}
	return msg, model.JobStatusError
}

// analysisInput obtains a data-analysis result for the marketing flow.
// The nested run reports progress under a throwaway job key; its
// failure, or an empty analysis pipeline, degrades to the fixed
// fallback summary.
func (o *Orchestrator) analysisInput(ctx context.Context, query, historyText string) string {
	if len(o.analysisSteps) == 0 {
		return fallbackAnalysisSummary
	}
	tempJobID := "temp_" + ulid.Make().String()
	pl := NewPipeline("data_analysis", o.analysisSteps, o.progress, o.log)
	rendered, err := pl.Execute(ctx, tempJobID, NewContext(query, historyText), "")
	if err != nil {
		logging.With(ctx, o.log).Warn().Err(err).Msg("nested data analysis failed, using fallback summary")
		return fallbackAnalysisSummary
	}
	return rendered
}

func (o *Orchestrator) historyText(ctx context.Context, conversationID string) string {
	if conversationID == "" {
		return ""
	}
	msgs, err := o.history.History(ctx, conversationID)
	if err != nil {
		logging.With(ctx, o.log).Warn().Err(err).Msg("could not load history")
		return ""
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, m.Role+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

func combineSections(analysis, marketing string) string {
	return fmt.Sprintf(
		"# 黄金交易平台完整分析\n\n## 第一部分：数据分析\n\n%s\n\n## 第二部分：营销战略\n\n%s",
		analysis, marketing)
}

func buildDirectPrompt(flowType model.FlowType, query, historyText string) string {
	base := fmt.Sprintf(
		"你是一个专业的黄金交易分析助手，帮助用户分析数据和制定营销策略。\n\n用户历史对话:\n%s\n\n用户当前问题: %s\n\n",
		historyText, query)
	switch flowType {
	case model.FlowDataAnalysis:
		return base + "请你扮演数据分析专家，使用以下数据表进行分析:\n" + schemaDescription +
			"\n\n请首先分析用户可能需要的SQL查询，然后提供详细的数据分析结果，包括统计分析、可视化解读和初步的营销建议。"
	case model.FlowMarketing:
		return base + "请你扮演营销策略专家，为黄金交易平台制定精准的营销战略:\n" +
			"1. 分析用户画像，确定目标客群\n2. 制定营销战略框架，包括渠道选择和时间安排\n" +
			"3. 设计有吸引力的营销活动\n4. 编写营销文案\n\n" +
			"请考虑用户的投资风险偏好、交易行为和市场趋势，提供完整的营销方案。"
	case model.FlowComplete:
		return base + "请你综合发挥数据分析师和营销专家的能力，为黄金交易平台提供全面分析:\n" +
			"1. 首先进行数据分析，了解用户行为和交易模式\n2. 基于分析结果，识别高价值客户群体\n" +
			"3. 制定针对性的营销策略\n4. 设计创意活动和文案\n\n" +
			"请提供既有数据支持又有具体执行计划的完整解决方案。"
	}
	return base + "请回答用户的问题，提供专业的黄金交易相关建议。"
}
