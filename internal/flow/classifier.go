package flow

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"gold-trading-insight/internal/domain/model"
	"gold-trading-insight/internal/domain/ports/adapter"
)

// Keywords that signal marketing/promotion intent. Used when the model
// cannot be reached and the query must be routed deterministically.
var marketingKeywords = []string{"营销", "策略", "方案", "推广", "campaign", "marketing"}

var quotedToken = regexp.MustCompile(`"([^"]*)"`)

const classifyPromptTemplate = `请分析以下用户查询，并确定最适合的处理流程类型。

用户查询: "%s"

可选的流程类型:
1. "data_analysis" - 仅执行数据分析，适用于只需查询数据、生成报表等基础需求
2. "marketing" - 仅执行营销策略制定，适用于已有数据分析结果，只需要营销建议的情况
3. "complete" - 先执行数据分析再执行营销策略制定，适用于需要从数据发掘洞察并据此制定营销策略的综合性需求

请分析查询的深层意图与复杂度，仅回复一个流程类型的字符串，不要有任何其他内容: "data_analysis" 或 "marketing" 或 "complete"。`

// Classifier maps a free-text query to one of the pipeline flow types.
// It asks the model, parses defensively and falls back to keyword
// routing when the model call fails.
type Classifier struct {
	ai  adapter.ModelClient
	log *zerolog.Logger
}

func NewClassifier(ai adapter.ModelClient, log *zerolog.Logger) *Classifier {
	return &Classifier{ai: ai, log: log}
}

// Classify returns one of FlowDataAnalysis, FlowMarketing, FlowComplete.
// It never fails: classification errors resolve locally.
func (c *Classifier) Classify(ctx context.Context, query string) model.FlowType {
	prompt := fmt.Sprintf(classifyPromptTemplate, query)
	reply, err := c.ai.Complete(ctx, []adapter.Message{{Role: "user", Content: prompt}})
	if err != nil {
		c.log.Warn().Err(err).Msg("flow classification model call failed, using keyword fallback")
		return keywordFallback(query)
	}

	flowType := parseFlowReply(reply)
	c.log.Info().Str("reply", reply).Str("flow_type", string(flowType)).Msg("flow classified")
	return flowType
}

// parseFlowReply extracts a flow type from a model reply. Literal token
// matches are checked most-inclusive first so an ambiguous reply that
// mentions several types resolves toward the broader flow; an
// unparseable reply also escalates to the complete flow.
func parseFlowReply(reply string) model.FlowType {
	lower := strings.ToLower(reply)
	switch {
	case strings.Contains(lower, string(model.FlowComplete)):
		return model.FlowComplete
	case strings.Contains(lower, string(model.FlowMarketing)):
		return model.FlowMarketing
	case strings.Contains(lower, string(model.FlowDataAnalysis)), strings.Contains(lower, "data analysis"):
		return model.FlowDataAnalysis
	}

	if m := quotedToken.FindStringSubmatch(lower); m != nil {
		if ft := model.FlowType(strings.TrimSpace(m[1])); ft.Known() {
			return ft
		}
	}
	return model.FlowComplete
}

func keywordFallback(query string) model.FlowType {
	lower := strings.ToLower(query)
	for _, kw := range marketingKeywords {
		if strings.Contains(lower, kw) {
			return model.FlowComplete
		}
	}
	return model.FlowDataAnalysis
}
