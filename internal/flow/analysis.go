package flow

import (
	"context"
	"fmt"

	"gold-trading-insight/internal/domain/ports/adapter"
)

// Step names double as the "完成任务" headers shown in the stream.
const (
	StepSQLTranslation = "将业务问题转化为SQL查询"
	StepSQLExecution   = "执行SQL查询"
	StepPreprocessing  = "数据整合与预处理"
	StepStatistics     = "数据探索与统计分析"
	StepVisualization  = "可视化与洞察生成"
	StepSuggestions    = "营销建议生成"
)

// Database vocabulary shared by the SQL-facing prompts.
const schemaDescription = `- users: 保存用户的基本信息和财务状况
  (user_id, name, age, account_balance, deposit_amount, withdrawal_amount,
   investment_risk_tolerance, investment_horizon, monthly_income, monthly_expenses, created_at)
- transactions: 记录用户的每笔交易（买入和卖出黄金）
  (transaction_id, user_id, transaction_type, amount, transaction_date, price_per_ounce)
- products: 存储黄金产品信息
  (product_id, product_name, price_per_ounce, created_at)
- user_profiles: 记录用户的投资风险偏好和偏好类型
  (profile_id, user_id, risk_profile)`

func complete(ai adapter.ModelClient, role string) func(context.Context, string) (string, error) {
	return func(ctx context.Context, prompt string) (string, error) {
		return ai.Complete(ctx, []adapter.Message{
			{Role: "system", Content: role},
			{Role: "user", Content: prompt},
		})
	}
}

// AnalysisSteps builds the six-step data-analysis pipeline. Each step's
// prompt is assembled from the literal text of the prior step's output,
// which is why the steps can only ever run sequentially.
func AnalysisSteps(ai adapter.ModelClient) []Step {
	queryExpert := complete(ai, "你是SQL查询专家，擅长将业务问题转化为高效精准的SQL查询语句。")
	dbExpert := complete(ai, "你是数据库执行专家，精通数据库操作和数据整合，能够确保查询执行正确并提供干净的数据集供分析使用。")
	analyst := complete(ai, "你是资深数据分析师，擅长统计分析、数据可视化和从数据中提炼商业洞察。")

	return []Step{
		{
			Name:       StepSQLTranslation,
			Checkpoint: 15,
			Run: func(ctx context.Context, fc *Context) (string, error) {
				return queryExpert(ctx, fmt.Sprintf(
					"将业务问题转化为SQL查询。\n\n用户问题: %s\n\n历史对话: %s\n\n数据库结构:\n%s\n\n请生成符合MySQL语法的优化SQL查询语句。",
					fc.Query, fc.History, schemaDescription))
			},
		},
		{
			Name:       StepSQLExecution,
			Checkpoint: 30,
			Run: func(ctx context.Context, fc *Context) (string, error) {
				return dbExpert(ctx, fmt.Sprintf(
					"执行以下SQL查询并给出格式化的查询结果。\n\nSQL查询:\n%s\n\n数据库结构:\n%s",
					fc.Last(), schemaDescription))
			},
		},
		{
			Name:       StepPreprocessing,
			Checkpoint: 45,
			Run: func(ctx context.Context, fc *Context) (string, error) {
				return dbExpert(ctx, fmt.Sprintf(
					"对以下查询结果进行数据整合与预处理，包括处理缺失值、异常值和数据规范化。\n\n查询结果:\n%s",
					fc.Last()))
			},
		},
		{
			Name:       StepStatistics,
			Checkpoint: 60,
			Run: func(ctx context.Context, fc *Context) (string, error) {
				return analyst(ctx, fmt.Sprintf(
					"对以下预处理后的数据进行数据探索与统计分析，输出关键指标、相关性和模式。\n\n数据集:\n%s",
					fc.Last()))
			},
		},
		{
			Name:       StepVisualization,
			Checkpoint: 75,
			Run: func(ctx context.Context, fc *Context) (string, error) {
				return analyst(ctx, fmt.Sprintf(
					"基于以下统计分析结果，生成数据可视化解读和关键洞察的详细描述。\n\n统计分析结果:\n%s",
					fc.Last()))
			},
		},
		{
			Name:       StepSuggestions,
			Checkpoint: 90,
			Run: func(ctx context.Context, fc *Context) (string, error) {
				return analyst(ctx, fmt.Sprintf(
					"基于以下数据分析和洞察，生成详细的营销建议，包括目标用户、营销时机和渠道策略。\n\n分析洞察:\n%s",
					fc.Last()))
			},
		},
	}
}
