package flow

import (
	"context"
	"fmt"

	"gold-trading-insight/internal/domain/ports/adapter"
)

const (
	StepUserProfile = "用户画像解读与目标定义"
	StepStrategy    = "营销战略框架制定"
	StepCampaign    = "创意活动构思"
	StepCopywriting = "营销文案创作"
)

// MarketingSteps builds the four-step marketing pipeline. The first
// step consumes a data-analysis result (fc.Analysis); each later step
// builds on the prior step's output.
func MarketingSteps(ai adapter.ModelClient) []Step {
	marketingAnalyst := complete(ai, "你是营销策略专家，擅长分析用户画像数据、识别高价值客户群体并制定精准的营销战略。")
	contentCreator := complete(ai, "你是创意内容专家，擅长设计引人入胜的营销活动和撰写有说服力的营销文案。")

	return []Step{
		{
			Name:       StepUserProfile,
			Checkpoint: 25,
			Run: func(ctx context.Context, fc *Context) (string, error) {
				return marketingAnalyst(ctx, fmt.Sprintf(
					"分析用户画像并定义营销目标。\n\n数据分析结果:\n%s",
					fc.Analysis))
			},
		},
		{
			Name:       StepStrategy,
			Checkpoint: 50,
			Run: func(ctx context.Context, fc *Context) (string, error) {
				return marketingAnalyst(ctx, fmt.Sprintf(
					"基于以下用户画像分析，制定完整的营销战略框架，包括渠道策略、活动规划和资源分配。\n\n用户画像分析:\n%s",
					fc.Last()))
			},
		},
		{
			Name:       StepCampaign,
			Checkpoint: 75,
			Run: func(ctx context.Context, fc *Context) (string, error) {
				return contentCreator(ctx, fmt.Sprintf(
					"基于以下营销战略，设计创意营销活动，包括活动主题、形式和预期效果。\n\n营销战略:\n%s",
					fc.Last()))
			},
		},
		{
			Name:       StepCopywriting,
			Checkpoint: 95,
			Run: func(ctx context.Context, fc *Context) (string, error) {
				return contentCreator(ctx, fmt.Sprintf(
					"基于以下活动方案，创作完整的营销文案，包括标题、正文和行动号召。\n\n活动方案:\n%s",
					fc.Last()))
			},
		},
	}
}
