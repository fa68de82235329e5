package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"gold-trading-insight/internal/domain/model"
	"gold-trading-insight/internal/domain/ports/repository"
	"gold-trading-insight/internal/infra/metrics"
)

// StepError marks the failure of one named pipeline step.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("步骤 %q 执行失败: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

// Context is the shared mutable state of one pipeline run. Each step
// reads the accumulated outputs and contributes its own under its name.
type Context struct {
	Query   string
	History string
	// Analysis carries a prior data-analysis result into the marketing
	// pipeline; empty elsewhere.
	Analysis string

	results map[string]string
	last    string
}

func NewContext(query, history string) *Context {
	return &Context{Query: query, History: history, results: make(map[string]string)}
}

// Result returns the output of an already completed step by name.
func (c *Context) Result(name string) string { return c.results[name] }

// Last returns the most recent step output; empty before the first step.
func (c *Context) Last() string { return c.last }

func (c *Context) put(name, output string) {
	c.results[name] = output
	c.last = output
}

// Step is one unit of pipeline work: it consumes the accumulated
// context, produces text and reports a progress checkpoint.
type Step struct {
	Name       string
	Checkpoint int
	Run        func(ctx context.Context, fc *Context) (string, error)
}

// Pipeline executes an ordered list of steps against a shared context.
// Steps run strictly sequentially: each step's prompt is built from the
// literal text of the prior step's output, so there is a hard data
// dependency chain, not a scheduling choice.
type Pipeline struct {
	name     string
	steps    []Step
	progress repository.ProgressStore
	log      *zerolog.Logger

	// Checkpoint scaling lets a composed flow map this pipeline's
	// checkpoints into a sub-range so progress stays non-decreasing
	// end to end. Identity scale also finalizes at 100.
	base, span int
	finalize   bool
}

func NewPipeline(name string, steps []Step, progress repository.ProgressStore, log *zerolog.Logger) *Pipeline {
	return &Pipeline{
		name:     name,
		steps:    steps,
		progress: progress,
		log:      log,
		base:     0,
		span:     100,
		finalize: true,
	}
}

// Scaled returns a copy whose checkpoints map into [base, base+span).
// A scaled pipeline never writes the terminal 100% record; the
// composing flow owns the terminal write.
func (p *Pipeline) Scaled(base, span int) *Pipeline {
	cp := *p
	cp.base = base
	cp.span = span
	cp.finalize = false
	return &cp
}

func (p *Pipeline) progressAt(checkpoint int) int {
	return p.base + checkpoint*p.span/100
}

// Execute runs the steps in order. renderedPrefix is text already
// written for this job by an earlier stage; all progress writes extend
// it so the job's current output only ever grows. The returned string
// is the full rendered text including the prefix.
func (p *Pipeline) Execute(ctx context.Context, jobID string, fc *Context, renderedPrefix string) (string, error) {
	rendered := renderedPrefix
	for _, step := range p.steps {
		stepStart := time.Now()
		output, err := step.Run(ctx, fc)
		metrics.ObserveFlowStep(p.name, step.Name, time.Since(stepStart).Seconds())
		if err != nil {
			p.log.Error().Err(err).Str("pipeline", p.name).Str("step", step.Name).
				Str("job_id", jobID).Msg("step failed")
			return rendered, &StepError{Step: step.Name, Err: err}
		}
		if LooksLikeError(output) {
			p.log.Error().Str("pipeline", p.name).Str("step", step.Name).
				Str("job_id", jobID).Str("output", output).Msg("step returned error text")
			return rendered, &StepError{Step: step.Name, Err: errors.New(output)}
		}

		fc.put(step.Name, output)
		if rendered != "" {
			rendered += "\n\n"
		}
		rendered += fmt.Sprintf("完成任务: %s\n\n%s", step.Name, output)

		if err := p.progress.UpdateProgress(ctx, jobID, p.progressAt(step.Checkpoint), rendered); err != nil {
			// A lost checkpoint only degrades the stream, not the result.
			p.log.Warn().Err(err).Str("job_id", jobID).Msg("progress update failed")
		}
		p.log.Debug().Str("pipeline", p.name).Str("step", step.Name).
			Int("checkpoint", p.progressAt(step.Checkpoint)).Str("job_id", jobID).Msg("step completed")
	}

	if p.finalize {
		if err := p.progress.UpdateProgress(ctx, jobID, model.ProgressDone, rendered); err != nil {
			p.log.Warn().Err(err).Str("job_id", jobID).Msg("final progress update failed")
		}
	}
	return rendered, nil
}
