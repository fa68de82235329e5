package stream

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gold-trading-insight/internal/domain/model"
	"gold-trading-insight/internal/domain/ports/repository"
)

// Frame is one SSE payload. Progress is a pointer so frames that carry
// no progress information omit the field entirely.
type Frame struct {
	Text           string  `json:"text,omitempty"`
	ConversationID string  `json:"conversation_id,omitempty"`
	JobID          string  `json:"job_id,omitempty"`
	Progress       *int    `json:"progress,omitempty"`
	Type           string  `json:"type,omitempty"`
	End            bool    `json:"end,omitempty"`
	MessageID      string  `json:"message_id,omitempty"`
	Duration       float64 `json:"duration,omitempty"`
	Error          bool    `json:"error,omitempty"`
}

// Outcome is the terminal result of a flow execution. FlowType is the
// flow that actually ran, which can differ from the requested one after
// classification.
type Outcome struct {
	Text     string
	FlowType model.FlowType
	Status   model.JobStatus
}

// Params describes one streaming session. Done delivers the flow's
// terminal outcome; Persist, when set, stores the final text under the
// placeholder reply message.
type Params struct {
	JobID          string
	ConversationID string
	MessageID      string
	FlowType       model.FlowType
	Done           <-chan Outcome
	Persist        func(ctx context.Context, messageID, content string) error
}

// Presenter polls job progress and converts it into a typing-effect
// frame sequence.
type Presenter struct {
	progress     repository.ProgressStore
	pollInterval time.Duration
	segmentDelay time.Duration
	log          *zerolog.Logger
}

func NewPresenter(progress repository.ProgressStore, pollInterval, segmentDelay time.Duration, log *zerolog.Logger) *Presenter {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Presenter{
		progress:     progress,
		pollInterval: pollInterval,
		segmentDelay: segmentDelay,
		log:          log,
	}
}

// Present streams frames for one job until its outcome arrives or ctx
// is cancelled. The returned channel is closed after the terminal
// frame.
func (p *Presenter) Present(ctx context.Context, ps Params) <-chan Frame {
	out := make(chan Frame, 8)
	go p.run(ctx, ps, out)
	return out
}

func (p *Presenter) run(ctx context.Context, ps Params, out chan<- Frame) {
	defer close(out)
	start := time.Now()

	if !p.emit(ctx, out, Frame{
		Text:           "正在处理您的问题，请稍候...",
		ConversationID: ps.ConversationID,
		JobID:          ps.JobID,
		Type:           string(ps.FlowType),
	}) {
		return
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	current := ""
	lastProgress := 0
	for {
		select {
		case <-ctx.Done():
			return
		case oc := <-ps.Done:
			p.finish(ctx, ps, oc, start, out)
			return
		case <-ticker.C:
			rec, err := p.progress.Get(ctx, ps.JobID)
			if err != nil {
				p.log.Warn().Err(err).Str("job_id", ps.JobID).Msg("progress poll failed")
				continue
			}
			if rec.CurrentOutput != current {
				delta := rec.CurrentOutput
				if strings.HasPrefix(rec.CurrentOutput, current) {
					delta = rec.CurrentOutput[len(current):]
				}
				base := rec.CurrentOutput[:len(rec.CurrentOutput)-len(delta)]
				for _, segment := range SplitSegments(delta) {
					if !p.pause(ctx) {
						return
					}
					base += segment
					progress := rec.Progress
					if !p.emit(ctx, out, Frame{
						Text:           base,
						ConversationID: ps.ConversationID,
						JobID:          ps.JobID,
						Progress:       &progress,
						Type:           string(ps.FlowType),
					}) {
						return
					}
				}
				current = rec.CurrentOutput
				lastProgress = rec.Progress
			} else if rec.Progress > lastProgress {
				lastProgress = rec.Progress
				progress := rec.Progress
				if !p.emit(ctx, out, Frame{
					Text:           current,
					ConversationID: ps.ConversationID,
					JobID:          ps.JobID,
					Progress:       &progress,
					Type:           string(ps.FlowType),
				}) {
					return
				}
			}
		}
	}
}

func (p *Presenter) finish(ctx context.Context, ps Params, oc Outcome, start time.Time, out chan<- Frame) {
	if ps.Persist != nil && ps.MessageID != "" {
		if err := ps.Persist(ctx, ps.MessageID, oc.Text); err != nil {
			p.log.Warn().Err(err).Str("message_id", ps.MessageID).Msg("could not persist final reply")
		}
	}

	// The terminal frame reports the flow that actually ran.
	frameType := string(ps.FlowType)
	if oc.FlowType != "" {
		frameType = string(oc.FlowType)
	}
	duration := math.Round(time.Since(start).Seconds()*100) / 100
	frame := Frame{
		Text:           oc.Text,
		ConversationID: ps.ConversationID,
		JobID:          ps.JobID,
		End:            true,
		MessageID:      ps.MessageID,
		Type:           frameType,
		Duration:       duration,
	}
	if oc.Status == model.JobStatusError {
		frame.Error = true
	}
	p.emit(ctx, out, frame)
}

// pause sleeps one typing-effect beat, returning false if ctx ends
// first.
func (p *Presenter) pause(ctx context.Context) bool {
	if p.segmentDelay <= 0 {
		return true
	}
	t := time.NewTimer(p.segmentDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (p *Presenter) emit(ctx context.Context, out chan<- Frame, f Frame) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- f:
		return true
	}
}
