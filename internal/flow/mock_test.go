package flow

import (
	"context"
	"sync"

	"gold-trading-insight/internal/domain/model"
	"gold-trading-insight/internal/domain/ports/adapter"
	"gold-trading-insight/internal/domain/ports/repository"
)

// ---- Fakes ----

type memProgressStore struct {
	mu     sync.Mutex
	recs   map[string]model.JobRecord
	writes map[string][]model.JobRecord
}

func newMemProgressStore() *memProgressStore {
	return &memProgressStore{
		recs:   make(map[string]model.JobRecord),
		writes: make(map[string][]model.JobRecord),
	}
}

func (s *memProgressStore) Save(_ context.Context, jobID string, rec model.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[jobID] = rec
	s.writes[jobID] = append(s.writes[jobID], rec)
	return nil
}

func (s *memProgressStore) Get(_ context.Context, jobID string) (model.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[jobID]
	if !ok {
		return model.JobRecord{Status: model.JobStatusStarted}, nil
	}
	return rec, nil
}

func (s *memProgressStore) UpdateProgress(ctx context.Context, jobID string, progress int, output string) error {
	return s.Save(ctx, jobID, model.JobRecord{
		Progress:      progress,
		CurrentOutput: output,
		Status:        model.StatusForProgress(progress),
	})
}

func (s *memProgressStore) history(jobID string) []model.JobRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.JobRecord(nil), s.writes[jobID]...)
}

type memHistoryStore struct {
	mu   sync.Mutex
	msgs map[string][]repository.HistoryMessage
}

func newMemHistoryStore() *memHistoryStore {
	return &memHistoryStore{msgs: make(map[string][]repository.HistoryMessage)}
}

func (s *memHistoryStore) Append(_ context.Context, conversationID, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs[conversationID] = append(s.msgs[conversationID], repository.HistoryMessage{Role: role, Content: content})
	return nil
}

func (s *memHistoryStore) History(_ context.Context, conversationID string) ([]repository.HistoryMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repository.HistoryMessage(nil), s.msgs[conversationID]...), nil
}

func (s *memHistoryStore) Clear(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.msgs, conversationID)
	return nil
}

// scriptedAI answers Complete via a caller-supplied function and
// records every prompt it sees.
type scriptedAI struct {
	mu    sync.Mutex
	reply func(prompt string) (string, error)
	calls []string
}

func (s *scriptedAI) Complete(_ context.Context, messages []adapter.Message) (string, error) {
	prompt := messages[len(messages)-1].Content
	s.mu.Lock()
	s.calls = append(s.calls, prompt)
	s.mu.Unlock()
	if s.reply == nil {
		return "ok", nil
	}
	return s.reply(prompt)
}

func (s *scriptedAI) CountTokens(_ context.Context, messages []adapter.Message) (int, error) {
	n := 0
	for _, m := range messages {
		n += len(m.Content)
	}
	return n, nil
}

func (s *scriptedAI) prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type stubStep struct {
	name       string
	checkpoint int
	output     string
	err        error
}

// buildSteps turns fixed step specs into pipeline steps, recording the
// execution order in *order.
func buildSteps(order *[]string, specs []stubStep) []Step {
	steps := make([]Step, 0, len(specs))
	for _, sp := range specs {
		sp := sp
		steps = append(steps, Step{
			Name:       sp.name,
			Checkpoint: sp.checkpoint,
			Run: func(_ context.Context, _ *Context) (string, error) {
				if order != nil {
					*order = append(*order, sp.name)
				}
				return sp.output, sp.err
			},
		})
	}
	return steps
}
