package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gold-trading-insight/internal/domain"
	"gold-trading-insight/internal/domain/model"
	"gold-trading-insight/internal/domain/ports/adapter"
	"gold-trading-insight/internal/domain/ports/repository"
	"gold-trading-insight/internal/flow"
	"gold-trading-insight/internal/infra/worker"
	"gold-trading-insight/internal/stream"
)

// ---- Fakes ----

type memConvRepo struct {
	mu       sync.Mutex
	convs    map[string]*model.Conversation
	messages map[string]*model.ChatMessage
	order    []string
}

func newMemConvRepo() *memConvRepo {
	return &memConvRepo{
		convs:    make(map[string]*model.Conversation),
		messages: make(map[string]*model.ChatMessage),
	}
}

func (r *memConvRepo) Create(_ context.Context, conv *model.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.convs[conv.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *conv
	r.convs[conv.ID] = &cp
	return nil
}

func (r *memConvRepo) FindByID(_ context.Context, id string) (*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *conv
	return &cp, nil
}

func (r *memConvRepo) ListByUser(_ context.Context, userID string, limit, offset int) ([]*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	var out []*model.Conversation
	for _, conv := range r.convs {
		if conv.UserID != userID {
			continue
		}
		cp := *conv
		out = append(out, &cp)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memConvRepo) UpdateTitle(_ context.Context, id, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return domain.ErrNotFound
	}
	conv.Title = title
	return nil
}

func (r *memConvRepo) CreateMessage(_ context.Context, msg *model.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[msg.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *msg
	r.messages[msg.ID] = &cp
	r.order = append(r.order, msg.ID)
	return nil
}

func (r *memConvRepo) UpdateMessage(_ context.Context, messageID, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[messageID]
	if !ok {
		return domain.ErrNotFound
	}
	msg.Content = content
	return nil
}

func (r *memConvRepo) Messages(_ context.Context, conversationID string) ([]model.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ChatMessage
	for _, id := range r.order {
		if m := r.messages[id]; m.ConversationID == conversationID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *memConvRepo) message(id string) (model.ChatMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return model.ChatMessage{}, false
	}
	return *m, true
}

type memProgressStore struct {
	mu   sync.Mutex
	recs map[string]model.JobRecord
}

func newMemProgressStore() *memProgressStore {
	return &memProgressStore{recs: make(map[string]model.JobRecord)}
}

func (s *memProgressStore) Save(_ context.Context, jobID string, rec model.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[jobID] = rec
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

func (s *memHistoryStore) history(conversationID string) []repository.HistoryMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repository.HistoryMessage(nil), s.msgs[conversationID]...)
}

type stubAI struct{ reply string }

func (s *stubAI) Complete(context.Context, []adapter.Message) (string, error) {
	return s.reply, nil
}

func (s *stubAI) CountTokens(_ context.Context, messages []adapter.Message) (int, error) {
	n := 0
	for _, m := range messages {
		n += len(m.Content)
	}
	return n, nil
}

// ---- Wiring ----

type testEnv struct {
	uc    *chatUC
	repo  *memConvRepo
	hist  *memHistoryStore
	store *memProgressStore
	pool  *worker.Pool
}

// newTestEnv assembles a use case over in-memory stores with one stub
// analysis step. The pool is created but not started; tests that need
// background execution start it themselves.
func newTestEnv(stepOutput string) *testEnv {
	log := zerolog.Nop()
	repo := newMemConvRepo()
	hist := newMemHistoryStore()
	store := newMemProgressStore()
	ai := &stubAI{reply: "data_analysis"}

	analysis := []flow.Step{{
		Name:       "数据分析",
		Checkpoint: 90,
		Run: func(context.Context, *flow.Context) (string, error) {
			return stepOutput, nil
		},
	}}
	orch := flow.NewOrchestrator(store, hist, ai, flow.NewClassifier(ai, &log), analysis, nil, &log)
	presenter := stream.NewPresenter(store, time.Millisecond, 0, &log)
	pool := worker.NewPool(2, 4, &log)

	return &testEnv{
		uc:    NewChatUseCase(repo, hist, orch, presenter, pool, &log),
		repo:  repo,
		hist:  hist,
		store: store,
		pool:  pool,
	}
}
