package web

import (
	"context"

	"gold-trading-insight/internal/domain/model"
	"gold-trading-insight/internal/stream"
	"gold-trading-insight/internal/usecase"
)

var _ usecase.ChatUseCase = (*fakeChat)(nil)

// fakeChat scripts the use case layer and records the last request each
// method saw.
type fakeChat struct {
	streamFn func(ctx context.Context, req usecase.QueryRequest) (*usecase.StreamHandle, error)
	queryFn  func(ctx context.Context, req usecase.QueryRequest) (*usecase.QueryResult, error)
	listFn   func(ctx context.Context, userID string, limit, offset int) ([]*model.Conversation, error)
	getFn    func(ctx context.Context, userID, conversationID string) (*model.Conversation, error)

	lastQuery  usecase.QueryRequest
	lastUserID string
	lastLimit  int
	lastOffset int
}

func (f *fakeChat) StreamQuery(ctx context.Context, req usecase.QueryRequest) (*usecase.StreamHandle, error) {
	f.lastQuery = req
	return f.streamFn(ctx, req)
}

func (f *fakeChat) Query(ctx context.Context, req usecase.QueryRequest) (*usecase.QueryResult, error) {
	f.lastQuery = req
	return f.queryFn(ctx, req)
}

func (f *fakeChat) ListConversations(ctx context.Context, userID string, limit, offset int) ([]*model.Conversation, error) {
	f.lastUserID, f.lastLimit, f.lastOffset = userID, limit, offset
	return f.listFn(ctx, userID, limit, offset)
}

func (f *fakeChat) GetConversation(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	f.lastUserID = userID
	return f.getFn(ctx, userID, conversationID)
}

// framesFrom builds a pre-closed frame channel, the shape a finished
// flow leaves behind.
func framesFrom(frames ...stream.Frame) <-chan stream.Frame {
	ch := make(chan stream.Frame, len(frames))
	for _, f := range frames {
		ch <- f
	}
	close(ch)
	return ch
}
