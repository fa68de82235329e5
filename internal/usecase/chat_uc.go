// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"gold-trading-insight/internal/domain"
	"gold-trading-insight/internal/domain/model"
	"gold-trading-insight/internal/domain/ports/repository"
	"gold-trading-insight/internal/flow"
	"gold-trading-insight/internal/infra/logging"
	"gold-trading-insight/internal/infra/worker"
	"gold-trading-insight/internal/stream"
)

// Compile-time check
var _ ChatUseCase = (*chatUC)(nil)

type ChatUseCase interface {
	// StreamQuery starts a flow in the background and returns the frame
	// stream for it. The flow keeps running if the caller goes away.
	StreamQuery(ctx context.Context, req QueryRequest) (*StreamHandle, error)
	// Query runs a flow synchronously and returns its terminal result.
	Query(ctx context.Context, req QueryRequest) (*QueryResult, error)
	ListConversations(ctx context.Context, userID string, limit, offset int) ([]*model.Conversation, error)
	GetConversation(ctx context.Context, userID, conversationID string) (*model.Conversation, error)
}

type QueryRequest struct {
	UserID         string
	Query          string
	FlowType       model.FlowType
	ConversationID string
}

// StreamHandle identifies a started flow and carries its frame stream.
type StreamHandle struct {
	ConversationID string
	MessageID      string
	JobID          string
	Frames         <-chan stream.Frame
}

type QueryResult struct {
	ConversationID string
	MessageID      string
	JobID          string
	Response       string
	// FlowType is the flow that actually ran, after classification.
	FlowType model.FlowType
	Status   model.JobStatus
}

type chatUC struct {
	convs     repository.ConversationRepository
	history   repository.HistoryStore
	orch      *flow.Orchestrator
	presenter *stream.Presenter
	pool      *worker.Pool
	log       *zerolog.Logger
}

func NewChatUseCase(
	convs repository.ConversationRepository,
	history repository.HistoryStore,
	orch *flow.Orchestrator,
	presenter *stream.Presenter,
	pool *worker.Pool,
	log *zerolog.Logger,
) *chatUC {
	return &chatUC{convs: convs, history: history, orch: orch, presenter: presenter, pool: pool, log: log}
}

func (c *chatUC) StreamQuery(ctx context.Context, req QueryRequest) (*StreamHandle, error) {
	defer logging.TraceDuration(c.log, "ChatUC.StreamQuery")()
	req, err := c.normalize(req)
	if err != nil {
		return nil, err
	}
	conversationID, replyID, err := c.createChatMessage(ctx, req)
	if err != nil {
		return nil, err
	}

	jobID := ulid.Make().String()
	done := make(chan stream.Outcome, 1)
	task := func(taskCtx context.Context) error {
		result, flowType, status := c.orch.Execute(taskCtx, flow.Request{
			JobID:          jobID,
			FlowType:       req.FlowType,
			Query:          req.Query,
			UserID:         req.UserID,
			ConversationID: conversationID,
		})
		done <- stream.Outcome{Text: result, FlowType: flowType, Status: status}
		return nil
	}
	if err := c.pool.Submit(task); err != nil {
		return nil, err
	}

	frames := c.presenter.Present(ctx, stream.Params{
		JobID:          jobID,
		ConversationID: conversationID,
		MessageID:      replyID,
		FlowType:       req.FlowType,
		Done:           done,
		Persist: func(pctx context.Context, messageID, content string) error {
			return c.convs.UpdateMessage(pctx, messageID, content)
		},
	})
	return &StreamHandle{
		ConversationID: conversationID,
		MessageID:      replyID,
		JobID:          jobID,
		Frames:         frames,
	}, nil
}

func (c *chatUC) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	defer logging.TraceDuration(c.log, "ChatUC.Query")()
	req, err := c.normalize(req)
	if err != nil {
		return nil, err
	}
	conversationID, replyID, err := c.createChatMessage(ctx, req)
	if err != nil {
		return nil, err
	}

	jobID := ulid.Make().String()
	result, flowType, status := c.orch.Execute(ctx, flow.Request{
		JobID:          jobID,
		FlowType:       req.FlowType,
		Query:          req.Query,
		UserID:         req.UserID,
		ConversationID: conversationID,
	})
	if err := c.convs.UpdateMessage(ctx, replyID, result); err != nil {
		c.log.Warn().Err(err).Str("message_id", replyID).Msg("could not persist reply")
	}
	return &QueryResult{
		ConversationID: conversationID,
		MessageID:      replyID,
		JobID:          jobID,
		Response:       result,
		FlowType:       flowType,
		Status:         status,
	}, nil
}

func (c *chatUC) ListConversations(ctx context.Context, userID string, limit, offset int) ([]*model.Conversation, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return c.convs.ListByUser(ctx, userID, limit, offset)
}

func (c *chatUC) GetConversation(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	conv, err := c.convs.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, domain.ErrForbidden
	}
	msgs, err := c.convs.Messages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	conv.Messages = msgs
	return conv, nil
}

func (c *chatUC) normalize(req QueryRequest) (QueryRequest, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" || req.UserID == "" {
		return req, domain.ErrInvalidArgument
	}
	if req.FlowType == "" {
		req.FlowType = model.FlowDataAnalysis
	}
	return req, nil
}

// createChatMessage resolves (or creates) the conversation and inserts
// the user message plus an empty assistant placeholder. The reply id is
// derived from the user message id so clients can correlate the two.
func (c *chatUC) createChatMessage(ctx context.Context, req QueryRequest) (conversationID, replyID string, err error) {
	conversationID = req.ConversationID
	if conversationID != "" {
		conv, ferr := c.convs.FindByID(ctx, conversationID)
		switch {
		case errors.Is(ferr, domain.ErrNotFound):
			conversationID = ""
		case ferr != nil:
			return "", "", ferr
		case conv.UserID != req.UserID:
			return "", "", domain.ErrForbidden
		case !conv.HasCustomTitle():
			if terr := c.convs.UpdateTitle(ctx, conversationID, model.TitleForQuery(req.Query)); terr != nil {
				c.log.Warn().Err(terr).Str("conversation_id", conversationID).Msg("could not update title")
			}
		}
	}
	if conversationID == "" {
		conv := model.NewConversation(uuid.NewString(), req.UserID, req.Query)
		if err := c.convs.Create(ctx, conv); err != nil {
			return "", "", err
		}
		conversationID = conv.ID
	}

	msgID := uuid.NewString()
	userMsg := &model.ChatMessage{
		ID:             msgID,
		ConversationID: conversationID,
		Role:           "user",
		Content:        req.Query,
	}
	if err := c.convs.CreateMessage(ctx, userMsg); err != nil {
		return "", "", err
	}
	replyID = msgID + "_reply"
	placeholder := &model.ChatMessage{
		ID:             replyID,
		ConversationID: conversationID,
		Role:           "assistant",
		Content:        "",
	}
	if err := c.convs.CreateMessage(ctx, placeholder); err != nil {
		return "", "", err
	}

	if err := c.history.Append(ctx, conversationID, "user", req.Query); err != nil {
		c.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("could not append user history")
	}
	return conversationID, replyID, nil
}
