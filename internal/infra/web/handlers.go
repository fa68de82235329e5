package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"gold-trading-insight/internal/domain"
	"gold-trading-insight/internal/domain/model"
	"gold-trading-insight/internal/infra/metrics"
	"gold-trading-insight/internal/stream"
	"gold-trading-insight/internal/usecase"
)

type chatRequest struct {
	Query          string `json:"query"`
	FlowType       string `json:"flow_type"`
	ConversationID string `json:"conversation_id"`
	Stream         *bool  `json:"stream"`
}

type chatResponse struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Response       string `json:"response"`
	ResponseType   string `json:"response_type"`
}

type conversationSummary struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type messageView struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "无效的请求体")
		return
	}
	ucReq := usecase.QueryRequest{
		UserID:         UserID(r.Context()),
		Query:          req.Query,
		FlowType:       model.FlowType(req.FlowType),
		ConversationID: req.ConversationID,
	}

	// Streaming is the default; clients opt out explicitly.
	if req.Stream != nil && !*req.Stream {
		res, err := s.chat.Query(r.Context(), ucReq)
		if err != nil {
			s.respondUsecaseError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, chatResponse{
			MessageID:      res.MessageID,
			ConversationID: res.ConversationID,
			Response:       res.Response,
			ResponseType:   string(res.FlowType),
		})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "不支持流式响应")
		return
	}

	handle, err := s.chat.StreamQuery(r.Context(), ucReq)
	if err != nil {
		s.respondUsecaseError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Conversation-ID", handle.ConversationID)
	w.Header().Set("X-Message-ID", handle.MessageID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.StreamOpened()
	defer metrics.StreamClosed()
	for frame := range handle.Frames {
		b, err := json.Marshal(frame)
		if err != nil {
			s.log.Error().Err(err).Msg("frame marshal failed")
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			// Client is gone; the flow keeps running in the background.
			s.log.Debug().Err(err).Str("job_id", handle.JobID).Msg("stream write failed")
			return
		}
		flusher.Flush()
		metrics.IncStreamFrame(frameKind(frame))
	}
}

func frameKind(f stream.Frame) string {
	switch {
	case f.Error:
		return "error"
	case f.End:
		return "final"
	case f.Progress != nil:
		return "progress"
	}
	return "text"
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	convs, err := s.chat.ListConversations(r.Context(), UserID(r.Context()), limit, offset)
	if err != nil {
		s.respondUsecaseError(w, err)
		return
	}
	out := make([]conversationSummary, 0, len(convs))
	for _, c := range convs {
		out = append(out, summaryOf(c))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	conv, err := s.chat.GetConversation(r.Context(), UserID(r.Context()), conversationID)
	if err != nil {
		s.respondUsecaseError(w, err)
		return
	}

	msgs := make([]messageView, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		msgs = append(msgs, messageView{ID: m.ID, Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt})
	}
	respondJSON(w, http.StatusOK, struct {
		conversationSummary
		Messages []messageView `json:"messages"`
	}{summaryOf(conv), msgs})
}

func summaryOf(c *model.Conversation) conversationSummary {
	return conversationSummary{
		ID:           c.ID,
		UserID:       c.UserID,
		Title:        c.Title,
		MessageCount: c.MessageCount,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func (s *Server) respondUsecaseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		respondError(w, http.StatusBadRequest, "查询内容不能为空")
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, "会话不存在")
	case errors.Is(err, domain.ErrForbidden):
		respondError(w, http.StatusForbidden, "无权访问此会话")
	case errors.Is(err, domain.ErrQueueFull):
		metrics.IncQueueReject()
		respondError(w, http.StatusServiceUnavailable, "服务繁忙，请稍后重试")
	default:
		s.log.Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "内部服务器错误")
	}
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, detail string) {
	respondJSON(w, code, struct {
		Detail string `json:"detail"`
	}{detail})
}
