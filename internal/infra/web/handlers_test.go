package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gold-trading-insight/internal/domain"
	"gold-trading-insight/internal/domain/model"
	"gold-trading-insight/internal/stream"
	"gold-trading-insight/internal/usecase"
)

func newTestServer(chat usecase.ChatUseCase, dev bool) (*Server, http.Handler) {
	log := zerolog.Nop()
	s := NewServer(chat, NewAuthManager("test-secret", time.Hour), dev, &log)
	return s, s.Router()
}

func authedRequest(t *testing.T, s *Server, method, target, body string) *http.Request {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	tok, err := s.auth.Mint("u1")
	if err != nil {
		t.Fatal(err)
	}
	r.Header.Set("Authorization", "Bearer "+tok)
	return r
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v (%s)", err, w.Body.String())
	}
	return v
}

func TestHealthEndpoint(t *testing.T) {
	_, router := newTestServer(&fakeChat{}, false)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Fatalf("code=%d body=%q", w.Code, w.Body.String())
	}
}

func TestAPIRequiresAuth(t *testing.T) {
	_, router := newTestServer(&fakeChat{}, false)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/conversations", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d", w.Code)
	}
	body := decodeBody[map[string]string](t, w)
	if body["detail"] != "未授权" {
		t.Fatalf("body = %v", body)
	}
}

func TestDevModeHeaderAuth(t *testing.T) {
	chat := &fakeChat{
		listFn: func(context.Context, string, int, int) ([]*model.Conversation, error) {
			return nil, nil
		},
	}
	_, router := newTestServer(chat, true)

	r := httptest.NewRequest("GET", "/api/conversations", nil)
	r.Header.Set("X-User-ID", "dev-user")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if chat.lastUserID != "dev-user" {
		t.Fatalf("user id = %q", chat.lastUserID)
	}
}

func TestQuerySynchronous(t *testing.T) {
	chat := &fakeChat{
		queryFn: func(_ context.Context, req usecase.QueryRequest) (*usecase.QueryResult, error) {
			return &usecase.QueryResult{
				ConversationID: "c1",
				MessageID:      "m1_reply",
				JobID:          "job1",
				Response:       "分析结果",
				FlowType:       model.FlowComplete,
				Status:         model.JobStatusCompleted,
			}, nil
		},
	}
	s, router := newTestServer(chat, false)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, s, "POST", "/api/query",
		`{"query":"查询用户数据","flow_type":"data_analysis","stream":false}`))
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}
	body := decodeBody[map[string]string](t, w)
	if body["message_id"] != "m1_reply" || body["conversation_id"] != "c1" {
		t.Fatalf("body = %v", body)
	}
	// response_type reports the flow that actually ran, not the one the
	// client asked for.
	if body["response"] != "分析结果" || body["response_type"] != "complete" {
		t.Fatalf("body = %v", body)
	}
	if chat.lastQuery.UserID != "u1" || chat.lastQuery.Query != "查询用户数据" {
		t.Fatalf("usecase request = %+v", chat.lastQuery)
	}
}

func TestRequestLogEmitsOneLinePerRequest(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	s := NewServer(&fakeChat{}, NewAuthManager("test-secret", time.Hour), false, &log)
	router := s.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output not a single JSON line: %v (%s)", err, buf.String())
	}
	if entry["message"] != "http_request" || entry["method"] != "GET" || entry["path"] != "/health" {
		t.Fatalf("log entry = %v", entry)
	}
	if entry["status"] != float64(http.StatusOK) {
		t.Fatalf("log entry = %v", entry)
	}
	if id, _ := entry["trace_id"].(string); id == "" {
		t.Fatalf("log entry missing trace id: %v", entry)
	}
}

func TestQueryInvalidBody(t *testing.T) {
	s, router := newTestServer(&fakeChat{}, false)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, s, "POST", "/api/query", "{not json"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", w.Code)
	}
}

func TestQueryStreamsSSE(t *testing.T) {
	progress := 15
	chat := &fakeChat{
		streamFn: func(_ context.Context, req usecase.QueryRequest) (*usecase.StreamHandle, error) {
			return &usecase.StreamHandle{
				ConversationID: "c1",
				MessageID:      "m1_reply",
				JobID:          "job1",
				Frames: framesFrom(
					stream.Frame{Text: "正在处理您的问题，请稍候...", ConversationID: "c1", JobID: "job1"},
					stream.Frame{Text: "部分结果", ConversationID: "c1", JobID: "job1", Progress: &progress},
					stream.Frame{Text: "完整结果", ConversationID: "c1", JobID: "job1", End: true, MessageID: "m1_reply", Duration: 1.23},
				),
			}, nil
		},
	}
	s, router := newTestServer(chat, false)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, s, "POST", "/api/query", `{"query":"查询用户数据"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	if w.Header().Get("X-Conversation-ID") != "c1" || w.Header().Get("X-Message-ID") != "m1_reply" {
		t.Fatalf("headers = %v", w.Header())
	}

	var frames []stream.Frame
	scanner := bufio.NewScanner(w.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var f stream.Frame
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &f); err != nil {
			t.Fatalf("bad frame %q: %v", line, err)
		}
		frames = append(frames, f)
	}
	if len(frames) != 3 {
		t.Fatalf("frames = %d", len(frames))
	}
	if frames[1].Progress == nil || *frames[1].Progress != 15 {
		t.Fatalf("middle frame = %+v", frames[1])
	}
	last := frames[len(frames)-1]
	if !last.End || last.MessageID != "m1_reply" || last.Text != "完整结果" {
		t.Fatalf("final frame = %+v", last)
	}
}

func TestQueryQueueFull(t *testing.T) {
	chat := &fakeChat{
		streamFn: func(context.Context, usecase.QueryRequest) (*usecase.StreamHandle, error) {
			return nil, domain.ErrQueueFull
		},
	}
	s, router := newTestServer(chat, false)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, s, "POST", "/api/query", `{"query":"查询用户数据"}`))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d", w.Code)
	}
	body := decodeBody[map[string]string](t, w)
	if body["detail"] != "服务繁忙，请稍后重试" {
		t.Fatalf("body = %v", body)
	}
}

func TestListConversations(t *testing.T) {
	now := time.Now()
	chat := &fakeChat{
		listFn: func(context.Context, string, int, int) ([]*model.Conversation, error) {
			return []*model.Conversation{
				{ID: "c1", UserID: "u1", Title: "问题一", MessageCount: 4, CreatedAt: now, UpdatedAt: now},
				{ID: "c2", UserID: "u1", Title: "问题二", MessageCount: 2, CreatedAt: now, UpdatedAt: now},
			}, nil
		},
	}
	s, router := newTestServer(chat, false)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, s, "GET", "/api/conversations", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	out := decodeBody[[]map[string]any](t, w)
	if len(out) != 2 || out[0]["id"] != "c1" || out[0]["message_count"] != float64(4) {
		t.Fatalf("body = %v", out)
	}
	if chat.lastLimit != 10 || chat.lastOffset != 0 {
		t.Fatalf("limit=%d offset=%d", chat.lastLimit, chat.lastOffset)
	}
}

func TestListConversationsPagination(t *testing.T) {
	chat := &fakeChat{
		listFn: func(context.Context, string, int, int) ([]*model.Conversation, error) {
			return nil, nil
		},
	}
	s, router := newTestServer(chat, false)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, s, "GET", "/api/conversations?limit=5&offset=20", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if chat.lastLimit != 5 || chat.lastOffset != 20 {
		t.Fatalf("limit=%d offset=%d", chat.lastLimit, chat.lastOffset)
	}
}

func TestGetConversation(t *testing.T) {
	now := time.Now()
	chat := &fakeChat{
		getFn: func(_ context.Context, userID, conversationID string) (*model.Conversation, error) {
			return &model.Conversation{
				ID: conversationID, UserID: userID, Title: "问题",
				Messages: []model.ChatMessage{
					{ID: "m1", Role: "user", Content: "查询", CreatedAt: now},
					{ID: "m1_reply", Role: "assistant", Content: "结果", CreatedAt: now},
				},
			}, nil
		},
	}
	s, router := newTestServer(chat, false)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, s, "GET", "/api/conversations/c1", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	out := decodeBody[map[string]any](t, w)
	if out["id"] != "c1" {
		t.Fatalf("body = %v", out)
	}
	msgs, ok := out["messages"].([]any)
	if !ok || len(msgs) != 2 {
		t.Fatalf("messages = %v", out["messages"])
	}
}

func TestGetConversationErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   int
		detail string
	}{
		{"forbidden", domain.ErrForbidden, http.StatusForbidden, "无权访问此会话"},
		{"not found", domain.ErrNotFound, http.StatusNotFound, "会话不存在"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chat := &fakeChat{
				getFn: func(context.Context, string, string) (*model.Conversation, error) {
					return nil, tc.err
				},
			}
			s, router := newTestServer(chat, false)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, authedRequest(t, s, "GET", "/api/conversations/c1", ""))
			if w.Code != tc.code {
				t.Fatalf("code = %d", w.Code)
			}
			body := decodeBody[map[string]string](t, w)
			if body["detail"] != tc.detail {
				t.Fatalf("body = %v", body)
			}
		})
	}
}
