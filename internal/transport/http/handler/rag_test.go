package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samargunners/par-delta-dashboard/internal/ai"
	"github.com/samargunners/par-delta-dashboard/internal/app"
	"github.com/samargunners/par-delta-dashboard/internal/bootstrap"
	"github.com/samargunners/par-delta-dashboard/internal/config"
	"github.com/samargunners/par-delta-dashboard/internal/model"
	"github.com/samargunners/par-delta-dashboard/internal/platform/rabbitmq"
	"github.com/samargunners/par-delta-dashboard/internal/rag"
	"github.com/samargunners/par-delta-dashboard/internal/transport/http/response"
)

type stubPipeline struct {
	answer *model.Answer
	err    error
	status rag.Status
}

func (p *stubPipeline) Ask(_ context.Context, question string) (*model.Answer, error) {
	if p.answer == nil {
		return nil, p.err
	}
	a := *p.answer
	a.Question = question
	return &a, p.err
}

func (p *stubPipeline) Retrieve(context.Context, string) ([]model.ScoredChunk, *rag.Snapshot, error) {
	if p.err != nil {
		return nil, nil, p.err
	}
	return []model.ScoredChunk{{Chunk: model.Chunk{ID: "c1", Text: "labor"}, Score: 0.9}},
		&rag.Snapshot{Generation: 1, ProviderLabel: "hashing/feature-hashing"}, nil
}

func (p *stubPipeline) Refresh(context.Context) (*rag.Snapshot, error) {
	return &rag.Snapshot{Generation: 2}, p.err
}

func (p *stubPipeline) Status() rag.Status { return p.status }

type queuedRefresh struct {
	reqs []rabbitmq.RefreshRequest
}

func (q *queuedRefresh) PublishRefresh(_ context.Context, req rabbitmq.RefreshRequest) error {
	q.reqs = append(q.reqs, req)
	return nil
}

func newTestRouter(svc *app.RAGService, refresher RefreshPublisher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewRAGHandler(svc, refresher, nil)
	r := gin.New()
	r.POST("/ask", h.Ask)
	r.POST("/retrieve", h.Retrieve)
	r.POST("/refresh", h.Refresh)
	r.GET("/status", h.Status)
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string) (int, response.APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var resp response.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestAskAnswered(t *testing.T) {
	pipeline := &stubPipeline{answer: &model.Answer{
		Text:    "Labor cost was $150.",
		Status:  model.AnswerOK,
		Sources: []model.ScoredChunk{{Chunk: model.Chunk{ID: "c1"}, Score: 0.8}},
	}}
	r := newTestRouter(app.NewRAGService(pipeline, nil, nil, nil), nil)

	code, resp := do(t, r, http.MethodPost, "/ask", `{"question":"labor cost?"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, response.CodeOK, resp.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "answered", data["status"])
	assert.Equal(t, "labor cost?", data["question"])
	assert.Nil(t, data["sources"])
}

func TestAskUnavailableAnswer(t *testing.T) {
	pipeline := &stubPipeline{
		answer: &model.Answer{Text: rag.UnavailableText, Status: model.AnswerUnavailable},
		err:    rag.ErrAnswerUnavailable,
	}
	r := newTestRouter(app.NewRAGService(pipeline, nil, nil, nil), nil)

	code, resp := do(t, r, http.MethodPost, "/ask", `{"question":"q"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "unavailable", resp.Data.(map[string]any)["status"])
}

func TestAskErrors(t *testing.T) {
	tests := []struct {
		name     string
		svc      *app.RAGService
		body     string
		wantHTTP int
		wantCode int
	}{
		{
			name:     "bad json",
			svc:      app.NewRAGService(&stubPipeline{}, nil, nil, nil),
			body:     `{"question":`,
			wantHTTP: http.StatusBadRequest,
			wantCode: response.CodeBadRequest,
		},
		{
			name:     "disabled",
			svc:      app.NewDisabledRAGService(config.ErrConfigurationMissing),
			body:     `{"question":"q"}`,
			wantHTTP: http.StatusServiceUnavailable,
			wantCode: response.CodeRAGDisabled,
		},
		{
			name:     "data unavailable",
			svc:      app.NewRAGService(&stubPipeline{err: rag.ErrDataUnavailable}, nil, nil, nil),
			body:     `{"question":"q"}`,
			wantHTTP: http.StatusServiceUnavailable,
			wantCode: response.CodeDataUnavailable,
		},
		{
			name: "provider exhausted",
			svc: app.NewRAGService(&stubPipeline{
				err: &ai.ProviderError{Provider: "openai", Kind: ai.KindServer, Exhausted: true},
			}, nil, nil, nil),
			body:     `{"question":"q"}`,
			wantHTTP: http.StatusServiceUnavailable,
			wantCode: response.CodeServiceUnavailable,
		},
		{
			name:     "unexpected",
			svc:      app.NewRAGService(&stubPipeline{err: errors.New("boom")}, nil, nil, nil),
			body:     `{"question":"q"}`,
			wantHTTP: http.StatusInternalServerError,
			wantCode: response.CodeInternalServer,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := do(t, newTestRouter(tt.svc, nil), http.MethodPost, "/ask", tt.body)
			assert.Equal(t, tt.wantHTTP, code)
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestRetrieveHandler(t *testing.T) {
	r := newTestRouter(app.NewRAGService(&stubPipeline{}, nil, nil, nil), nil)

	code, resp := do(t, r, http.MethodPost, "/retrieve", `{"question":"labor"}`)
	assert.Equal(t, http.StatusOK, code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "hashing/feature-hashing", data["provider"])
	assert.Len(t, data["chunks"], 1)

	code, _ = do(t, r, http.MethodPost, "/retrieve", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRefreshHandler(t *testing.T) {
	pipeline := &stubPipeline{status: rag.Status{Ready: true, Generation: 2}}
	queue := &queuedRefresh{}
	r := newTestRouter(app.NewRAGService(pipeline, nil, nil, nil), queue)

	code, resp := do(t, r, http.MethodPost, "/refresh", "")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, resp.Data.(map[string]any)["generation"])

	code, resp = do(t, r, http.MethodPost, "/refresh", `{"async":true,"reason":"etl load"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, resp.Data.(map[string]any)["queued"])
	require.Len(t, queue.reqs, 1)
	assert.Equal(t, "api", queue.reqs[0].RequestedBy)
	assert.Equal(t, "etl load", queue.reqs[0].Reason)
}

func TestRefreshAsyncWithoutQueue(t *testing.T) {
	r := newTestRouter(app.NewRAGService(&stubPipeline{}, nil, nil, nil), nil)
	code, _ := do(t, r, http.MethodPost, "/refresh", `{"async":true}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestStatusHandler(t *testing.T) {
	pipeline := &stubPipeline{status: rag.Status{Ready: true, Provider: "fallback", Degraded: true, FallbackReason: "quota"}}
	r := newTestRouter(app.NewRAGService(pipeline, nil, nil, nil), nil)

	code, resp := do(t, r, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusOK, code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["degraded"])
	assert.Equal(t, "quota", data["fallback_reason"])
}

func TestHealthWithoutDatabase(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a := &bootstrap.App{
		Config:    &config.Config{App: config.AppConfig{Name: "par-delta-dashboard", Env: "test"}},
		RAG:       app.NewRAGService(&stubPipeline{status: rag.Status{Ready: true}}, nil, nil, nil),
		StartedAt: time.Now(),
	}
	r := gin.New()
	r.GET("/healthz", NewHealthHandler(a).Check)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, false, deps["database"].(map[string]any)["ok"])
	assert.Equal(t, "disabled", deps["redis"].(map[string]any)["message"])
	assert.Equal(t, true, body["rag"].(map[string]any)["ready"])
}
