package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/samargunners/par-delta-dashboard/internal/ai"
	"github.com/samargunners/par-delta-dashboard/internal/app"
	"github.com/samargunners/par-delta-dashboard/internal/platform/rabbitmq"
	"github.com/samargunners/par-delta-dashboard/internal/rag"
	"github.com/samargunners/par-delta-dashboard/internal/transport/http/middleware"
	"github.com/samargunners/par-delta-dashboard/internal/transport/http/response"
)

// RefreshPublisher queues a rebuild for the refresh worker.
type RefreshPublisher interface {
	PublishRefresh(ctx context.Context, req rabbitmq.RefreshRequest) error
}

type RAGHandler struct {
	ragService *app.RAGService
	refresher  RefreshPublisher
	log        *slog.Logger
}

type AskRequest struct {
	Question       string `json:"question" binding:"max=2000"`
	IncludeSources bool   `json:"include_sources"`
}

type RetrieveRequest struct {
	Question string `json:"question" binding:"required,max=2000"`
}

type RefreshRequest struct {
	Async  bool   `json:"async"`
	Reason string `json:"reason" binding:"max=256"`
}

// NewRAGHandler builds the handler; refresher may be nil, in which case
// refreshes always run inline.
func NewRAGHandler(ragService *app.RAGService, refresher RefreshPublisher, log *slog.Logger) *RAGHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RAGHandler{ragService: ragService, refresher: refresher, log: log}
}

func (h *RAGHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	answer, err := h.ragService.Ask(c.Request.Context(), app.AskInput{
		UserID:         userIDFromContext(c),
		Question:       req.Question,
		IncludeSources: req.IncludeSources,
	})
	if err != nil && answer != nil {
		// The composer failed after retrieval; the answer carries the
		// user-facing unavailable message.
		h.log.Warn("answer unavailable", "error", err)
		response.OK(c, answer)
		return
	}
	if err != nil {
		h.writeError(c, err, "ask failed")
		return
	}
	response.OK(c, answer)
}

func (h *RAGHandler) Retrieve(c *gin.Context) {
	var req RetrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	result, err := h.ragService.Retrieve(c.Request.Context(), req.Question)
	if err != nil {
		h.writeError(c, err, "retrieve failed")
		return
	}
	response.OK(c, result)
}

func (h *RAGHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
			return
		}
	}

	if req.Async {
		if h.refresher == nil {
			response.Error(c, http.StatusServiceUnavailable, response.CodeServiceUnavailable, "refresh queue not configured")
			return
		}
		username := c.GetString(middleware.ContextUsernameKey)
		if username == "" {
			username = "api"
		}
		if err := h.refresher.PublishRefresh(c.Request.Context(), rabbitmq.RefreshRequest{
			RequestedBy: username,
			Reason:      req.Reason,
		}); err != nil {
			h.log.Error("queue refresh failed", "error", err)
			response.Error(c, http.StatusServiceUnavailable, response.CodeServiceUnavailable, "queue refresh failed")
			return
		}
		response.OK(c, gin.H{"queued": true})
		return
	}

	status, err := h.ragService.Refresh(c.Request.Context())
	if err != nil {
		h.writeError(c, err, "refresh failed")
		return
	}
	response.OK(c, status)
}

func (h *RAGHandler) Status(c *gin.Context) {
	status, err := h.ragService.Status()
	if err != nil {
		h.writeError(c, err, "status failed")
		return
	}
	response.OK(c, status)
}

func (h *RAGHandler) writeError(c *gin.Context, err error, fallback string) {
	var perr *ai.ProviderError
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrRAGDisabled):
		response.Error(c, http.StatusServiceUnavailable, response.CodeRAGDisabled, err.Error())
	case errors.Is(err, rag.ErrDataUnavailable):
		h.log.Error(fallback, "error", err)
		response.Error(c, http.StatusServiceUnavailable, response.CodeDataUnavailable, rag.UnavailableText)
	case rag.IsUnavailable(err), errors.As(err, &perr):
		h.log.Error(fallback, "error", err)
		response.Error(c, http.StatusServiceUnavailable, response.CodeServiceUnavailable, rag.UnavailableText)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.Error(c, http.StatusServiceUnavailable, response.CodeServiceUnavailable, "request timed out")
	default:
		h.log.Error(fallback, "error", err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

func userIDFromContext(c *gin.Context) uint {
	v, ok := c.Get(middleware.ContextUserIDKey)
	if !ok {
		return 0
	}
	id, _ := v.(uint)
	return id
}
