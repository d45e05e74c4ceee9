package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appsvc "tutorat/internal/app"
	"tutorat/internal/model"
	"tutorat/internal/transport/http/response"
)

type SearchHandler struct {
	retrieval *appsvc.RetrievalService
}

type SearchRequest struct {
	Text             string  `json:"text"`
	Level            string  `json:"level" binding:"required"`
	Subject          string  `json:"subject" binding:"required"`
	Limit            int     `json:"limit"`
	MinScoreOverride float64 `json:"min_score_override"`
}

func NewSearchHandler(retrieval *appsvc.RetrievalService) *SearchHandler {
	return &SearchHandler{retrieval: retrieval}
}

// Search never surfaces backend failures to the caller: an unreachable store
// or embedding provider comes back as found=false with HTTP 200. Chat keeps
// working without curriculum grounding.
func (h *SearchHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	if !model.ValidLevel(req.Level) {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "unknown level: "+req.Level)
		return
	}

	result := h.retrieval.Search(c.Request.Context(), model.Query{
		Text:             req.Text,
		Level:            req.Level,
		Subject:          req.Subject,
		Limit:            req.Limit,
		MinScoreOverride: req.MinScoreOverride,
	})
	response.OK(c, result)
}
