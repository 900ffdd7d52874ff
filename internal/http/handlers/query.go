package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/marr05/RAG-TO-AWS/internal/domain/query"
	"github.com/marr05/RAG-TO-AWS/internal/http/response"
	pkgerrors "github.com/marr05/RAG-TO-AWS/internal/pkg/errors"
	"github.com/marr05/RAG-TO-AWS/internal/services"
)

type QueryHandler struct {
	queries services.QueryService
}

func NewQueryHandler(queries services.QueryService) *QueryHandler {
	return &QueryHandler{queries: queries}
}

type submitQueryRequest struct {
	QueryText *string `json:"query_text" binding:"required"`
	UserID    *string `json:"user_id"`
}

// POST /submit_query
func (h *QueryHandler) SubmitQuery(c *gin.Context) {
	var req submitQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, pkgerrors.Tag(pkgerrors.ErrValidation, fmt.Errorf("invalid request body: %w", err)))
		return
	}
	userID := ""
	if req.UserID != nil {
		userID = *req.UserID
	}
	q, err := h.queries.Submit(c.Request.Context(), *req.QueryText, userID)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, q.Normalize())
}

// GET /get_query?query_id=
func (h *QueryHandler) GetQuery(c *gin.Context) {
	q, err := h.queries.Get(c.Request.Context(), c.Query("query_id"))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, q.Normalize())
}

// GET /list_query?user_id=
func (h *QueryHandler) ListQuery(c *gin.Context) {
	items, err := h.queries.List(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	out := make([]*query.Query, 0, len(items))
	for _, q := range items {
		out = append(out, q.Normalize())
	}
	c.JSON(http.StatusOK, out)
}
