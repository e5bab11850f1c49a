package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"github.com/gin-gonic/gin"
)

// PageRef names a neighbouring page.
type PageRef struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type Pagination struct {
	Next  *PageRef `json:"next,omitempty"`
	Prev  *PageRef `json:"prev,omitempty"`
	Total int64    `json:"total"`
}

// Envelope is the body of every API response.
type Envelope struct {
	Success    bool        `json:"success"`
	Count      *int        `json:"count,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Data       any         `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, Envelope{Success: true, Data: data})
}

func okList(c *gin.Context, data any, count int, p *Pagination) {
	c.JSON(http.StatusOK, Envelope{Success: true, Count: &count, Pagination: p, Data: data})
}

func paginate(page, limit int, total int64) *Pagination {
	p := &Pagination{Total: total}
	if int64(page)*int64(limit) < total {
		p.Next = &PageRef{Page: page + 1, Limit: limit}
	}
	if page > 1 {
		p.Prev = &PageRef{Page: page - 1, Limit: limit}
	}
	return p
}

// statusOf maps an error to its HTTP status.
func statusOf(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, common.ErrorValidation),
		errors.Is(err, common.ErrorConflict),
		errors.Is(err, common.ErrorAlreadyExists):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrRefreshTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrorForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrorTooLarge), errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, common.ErrorRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// fail writes the error envelope. Internal errors are logged and hidden.
func (s *Server) fail(c *gin.Context, err error) {
	status := statusOf(err)
	msg := common.Message(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		msg = "server error"
	}
	c.AbortWithStatusJSON(status, Envelope{Success: false, Error: msg})
}

// project keeps _id and the selected top-level fields of every item.
func project[T any](items []T, fields []string) (any, error) {
	if len(fields) == 0 {
		return items, nil
	}
	out := make([]map[string]json.RawMessage, 0, len(items))
	for _, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("error projecting item: %w", err)
		}
		var all map[string]json.RawMessage
		if err := json.Unmarshal(b, &all); err != nil {
			return nil, fmt.Errorf("error projecting item: %w", err)
		}
		m := map[string]json.RawMessage{"_id": all["_id"]}
		for _, f := range fields {
			if v, ok := all[f]; ok {
				m[f] = v
			}
		}
		out = append(out, m)
	}
	return out, nil
}
