package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"github.com/stretchr/testify/assert"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{common.Errorf(common.ErrorValidation, "bad"), http.StatusBadRequest},
		{common.Errorf(common.ErrorConflict, "task is already completed"), http.StatusBadRequest},
		{common.ErrorAlreadyExists, http.StatusBadRequest},
		{common.ErrorUnauthorized, http.StatusUnauthorized},
		{common.ErrTokenExpired, http.StatusUnauthorized},
		{common.ErrRefreshTokenExpired, http.StatusUnauthorized},
		{common.Errorf(common.ErrorForbidden, "no"), http.StatusForbidden},
		{fmt.Errorf("wrapped: %w", common.ErrorNotFound), http.StatusNotFound},
		{&http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{common.ErrorRateLimited, http.StatusTooManyRequests},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}

func TestPaginate(t *testing.T) {
	p := paginate(1, 10, 25)
	assert.Equal(t, &PageRef{Page: 2, Limit: 10}, p.Next)
	assert.Nil(t, p.Prev)
	assert.Equal(t, int64(25), p.Total)

	p = paginate(3, 10, 25)
	assert.Nil(t, p.Next)
	assert.Equal(t, &PageRef{Page: 2, Limit: 10}, p.Prev)

	p = paginate(1, 10, 10)
	assert.Nil(t, p.Next)
}

func TestProject(t *testing.T) {
	type item struct {
		ID    string `json:"_id"`
		Title string `json:"title"`
		Extra string `json:"extra"`
	}
	items := []item{{ID: "1", Title: "a", Extra: "x"}}

	out, err := project(items, nil)
	assert.NoError(t, err)
	assert.Equal(t, items, out)

	out, err = project(items, []string{"title", "unknown"})
	assert.NoError(t, err)
	m := out.([]map[string]json.RawMessage)
	assert.Len(t, m[0], 2)
	assert.JSONEq(t, `"a"`, string(m[0]["title"]))
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "50MB", humanSize(50<<20))
	assert.Equal(t, "1000 bytes", humanSize(1000))
}
