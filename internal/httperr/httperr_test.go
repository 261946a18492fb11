package httperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadRequest_Format(t *testing.T) {
	err := BadRequest("title must be at most %d characters", 100)
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.Equal(t, "title must be at most 100 characters", err.Message)
	assert.Empty(t, err.Refid)
}

func TestInternal_CarriesRefidAndCause(t *testing.T) {
	cause := errors.New("pq: connection refused")
	err := Internal(cause)

	require.NotEmpty(t, err.Refid)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.Equal(t, "internal server error", err.Message)
	assert.ErrorIs(t, err, cause)

	other := Internal(cause)
	assert.NotEqual(t, err.Refid, other.Refid)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, StatusOf(Forbidden("not your post")))
	assert.Equal(t, http.StatusNotFound, StatusOf(NotFound("no such post")))
	assert.Equal(t, http.StatusBadGateway, StatusOf(BadGateway("cdn returned 503")))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("plain")))
}

func TestStatusOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("update privacy: %w", BadRequest("same privacy"))
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))
}

func TestUnprocessable_Detail(t *testing.T) {
	err := Unprocessable([]ValidationDetail{
		{Loc: []string{"body", "file"}, Msg: "field required", Type: "value_error.missing"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, err.Status)
	details, ok := err.Detail.([]ValidationDetail)
	require.True(t, ok)
	require.Len(t, details, 1)
	assert.Equal(t, []string{"body", "file"}, details[0].Loc)
}
