package response

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, map[string]any{"id": "wf-1"})

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "wf-1", data["id"])
}

func TestErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, ErrNotFound.WithDetails("error", "workflow wf-9 not found"))

	assert.Equal(t, 404, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "workflow wf-9 not found", resp.Error.Details["error"])
}

func TestCatalogSentinelsStayUntouched(t *testing.T) {
	derived := ErrValidation.WithMessage("nodes[0].id: id is required")
	assert.Equal(t, "nodes[0].id: id is required", derived.Message)
	assert.Equal(t, "Validation failed", ErrValidation.Message)
	assert.Equal(t, 422, derived.StatusCode)

	detailed := ErrBadRequest.WithDetails("field", "bot_id")
	assert.Equal(t, "bot_id", detailed.Details["field"])
	assert.Nil(t, ErrBadRequest.Details)
}

func TestNoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	NoContent(rec)
	assert.Equal(t, 204, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}
