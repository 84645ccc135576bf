package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors_FallbackMessages(t *testing.T) {
	assert.Equal(t, "Resource not found", NotFound("").Message)
	assert.Equal(t, "inspection gone", NotFound("inspection gone").Message)
	assert.Equal(t, http.StatusUnprocessableEntity, Unprocessable("").StatusCode)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", PayloadTooLarge("").Code)
}

func TestValidationError_KeepsDetails(t *testing.T) {
	err := ValidationError("bad batch",
		FieldError{Field: "inspections[0]", Message: "id is required"},
		FieldError{Field: "inspections[2]", Message: "duplicate id"},
	)
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Len(t, err.Details, 2)

	assert.Nil(t, ValidationError("empty").Details)
}

func TestToJSON_Envelope(t *testing.T) {
	err := Forbidden("").WithCode("INSUFFICIENT_ROLE").WithMeta("required_roles", []string{"owner"})

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string                 `json:"code"`
			Message string                 `json:"message"`
			Meta    map[string]interface{} `json:"meta"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(err.ToJSON(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "INSUFFICIENT_ROLE", body.Error.Code)
	assert.Equal(t, "Access denied", body.Error.Message)
	assert.Equal(t, []interface{}{"owner"}, body.Error.Meta["required_roles"])
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusConflict, StatusOf(Conflict("busy")))
	assert.Equal(t, http.StatusNotFound, StatusOf(fmt.Errorf("lookup: %w", NotFound(""))))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("boom")))
}
