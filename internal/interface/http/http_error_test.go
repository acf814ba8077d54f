package http

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPError_ErrorPrefersWrappedErr(t *testing.T) {
	wrapped := errors.New("boom")
	e := NewHTTPError(http.StatusBadRequest, "bad_request", "bad request", wrapped)
	assert.Equal(t, "boom", e.Error())
}

func TestHTTPError_ErrorFallsBackToMessage(t *testing.T) {
	e := NewHTTPError(http.StatusBadRequest, "bad_request", "bad request", nil)
	assert.Equal(t, "bad request", e.Error())
}

func TestHTTPError_NilReceiverErrorIsEmpty(t *testing.T) {
	var e *HTTPError
	assert.Equal(t, "", e.Error())
}

func TestAsHTTPError_PassesThroughExistingHTTPError(t *testing.T) {
	original := NewHTTPError(http.StatusConflict, "conflict", "already exists", nil)
	got := asHTTPError(original)
	assert.Same(t, original, got)
}

func TestAsHTTPError_WrapsPlainErrorAsInternalError(t *testing.T) {
	got := asHTTPError(errors.New("unexpected"))
	assert.Equal(t, http.StatusInternalServerError, got.Status)
	assert.Equal(t, "internal_error", got.Code)
}

func TestAsHTTPError_NilErrorReturnsNil(t *testing.T) {
	assert.Nil(t, asHTTPError(nil))
}
