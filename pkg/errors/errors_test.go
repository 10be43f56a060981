package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapMatchesKindAndCause(t *testing.T) {
	err := Wrap(ErrIO, fs.ErrNotExist, "reading %s", "/docs/a.txt")

	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, http.StatusInternalServerError, err.StatusCode)
	assert.Contains(t, err.Error(), "/docs/a.txt")
}

func TestWrappedAppErrorStillMatches(t *testing.T) {
	inner := Wrap(ErrIO, fs.ErrPermission, "listing %s", "/docs")
	outer := fmt.Errorf("building index: %w", inner)

	assert.ErrorIs(t, outer, ErrIO)
	assert.ErrorIs(t, outer, fs.ErrPermission)
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusCode(outer))
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"empty phrase", fmt.Errorf("token 1: %w", ErrEmptyPhrase), http.StatusBadRequest},
		{"not ready", ErrIndexNotReady, http.StatusServiceUnavailable},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"explicit status", New(ErrInternal, http.StatusTeapot, "custom"), http.StatusTeapot},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}
