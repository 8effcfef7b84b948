package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"malformed", fmt.Errorf("parsing: %w", ErrMalformedQuery), http.StatusBadRequest},
		{"operator", fmt.Errorf("range: %w", ErrUnsupportedOperator), http.StatusBadRequest},
		{"too long", ErrQueryTooLong, http.StatusRequestEntityTooLarge},
		{"unavailable", ErrUnavailable, http.StatusServiceUnavailable},
		{"app error wins", New(ErrInvalidInput, http.StatusConflict, "taken"), http.StatusConflict},
		{"unknown", context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestAppErrorMessage(t *testing.T) {
	err := Newf(ErrInvalidInput, http.StatusBadRequest, "field %q unknown", "votes")
	if got, want := err.Error(), `invalid input: field "votes" unknown`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
