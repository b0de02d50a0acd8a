package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestServiceError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ServiceError
		want string
	}{
		{
			name: "error without underlying error",
			err:  New(BadRequest, "invalid transition"),
			want: "BadRequest: invalid transition",
		},
		{
			name: "error with underlying error",
			err:  Wrap(Internal, "sweep failed", errors.New("deadline query failed")),
			want: "Internal: sweep failed: deadline query failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServiceError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(Internal, "test", underlying)

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestServiceError_HTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{BadRequest, http.StatusBadRequest},
		{NotFound, http.StatusNotFound},
		{Forbidden, http.StatusForbidden},
		{Conflict, http.StatusConflict},
		{Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		err := New(tt.kind, "x")
		if got := err.HTTPStatus(); got != tt.want {
			t.Errorf("HTTPStatus() for %s = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestIsAndKindOf(t *testing.T) {
	err := NewConflict("SLA already applied")
	if !Is(err, Conflict) {
		t.Errorf("Is(err, Conflict) = false, want true")
	}
	if KindOf(err) != Conflict {
		t.Errorf("KindOf(err) = %v, want Conflict", KindOf(err))
	}
	if Is(errors.New("plain"), Conflict) {
		t.Errorf("Is(plain error) = true, want false")
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("conversation", "c-1")
	if err.Kind != NotFound {
		t.Fatalf("expected NotFound kind, got %s", err.Kind)
	}
	want := "NotFound: conversation not found: c-1"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}
