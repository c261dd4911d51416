package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestKinds(t *testing.T) {
	kinds := []error{ErrNotFound, ErrValidation, ErrConflict, ErrForbidden, ErrSelfAction}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"not found", NotFound("user", 7), ErrNotFound},
		{"validation", ValidationFailed("first_name", "First name is required."), ErrValidation},
		{"conflict", Conflict("email", "email is already registered"), ErrConflict},
		{"forbidden", Forbidden("Please log in first."), ErrForbidden},
		{"self action", SelfAction("You cannot delete your own account."), ErrSelfAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Wrapping by a lower layer must not hide the kind.
			wrapped := fmt.Errorf("service: %w", tt.err)
			for _, kind := range kinds {
				got := errors.Is(wrapped, kind)
				if got != (kind == tt.want) {
					t.Errorf("errors.Is(%v, %v) = %v", tt.err, kind, got)
				}
			}
		})
	}
}

func TestNotFoundMessage(t *testing.T) {
	if got, want := NotFound("user", 42).Error(), "user not found with id 42"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestField(t *testing.T) {
	err := Conflict("auth0_id", "account already exists")
	if err.Field != "auth0_id" || err.Error() != "account already exists" {
		t.Errorf("got Field=%q Message=%q", err.Field, err.Error())
	}
	if err := Forbidden("nope"); err.Field != "" {
		t.Errorf("Forbidden Field = %q, want empty", err.Field)
	}
}

func TestMessage(t *testing.T) {
	wrapped := fmt.Errorf("service/admin: deactivating: %w", SelfAction("You cannot deactivate your own account."))

	if got := Message(wrapped, "fallback"); got != "You cannot deactivate your own account." {
		t.Errorf("Message() = %q, want the AppError message", got)
	}
	if got := Message(errors.New("disk full"), "Something went wrong."); got != "Something went wrong." {
		t.Errorf("Message() = %q, want fallback", got)
	}
}
