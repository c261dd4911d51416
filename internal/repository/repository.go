package repository

import (
	"context"

	"github.com/sakif/sumday/internal/model"
)

// UserRepository is the persistence boundary for users.
//
// Lookups return an error wrapping apperror.ErrNotFound when no row matches.
// Create returns apperror.ErrConflict when the subject or email is taken.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetBySubject(ctx context.Context, subject string) (*model.User, error)
	// List returns every user, newest first.
	List(ctx context.Context) ([]model.User, error)
	// Update loads the user, applies mutate and writes the result back in a
	// single transaction, refreshing UpdatedAt. If mutate returns an error
	// nothing is written.
	Update(ctx context.Context, id int64, mutate func(*model.User) error) (*model.User, error)
	// Delete removes the user and returns the row as it was.
	Delete(ctx context.Context, id int64) (*model.User, error)
}
