package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/sumday/internal/apperror"
	"github.com/sakif/sumday/internal/model"
	"github.com/sakif/sumday/internal/repository"
	"github.com/sakif/sumday/internal/timezone"
)

// Messages surfaced to users by the services.
const (
	MsgLoginFirst           = "Please log in first."
	MsgFieldsRequired       = "All fields are required."
	MsgInvalidTimezone      = "Invalid timezone selected."
	MsgNameTooLong          = "Names can be at most 100 characters."
	MsgCannotDeactivateSelf = "You cannot deactivate your own account."
	MsgCannotDeleteSelf     = "You cannot delete your own account."
)

// MaxNameLength is the width of the first_name and last_name columns, in
// characters.
const MaxNameLength = 100

// ProfileInput is the editable part of a user.
type ProfileInput struct {
	FirstName string
	LastName  string
	Timezone  string
}

// validate trims the fields and checks them. It returns the trimmed copy.
func (in ProfileInput) validate() (ProfileInput, error) {
	out := ProfileInput{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Timezone:  strings.TrimSpace(in.Timezone),
	}
	switch {
	case out.FirstName == "":
		return out, apperror.ValidationFailed("first_name", MsgFieldsRequired)
	case out.LastName == "":
		return out, apperror.ValidationFailed("last_name", MsgFieldsRequired)
	case out.Timezone == "":
		return out, apperror.ValidationFailed("timezone", MsgFieldsRequired)
	case utf8.RuneCountInString(out.FirstName) > MaxNameLength:
		return out, apperror.ValidationFailed("first_name", MsgNameTooLong)
	case utf8.RuneCountInString(out.LastName) > MaxNameLength:
		return out, apperror.ValidationFailed("last_name", MsgNameTooLong)
	case !timezone.Valid(out.Timezone):
		return out, apperror.ValidationFailed("timezone", MsgInvalidTimezone)
	}
	return out, nil
}

// ProfileService lets users edit their own account.
type ProfileService struct {
	users  repository.UserRepository
	logger *slog.Logger
}

// NewProfileService creates a ProfileService.
func NewProfileService(users repository.UserRepository, logger *slog.Logger) *ProfileService {
	return &ProfileService{users: users, logger: logger}
}

// Update replaces the user's names and timezone. All three are required and
// the timezone must be in the catalog. On any validation failure the row is
// left untouched, UpdatedAt included.
func (s *ProfileService) Update(ctx context.Context, userID int64, in ProfileInput) (*model.User, error) {
	fields, err := in.validate()
	if err != nil {
		return nil, err
	}

	user, err := s.users.Update(ctx, userID, func(u *model.User) error {
		u.FirstName = fields.FirstName
		u.LastName = fields.LastName
		u.Timezone = fields.Timezone
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("service/profile: updating user %d: %w", userID, err)
	}

	s.logger.Info("profile updated", slog.Int64("userID", userID))
	return user, nil
}

// ToggleAdministrator flips the user's own administrator flag.
//
// Any logged-in user can do this to themselves. It is logged at warn level
// so grants show up in the logs.
func (s *ProfileService) ToggleAdministrator(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.users.Update(ctx, userID, func(u *model.User) error {
		u.IsAdministrator = !u.IsAdministrator
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("service/profile: toggling administrator for user %d: %w", userID, err)
	}

	s.logger.Warn("administrator flag changed by the user themselves",
		slog.Int64("userID", user.ID),
		slog.String("email", user.Email),
		slog.Bool("isAdministrator", user.IsAdministrator),
	)
	return user, nil
}
