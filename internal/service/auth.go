// Package service holds the business rules of the app.
//
// Handlers translate HTTP into calls on these services and the services talk
// to the repository. Nothing in here knows about requests, cookies or
// templates:
//
//	AuthHandler    → AuthService    → UserRepository
//	ProfileHandler → ProfileService ↗
//	AdminHandler   → AdminService   ↗
//
// User-facing failures come back as *apperror.AppError values whose Message
// is safe to show in a flash. Anything else is an internal error.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/sumday/internal/apperror"
	"github.com/sakif/sumday/internal/auth"
	"github.com/sakif/sumday/internal/model"
	"github.com/sakif/sumday/internal/repository"
)

// LoginOutcome says what the handler should do after a successful exchange.
type LoginOutcome int

const (
	// LoginSucceeded: known, active user. Put their ID in the session.
	LoginSucceeded LoginOutcome = iota
	// LoginNeedsRegistration: unknown subject. Keep the claims and send the
	// browser to /register.
	LoginNeedsRegistration
	// LoginDeactivated: known user with IsActive=false. No session.
	LoginDeactivated
)

func (o LoginOutcome) String() string {
	switch o {
	case LoginSucceeded:
		return "succeeded"
	case LoginNeedsRegistration:
		return "needs_registration"
	case LoginDeactivated:
		return "deactivated"
	default:
		return fmt.Sprintf("LoginOutcome(%d)", int(o))
	}
}

// LoginResult is returned by CompleteLogin. User is nil for
// LoginNeedsRegistration; Pending is set only for it.
type LoginResult struct {
	Outcome LoginOutcome
	User    *model.User
	Pending *auth.PendingRegistration
}

// RegistrationInput is the form a new user fills in after their first login.
type RegistrationInput struct {
	FirstName string
	LastName  string
	Timezone  string // empty means model.DefaultTimezone
}

// AuthService decides what a verified identity means for our user table.
type AuthService struct {
	users  repository.UserRepository
	logger *slog.Logger
}

// NewAuthService creates an AuthService.
func NewAuthService(users repository.UserRepository, logger *slog.Logger) *AuthService {
	return &AuthService{users: users, logger: logger}
}

// CompleteLogin looks up the identity's subject. It never creates or changes
// a row: logging in twice is the same as logging in once.
func (s *AuthService) CompleteLogin(ctx context.Context, identity *auth.Identity) (*LoginResult, error) {
	if identity == nil || identity.Subject == "" {
		return nil, errors.New("service/auth: identity must have a subject")
	}

	user, err := s.users.GetBySubject(ctx, identity.Subject)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		s.logger.Info("unknown subject, registration required", slog.String("subject", identity.Subject))
		return &LoginResult{
			Outcome: LoginNeedsRegistration,
			Pending: &auth.PendingRegistration{
				Subject: identity.Subject,
				Email:   identity.Email,
				Name:    identity.Name,
			},
		}, nil
	case err != nil:
		return nil, fmt.Errorf("service/auth: looking up subject %s: %w", identity.Subject, err)
	}

	if !user.IsActive {
		s.logger.Warn("deactivated user attempted login", slog.Int64("userID", user.ID))
		return &LoginResult{Outcome: LoginDeactivated, User: user}, nil
	}

	s.logger.Info("user logged in", slog.Int64("userID", user.ID), slog.String("email", user.Email))
	return &LoginResult{Outcome: LoginSucceeded, User: user}, nil
}

// Register creates the local account for a pending registration.
//
// Validation failures and duplicate subject/email come back as
// *apperror.AppError and nothing is written.
func (s *AuthService) Register(ctx context.Context, pending *auth.PendingRegistration, in RegistrationInput) (*model.User, error) {
	if pending == nil || pending.Subject == "" || pending.Email == "" {
		return nil, apperror.Forbidden(MsgLoginFirst)
	}

	fields := ProfileInput{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Timezone:  strings.TrimSpace(in.Timezone),
	}
	if fields.Timezone == "" {
		fields.Timezone = model.DefaultTimezone
	}
	fields, err := fields.validate()
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Auth0ID:   pending.Subject,
		Email:     pending.Email,
		FirstName: fields.FirstName,
		LastName:  fields.LastName,
		Timezone:  fields.Timezone,
		IsActive:  true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating user for %s: %w", pending.Subject, err)
	}

	s.logger.Info("user registered",
		slog.Int64("userID", user.ID),
		slog.String("email", user.Email),
	)
	return user, nil
}
