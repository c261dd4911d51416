package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/sumday/internal/apperror"
	"github.com/sakif/sumday/internal/model"
	"github.com/sakif/sumday/internal/repository"
)

// AdminService implements the user management panel. Callers must already
// have checked that the actor is an active administrator.
type AdminService struct {
	users  repository.UserRepository
	logger *slog.Logger
}

// NewAdminService creates an AdminService.
func NewAdminService(users repository.UserRepository, logger *slog.Logger) *AdminService {
	return &AdminService{users: users, logger: logger}
}

// List returns every user, newest first.
func (s *AdminService) List(ctx context.Context) ([]model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/admin: listing users: %w", err)
	}
	return users, nil
}

// Activate marks the target active. Activating an already active user is a
// successful no-op and leaves UpdatedAt alone.
func (s *AdminService) Activate(ctx context.Context, actorID, targetID int64) (*model.User, error) {
	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("service/admin: loading user %d: %w", targetID, err)
	}
	if target.IsActive {
		return target, nil
	}

	target, err = s.setActive(ctx, targetID, true)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user activated",
		slog.Int64("actorID", actorID),
		slog.Int64("userID", target.ID),
		slog.String("email", target.Email),
	)
	return target, nil
}

// Deactivate marks the target inactive. Their existing session stops working
// on its next request. Administrators can't deactivate themselves.
func (s *AdminService) Deactivate(ctx context.Context, actorID, targetID int64) (*model.User, error) {
	if actorID == targetID {
		return nil, apperror.SelfAction(MsgCannotDeactivateSelf)
	}

	target, err := s.setActive(ctx, targetID, false)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user deactivated",
		slog.Int64("actorID", actorID),
		slog.Int64("userID", target.ID),
		slog.String("email", target.Email),
	)
	return target, nil
}

// Delete removes the target and returns the deleted row. Administrators
// can't delete themselves.
func (s *AdminService) Delete(ctx context.Context, actorID, targetID int64) (*model.User, error) {
	if actorID == targetID {
		return nil, apperror.SelfAction(MsgCannotDeleteSelf)
	}

	deleted, err := s.users.Delete(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("service/admin: deleting user %d: %w", targetID, err)
	}
	s.logger.Info("user deleted",
		slog.Int64("actorID", actorID),
		slog.Int64("userID", deleted.ID),
		slog.String("email", deleted.Email),
	)
	return deleted, nil
}

func (s *AdminService) setActive(ctx context.Context, id int64, active bool) (*model.User, error) {
	user, err := s.users.Update(ctx, id, func(u *model.User) error {
		u.IsActive = active
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("service/admin: setting active=%t on user %d: %w", active, id, err)
	}
	return user, nil
}
