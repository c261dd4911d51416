package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/sumday/internal/apperror"
	"github.com/sakif/sumday/internal/model"
)

// adminFixture seeds admin id=1 and active user id=2.
func adminFixture() (*fakeUserRepo, *AdminService, model.User, model.User) {
	repo := newFakeUserRepo()
	admin := repo.seed(model.User{ID: 1, Auth0ID: "auth0|admin", Email: "admin@example.com", IsAdministrator: true, IsActive: true})
	user := repo.seed(model.User{ID: 2, Auth0ID: "auth0|user", Email: "user@example.com", IsActive: true})
	return repo, NewAdminService(repo, testLogger()), admin, user
}

func TestAdminList_NewestFirst(t *testing.T) {
	_, svc, admin, user := adminFixture()

	users, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(users) != 2 || users[0].ID != user.ID || users[1].ID != admin.ID {
		t.Errorf("List() = %+v", users)
	}
}

func TestAdminDeactivate_Other(t *testing.T) {
	repo, svc, admin, user := adminFixture()

	got, err := svc.Deactivate(context.Background(), admin.ID, user.ID)
	if err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	if got.Email != user.Email {
		t.Errorf("Deactivate() returned %+v", got)
	}

	after := repo.row(t, user.ID)
	if after.IsActive {
		t.Error("user still active")
	}
	if !after.UpdatedAt.After(user.UpdatedAt) {
		t.Error("UpdatedAt did not advance")
	}
}

func TestAdminSelfActions_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		call    func(*AdminService, int64) error
		message string
	}{
		{"deactivate", func(s *AdminService, id int64) error {
			_, err := s.Deactivate(context.Background(), id, id)
			return err
		}, MsgCannotDeactivateSelf},
		{"delete", func(s *AdminService, id int64) error {
			_, err := s.Delete(context.Background(), id, id)
			return err
		}, MsgCannotDeleteSelf},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, svc, admin, _ := adminFixture()

			err := tt.call(svc, admin.ID)
			if !errors.Is(err, apperror.ErrSelfAction) {
				t.Fatalf("error = %v, want self-action", err)
			}
			if got := apperror.Message(err, ""); got != tt.message {
				t.Errorf("message = %q, want %q", got, tt.message)
			}
			if after := repo.row(t, admin.ID); after != admin {
				t.Errorf("admin row changed: %+v → %+v", admin, after)
			}
			if repo.writes != 0 {
				t.Errorf("writes = %d, want 0", repo.writes)
			}
		})
	}
}

func TestAdminSelfAction_CheckedBeforeLookup(t *testing.T) {
	repo, svc, _, _ := adminFixture()
	repo.err = errors.New("database must not be touched")

	if _, err := svc.Deactivate(context.Background(), 7, 7); !errors.Is(err, apperror.ErrSelfAction) {
		t.Errorf("Deactivate() error = %v, want self-action", err)
	}
	if _, err := svc.Delete(context.Background(), 7, 7); !errors.Is(err, apperror.ErrSelfAction) {
		t.Errorf("Delete() error = %v, want self-action", err)
	}
}

func TestAdminActivate_AlreadyActiveIsNoop(t *testing.T) {
	repo, svc, admin, user := adminFixture()

	got, err := svc.Activate(context.Background(), admin.ID, user.ID)
	if err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if !got.IsActive {
		t.Error("returned user not active")
	}
	if after := repo.row(t, user.ID); after != user {
		t.Errorf("row changed: %+v → %+v", user, after)
	}
	if repo.writes != 0 {
		t.Errorf("writes = %d, want 0", repo.writes)
	}
}

func TestAdminActivate_Inactive(t *testing.T) {
	repo, svc, admin, _ := adminFixture()
	inactive := repo.seed(model.User{Auth0ID: "auth0|off", Email: "off@example.com", IsActive: false})

	if _, err := svc.Activate(context.Background(), admin.ID, inactive.ID); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	after := repo.row(t, inactive.ID)
	if !after.IsActive || !after.UpdatedAt.After(inactive.UpdatedAt) {
		t.Errorf("row = %+v", after)
	}
}

func TestAdminDelete_Other(t *testing.T) {
	repo, svc, admin, user := adminFixture()

	deleted, err := svc.Delete(context.Background(), admin.ID, user.ID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted.Email != user.Email {
		t.Errorf("Delete() returned %+v", deleted)
	}
	if _, ok := repo.users[user.ID]; ok {
		t.Error("user still stored")
	}
}

func TestAdminUnknownTarget(t *testing.T) {
	_, svc, admin, _ := adminFixture()
	ctx := context.Background()

	if _, err := svc.Activate(ctx, admin.ID, 99); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Activate() error = %v, want not found", err)
	}
	if _, err := svc.Deactivate(ctx, admin.ID, 99); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Deactivate() error = %v, want not found", err)
	}
	if _, err := svc.Delete(ctx, admin.ID, 99); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Delete() error = %v, want not found", err)
	}
}
