package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sakif/sumday/internal/apperror"
	"github.com/sakif/sumday/internal/model"
)

// countingRepo is an in-memory UserRepository that counts GetByID calls.
type countingRepo struct {
	users    map[int64]model.User
	getCalls int
}

func (r *countingRepo) Create(_ context.Context, u *model.User) error {
	u.ID = int64(len(r.users) + 1)
	r.users[u.ID] = *u
	return nil
}

func (r *countingRepo) GetByID(_ context.Context, id int64) (*model.User, error) {
	r.getCalls++
	u, ok := r.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return &u, nil
}

func (r *countingRepo) GetBySubject(_ context.Context, subject string) (*model.User, error) {
	for _, u := range r.users {
		if u.Auth0ID == subject {
			return &u, nil
		}
	}
	return nil, apperror.NotFound("user", subject)
}

func (r *countingRepo) List(context.Context) ([]model.User, error) {
	out := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

func (r *countingRepo) Update(_ context.Context, id int64, mutate func(*model.User) error) (*model.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	if err := mutate(&u); err != nil {
		return nil, err
	}
	r.users[id] = u
	return &u, nil
}

func (r *countingRepo) Delete(_ context.Context, id int64) (*model.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	delete(r.users, id)
	return &u, nil
}

func newTestCache(t *testing.T) (*Users, *countingRepo) {
	t.Helper()
	repo := &countingRepo{users: map[int64]model.User{
		1: {ID: 1, Email: "ada@example.com", IsActive: true},
	}}
	c, err := NewUsers(repo, 100, time.Minute)
	if err != nil {
		t.Fatalf("NewUsers() error = %v", err)
	}
	t.Cleanup(c.Close)
	return c, repo
}

func TestGetByID_SecondCallIsCached(t *testing.T) {
	c, repo := newTestCache(t)
	ctx := context.Background()

	if _, err := c.GetByID(ctx, 1); err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if _, err := c.GetByID(ctx, 1); err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	if repo.getCalls != 1 {
		t.Errorf("repository GetByID called %d times, want 1", repo.getCalls)
	}
}

func TestGetByID_ReturnsCopies(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	first, _ := c.GetByID(ctx, 1)
	first.Email = "mutated@example.com"

	second, _ := c.GetByID(ctx, 1)
	if second.Email != "ada@example.com" {
		t.Errorf("cached user was mutated through a returned pointer: %q", second.Email)
	}
}

func TestGetByID_NotFoundIsNotCached(t *testing.T) {
	c, repo := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := c.GetByID(ctx, 99); !errors.Is(err, apperror.ErrNotFound) {
			t.Fatalf("GetByID(99) error = %v, want ErrNotFound", err)
		}
	}
	if repo.getCalls != 2 {
		t.Errorf("repository GetByID called %d times, want 2", repo.getCalls)
	}
}

func TestUpdate_Invalidates(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if _, err := c.GetByID(ctx, 1); err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	_, err := c.Update(ctx, 1, func(u *model.User) error {
		u.IsActive = false
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, _ := c.GetByID(ctx, 1)
	if got.IsActive {
		t.Error("GetByID() served a stale user after Update")
	}
}

func TestDelete_Invalidates(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if _, err := c.GetByID(ctx, 1); err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if _, err := c.Delete(ctx, 1); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := c.GetByID(ctx, 1); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() after Delete error = %v, want ErrNotFound", err)
	}
}

// pausingRepo blocks the first GetByID after it has read the row, so a test
// can commit a write in the window before the cache stores that row.
type pausingRepo struct {
	*countingRepo
	read   chan struct{}
	resume chan struct{}
	once   sync.Once
}

func (r *pausingRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := r.countingRepo.GetByID(ctx, id)
	r.once.Do(func() {
		close(r.read)
		<-r.resume
	})
	return u, err
}

func TestGetByID_WriteDuringMissWins(t *testing.T) {
	tests := []struct {
		name  string
		write func(c *Users) error
		check func(t *testing.T, got *model.User, err error)
	}{
		{
			name: "update",
			write: func(c *Users) error {
				_, err := c.Update(context.Background(), 1, func(u *model.User) error {
					u.IsActive = false
					u.IsAdministrator = false
					return nil
				})
				return err
			},
			check: func(t *testing.T, got *model.User, err error) {
				if err != nil {
					t.Fatalf("GetByID() error = %v", err)
				}
				if got.IsActive || got.IsAdministrator {
					t.Errorf("cache served the pre-update row: active=%v admin=%v", got.IsActive, got.IsAdministrator)
				}
			},
		},
		{
			name: "delete",
			write: func(c *Users) error {
				_, err := c.Delete(context.Background(), 1)
				return err
			},
			check: func(t *testing.T, got *model.User, err error) {
				if !errors.Is(err, apperror.ErrNotFound) {
					t.Errorf("GetByID() = %+v, %v; want ErrNotFound", got, err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &pausingRepo{
				countingRepo: &countingRepo{users: map[int64]model.User{
					1: {ID: 1, Email: "ada@example.com", IsActive: true, IsAdministrator: true},
				}},
				read:   make(chan struct{}),
				resume: make(chan struct{}),
			}
			c, err := NewUsers(repo, 100, time.Minute)
			if err != nil {
				t.Fatalf("NewUsers() error = %v", err)
			}
			t.Cleanup(c.Close)

			done := make(chan struct{})
			go func() {
				defer close(done)
				c.GetByID(context.Background(), 1)
			}()

			<-repo.read
			if err := tt.write(c); err != nil {
				t.Fatalf("write error = %v", err)
			}
			close(repo.resume)
			<-done

			got, err := c.GetByID(context.Background(), 1)
			tt.check(t, got, err)
		})
	}
}
