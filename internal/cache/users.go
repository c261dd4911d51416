// Package cache keeps recently loaded users in memory.
//
// Every authenticated request loads the session's user by primary key, so
// the lookup is the hottest query in the app. Users wraps any
// repository.UserRepository with a ristretto cache in front of GetByID and
// drops the entry whenever this process writes the row.
//
// Entries carry a short TTL. A second instance of the app writing to the same
// database can't invalidate our copy, so the TTL bounds how long a
// deactivation made elsewhere takes to be noticed here.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/sakif/sumday/internal/model"
	"github.com/sakif/sumday/internal/repository"
)

var _ repository.UserRepository = (*Users)(nil)

// Users is a read-through cache over a UserRepository.
//
// A miss reads the row and then stores it. A write that commits between
// those two steps must win, otherwise the old row would be served until the
// TTL runs out. Every write bumps gen, and a miss only stores its row if gen
// is unchanged since the read began. mu orders that check against the
// write's bump and Del.
type Users struct {
	next  repository.UserRepository
	cache *ristretto.Cache[int64, model.User]
	ttl   time.Duration

	mu  sync.Mutex
	gen uint64
}

// NewUsers wraps next. maxEntries bounds memory; each user costs 1.
func NewUsers(next repository.UserRepository, maxEntries int64, ttl time.Duration) (*Users, error) {
	c, err := ristretto.NewCache(&ristretto.Config[int64, model.User]{
		NumCounters: maxEntries * 10, // ristretto recommends ~10x the expected item count
		MaxCost:     maxEntries,
		BufferItems: 64,
		// Cost is an entry count, not bytes.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: creating user cache: %w", err)
	}
	return &Users{next: next, cache: c, ttl: ttl}, nil
}

// Close stops ristretto's background goroutines.
func (u *Users) Close() {
	u.cache.Close()
}

// GetByID serves from the cache when possible. Values are stored and
// returned by copy so callers can't mutate the cached user.
func (u *Users) GetByID(ctx context.Context, id int64) (*model.User, error) {
	if cached, ok := u.cache.Get(id); ok {
		return &cached, nil
	}

	u.mu.Lock()
	gen := u.gen
	u.mu.Unlock()

	user, err := u.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.gen == gen {
		u.cache.SetWithTTL(id, *user, 1, u.ttl)
		// Sets are buffered; Wait makes the entry visible to the next request
		// and lands it before any Del that follows.
		u.cache.Wait()
	}
	return user, nil
}

func (u *Users) Create(ctx context.Context, user *model.User) error {
	return u.next.Create(ctx, user)
}

func (u *Users) GetBySubject(ctx context.Context, subject string) (*model.User, error) {
	return u.next.GetBySubject(ctx, subject)
}

func (u *Users) List(ctx context.Context) ([]model.User, error) {
	return u.next.List(ctx)
}

func (u *Users) Update(ctx context.Context, id int64, mutate func(*model.User) error) (*model.User, error) {
	defer u.invalidate(id)
	return u.next.Update(ctx, id, mutate)
}

func (u *Users) Delete(ctx context.Context, id int64) (*model.User, error) {
	defer u.invalidate(id)
	return u.next.Delete(ctx, id)
}

// invalidate runs after a write, committed or not.
func (u *Users) invalidate(id int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.gen++
	u.cache.Del(id)
}
