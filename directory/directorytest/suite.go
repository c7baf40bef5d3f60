// Package directorytest holds a conformance suite every directory.Store
// implementation runs from its own tests.
package directorytest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/directory"
	"github.com/google/uuid"
)

// Run exercises store against the directory.Store contract. newStore must
// return an empty store on every call.
func Run(t *testing.T, newStore func(t *testing.T) directory.Store) {
	t.Helper()

	t.Run("InsertAndGet", func(t *testing.T) { testInsertAndGet(t, newStore(t)) })
	t.Run("InsertUserIDCollision", func(t *testing.T) { testUserIDCollision(t, newStore(t)) })
	t.Run("InsertIdentityTakenWritesNothing", func(t *testing.T) { testIdentityTaken(t, newStore(t)) })
	t.Run("UpdateLinksExistingUser", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("InsertIdentityIdempotent", func(t *testing.T) { testInsertIdentity(t, newStore(t)) })
	t.Run("ConcurrentCreateIsUnique", func(t *testing.T) { testConcurrentCreate(t, newStore(t)) })
}

func testInsertAndGet(t *testing.T, s directory.Store) {
	ctx := context.Background()
	created := time.Unix(1_700_000_000, 0).UTC()
	u := &directory.User{
		UserID:          uuid.NewString(),
		Links:           map[string]string{"steam": "7656"},
		GuestSecretHash: "$argon2id$stub",
		CreatedAt:       created,
	}
	if err := s.InsertUserIfAbsent(ctx, u); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.GetUser(ctx, u.UserID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != u.UserID || got.GuestSecretHash != u.GuestSecretHash || !got.CreatedAt.Equal(created) {
		t.Fatalf("unexpected user: %+v", got)
	}
	if got.Links["steam"] != "7656" || len(got.Links) != 1 {
		t.Fatalf("unexpected links: %v", got.Links)
	}

	owner, err := s.LookupIdentity(ctx, directory.Link{Provider: "steam", Subject: "7656"})
	if err != nil || owner != u.UserID {
		t.Fatalf("lookup: owner=%q err=%v", owner, err)
	}

	if _, err := s.GetUser(ctx, uuid.NewString()); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.LookupIdentity(ctx, directory.Link{Provider: "steam", Subject: "other"}); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testUserIDCollision(t *testing.T, s directory.Store) {
	ctx := context.Background()
	id := uuid.NewString()
	if err := s.InsertUserIfAbsent(ctx, &directory.User{UserID: id}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := s.InsertUserIfAbsent(ctx, &directory.User{UserID: id, Links: map[string]string{"apple": "a1"}})
	if !errors.Is(err, directory.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	if _, err := s.LookupIdentity(ctx, directory.Link{Provider: "apple", Subject: "a1"}); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("failed insert must not index links, got %v", err)
	}
}

func testIdentityTaken(t *testing.T, s directory.Store) {
	ctx := context.Background()
	first := &directory.User{UserID: uuid.NewString(), Links: map[string]string{"apple": "a1"}}
	if err := s.InsertUserIfAbsent(ctx, first); err != nil {
		t.Fatalf("insert: %v", err)
	}
	second := &directory.User{UserID: uuid.NewString(), Links: map[string]string{"apple": "a1"}}
	if err := s.InsertUserIfAbsent(ctx, second); !errors.Is(err, directory.ErrIdentityTaken) {
		t.Fatalf("expected ErrIdentityTaken, got %v", err)
	}
	if _, err := s.GetUser(ctx, second.UserID); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("losing insert must not leave a user row, got %v", err)
	}
}

func testUpdate(t *testing.T, s directory.Store) {
	ctx := context.Background()
	a := &directory.User{UserID: uuid.NewString(), Links: map[string]string{"guest": "g"}}
	b := &directory.User{UserID: uuid.NewString(), Links: map[string]string{"facebook": "f1"}}
	for _, u := range []*directory.User{a, b} {
		if err := s.InsertUserIfAbsent(ctx, u); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	steam := directory.Link{Provider: "steam", Subject: "s1"}
	if err := s.UpdateUserIfExists(ctx, a.UserID, steam); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := s.UpdateUserIfExists(ctx, a.UserID, steam); err != nil {
		t.Fatalf("re-link same identity should be a no-op: %v", err)
	}
	got, err := s.GetUser(ctx, a.UserID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Links["steam"] != "s1" || got.Links["guest"] != "g" {
		t.Fatalf("unexpected links after update: %v", got.Links)
	}
	if owner, _ := s.LookupIdentity(ctx, steam); owner != a.UserID {
		t.Fatalf("index not written, owner=%q", owner)
	}

	if err := s.UpdateUserIfExists(ctx, b.UserID, steam); !errors.Is(err, directory.ErrIdentityTaken) {
		t.Fatalf("expected ErrIdentityTaken, got %v", err)
	}
	if err := s.UpdateUserIfExists(ctx, a.UserID, directory.Link{Provider: "steam", Subject: "s2"}); !errors.Is(err, directory.ErrLinkConflict) {
		t.Fatalf("expected ErrLinkConflict, got %v", err)
	}
	if err := s.UpdateUserIfExists(ctx, uuid.NewString(), directory.Link{Provider: "apple", Subject: "x"}); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.LookupIdentity(ctx, directory.Link{Provider: "apple", Subject: "x"}); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("missing target must not be indexed, got %v", err)
	}
}

func testInsertIdentity(t *testing.T, s directory.Store) {
	ctx := context.Background()
	u := &directory.User{UserID: uuid.NewString()}
	other := &directory.User{UserID: uuid.NewString()}
	for _, x := range []*directory.User{u, other} {
		if err := s.InsertUserIfAbsent(ctx, x); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	l := directory.Link{Provider: "cognito", Subject: "c1"}
	for i := 0; i < 2; i++ {
		if err := s.InsertIdentityIfAbsent(ctx, l, u.UserID); err != nil {
			t.Fatalf("insert identity attempt %d: %v", i, err)
		}
	}
	if err := s.InsertIdentityIfAbsent(ctx, l, other.UserID); !errors.Is(err, directory.ErrIdentityTaken) {
		t.Fatalf("expected ErrIdentityTaken, got %v", err)
	}
	if err := s.InsertIdentityIfAbsent(ctx, directory.Link{Provider: "cognito", Subject: "c2"}, uuid.NewString()); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing owner, got %v", err)
	}
}

func testConcurrentCreate(t *testing.T, s directory.Store) {
	ctx := context.Background()
	const workers = 16
	link := map[string]string{"google_play": "p1"}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u := &directory.User{UserID: uuid.NewString(), Links: link}
			err := s.InsertUserIfAbsent(ctx, u)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, u.UserID)
				return
			}
			if !errors.Is(err, directory.ErrIdentityTaken) {
				errs = append(errs, err)
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %d", len(winners))
	}
	owner, err := s.LookupIdentity(ctx, directory.Link{Provider: "google_play", Subject: "p1"})
	if err != nil || owner != winners[0] {
		t.Fatalf("index owner=%q err=%v, want %q", owner, err, winners[0])
	}
}
