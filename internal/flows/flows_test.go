package flows

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/directory"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/provider"
)

type memStore struct {
	mu    sync.Mutex
	users map[string]*directory.User
	index map[directory.Link]string
	// takenIDs makes InsertUserIfAbsent report these ids as existing.
	takenIDs map[string]bool
	fail     error
	inserts  int
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]*directory.User{},
		index:    map[directory.Link]string{},
		takenIDs: map[string]bool{},
	}
}

func (m *memStore) GetUser(_ context.Context, id string) (*directory.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return u, nil
}

func (m *memStore) InsertUserIfAbsent(_ context.Context, u *directory.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	if _, ok := m.users[u.UserID]; ok || m.takenIDs[u.UserID] {
		return directory.ErrUserExists
	}
	for p, s := range u.Links {
		if _, ok := m.index[directory.Link{Provider: p, Subject: s}]; ok {
			return directory.ErrIdentityTaken
		}
	}
	m.users[u.UserID] = u
	for p, s := range u.Links {
		m.index[directory.Link{Provider: p, Subject: s}] = u.UserID
	}
	m.inserts++
	return nil
}

func (m *memStore) UpdateUserIfExists(_ context.Context, id string, l directory.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return directory.ErrNotFound
	}
	if owner, ok := m.index[l]; ok && owner != id {
		return directory.ErrIdentityTaken
	}
	if cur, ok := u.Links[l.Provider]; ok && cur != l.Subject {
		return directory.ErrLinkConflict
	}
	if u.Links == nil {
		u.Links = map[string]string{}
	}
	u.Links[l.Provider] = l.Subject
	m.index[l] = id
	return nil
}

func (m *memStore) LookupIdentity(_ context.Context, l directory.Link) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return "", m.fail
	}
	owner, ok := m.index[l]
	if !ok {
		return "", directory.ErrNotFound
	}
	return owner, nil
}

func (m *memStore) InsertIdentityIfAbsent(ctx context.Context, l directory.Link, id string) error {
	return m.UpdateUserIfExists(ctx, id, l)
}

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func testResolveDeps(store *memStore, linkOwner string) ResolveDeps {
	return ResolveDeps{
		Store: store,
		VerifyLinkingToken: func(_ context.Context, token string) (string, error) {
			if token != "valid-link" {
				return "", errors.New("bad linking token")
			}
			return linkOwner, nil
		},
		NewUserID: sequentialIDs("user"),
		Now:       func() time.Time { return time.Unix(1_700_000_000, 0) },
	}
}

var steamIdentity = provider.Identity{Provider: provider.Steam, Subject: "7656", Scope: provider.ScopeAuthenticated}

func TestResolveCreatesThenFindsExisting(t *testing.T) {
	store := newMemStore()
	deps := testResolveDeps(store, "")

	first := RunResolve(context.Background(), steamIdentity, "", deps)
	if first.Failure != ResolveFailureNone || first.Outcome != ResolvedCreated {
		t.Fatalf("expected create, got %+v", first)
	}
	second := RunResolve(context.Background(), steamIdentity, "", deps)
	if second.Outcome != ResolvedExisting || second.UserID != first.UserID {
		t.Fatalf("expected existing %s, got %+v", first.UserID, second)
	}
	if store.inserts != 1 {
		t.Fatalf("expected one user row, got %d", store.inserts)
	}
}

func TestResolveExistingBeatsLinking(t *testing.T) {
	store := newMemStore()
	store.users["owner"] = &directory.User{UserID: "owner", Links: map[string]string{"steam": "7656"}}
	store.index[directory.Link{Provider: "steam", Subject: "7656"}] = "owner"
	store.users["other"] = &directory.User{UserID: "other"}

	res := RunResolve(context.Background(), steamIdentity, "valid-link", testResolveDeps(store, "other"))
	if res.UserID != "owner" || res.Outcome != ResolvedExisting {
		t.Fatalf("expected existing owner, got %+v", res)
	}
	if _, linked := store.users["other"].Links["steam"]; linked {
		t.Fatal("linking target must not be modified when the identity already exists")
	}
}

func TestResolveLinking(t *testing.T) {
	store := newMemStore()
	store.users["target"] = &directory.User{UserID: "target", Links: map[string]string{}}

	res := RunResolve(context.Background(), steamIdentity, "valid-link", testResolveDeps(store, "target"))
	if res.Failure != ResolveFailureNone || res.Outcome != ResolvedLinked || res.UserID != "target" {
		t.Fatalf("expected link to target, got %+v", res)
	}
	if store.index[directory.Link{Provider: "steam", Subject: "7656"}] != "target" {
		t.Fatal("index not written")
	}
	if store.inserts != 0 {
		t.Fatal("linking must not create users")
	}
}

func TestResolveLinkingFailures(t *testing.T) {
	t.Run("invalid token", func(t *testing.T) {
		store := newMemStore()
		res := RunResolve(context.Background(), steamIdentity, "forged", testResolveDeps(store, "target"))
		if res.Failure != ResolveFailureLinkToken {
			t.Fatalf("expected link token failure, got %+v", res)
		}
		if store.inserts != 0 || len(store.index) != 0 {
			t.Fatal("failed link must not write")
		}
	})
	t.Run("missing target", func(t *testing.T) {
		store := newMemStore()
		res := RunResolve(context.Background(), steamIdentity, "valid-link", testResolveDeps(store, "ghost"))
		if res.Failure != ResolveFailureLinkTarget {
			t.Fatalf("expected link target failure, got %+v", res)
		}
		if store.inserts != 0 || len(store.index) != 0 {
			t.Fatal("failed link must not write")
		}
	})
	t.Run("conflict", func(t *testing.T) {
		store := newMemStore()
		store.users["target"] = &directory.User{UserID: "target", Links: map[string]string{"steam": "other-steam"}}
		res := RunResolve(context.Background(), steamIdentity, "valid-link", testResolveDeps(store, "target"))
		if res.Failure != ResolveFailureLinkConflict {
			t.Fatalf("expected link conflict, got %+v", res)
		}
	})
}

func TestResolveRetriesUserIDCollisions(t *testing.T) {
	store := newMemStore()
	store.takenIDs["user-1"] = true
	store.takenIDs["user-2"] = true

	res := RunResolve(context.Background(), steamIdentity, "", testResolveDeps(store, ""))
	if res.Failure != ResolveFailureNone || res.UserID != "user-3" || res.Collisions != 2 {
		t.Fatalf("expected user-3 after two collisions, got %+v", res)
	}
}

func TestResolveCreateExhausted(t *testing.T) {
	store := newMemStore()
	deps := testResolveDeps(store, "")
	deps.NewUserID = func() string { return "always-taken" }
	store.takenIDs["always-taken"] = true

	res := RunResolve(context.Background(), steamIdentity, "", deps)
	if res.Failure != ResolveFailureCreateExhausted || res.Collisions != DefaultMaxCreateAttempts {
		t.Fatalf("expected exhaustion after %d attempts, got %+v", DefaultMaxCreateAttempts, res)
	}
}

func TestResolveCanonicalAndMintedGuest(t *testing.T) {
	store := newMemStore()
	deps := testResolveDeps(store, "")

	canonical := RunResolve(context.Background(), provider.Identity{Provider: provider.Guest, Subject: "g1", Canonical: true}, "", deps)
	if canonical.UserID != "g1" || store.inserts != 0 {
		t.Fatalf("canonical identity must not touch the directory, got %+v", canonical)
	}

	minted := RunResolve(context.Background(), provider.Identity{Provider: provider.Guest, GuestSecretHash: "$hash"}, "valid-link", deps)
	if minted.Outcome != ResolvedCreated {
		t.Fatalf("expected new guest, got %+v", minted)
	}
	u := store.users[minted.UserID]
	if u.GuestSecretHash != "$hash" || len(u.Links) != 0 || len(store.index) != 0 {
		t.Fatalf("minted guest must carry its hash and no index entry: %+v", u)
	}
}

func TestResolveStoreFailure(t *testing.T) {
	store := newMemStore()
	store.fail = directory.ErrUnavailable
	res := RunResolve(context.Background(), steamIdentity, "", testResolveDeps(store, ""))
	if res.Failure != ResolveFailureStore || !errors.Is(res.Err, directory.ErrUnavailable) {
		t.Fatalf("expected store failure, got %+v", res)
	}
}

func TestResolveConcurrentCreatesConverge(t *testing.T) {
	store := newMemStore()
	deps := testResolveDeps(store, "")

	const workers = 20
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := RunResolve(context.Background(), steamIdentity, "", deps)
			if res.Failure != ResolveFailureNone {
				t.Errorf("worker %d failed: %+v", i, res)
			}
			ids[i] = res.UserID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("workers resolved different users: %v", ids)
		}
	}
	if store.inserts != 1 {
		t.Fatalf("expected exactly one user row, got %d", store.inserts)
	}
}

type validatorFunc struct {
	p  provider.Provider
	fn func(provider.Credential) (provider.Identity, error)
}

func (v validatorFunc) Provider() provider.Provider { return v.p }
func (v validatorFunc) Validate(_ context.Context, c provider.Credential) (provider.Identity, error) {
	return v.fn(c)
}

func testLoginDeps(store *memStore, issued *int) LoginDeps {
	steam := validatorFunc{p: provider.Steam, fn: func(c provider.Credential) (provider.Identity, error) {
		switch c.Get("steam_auth_token") {
		case "good":
			return steamIdentity, nil
		case "banned":
			return provider.Identity{}, fmt.Errorf("%w: %w", provider.ErrValidation, provider.ErrBanned)
		default:
			return provider.Identity{}, directory.ErrUnavailable
		}
	}}
	return LoginDeps{
		Validators: provider.NewRegistry(steam),
		Resolve:    testResolveDeps(store, ""),
		IssuePair: func(_ context.Context, userID, scope string, prior int64) (jwt.Pair, error) {
			*issued++
			if prior != 0 {
				return jwt.Pair{}, errors.New("login must start a new refresh window")
			}
			return jwt.Pair{AccessToken: "a:" + userID + ":" + scope, RefreshToken: "r:" + userID}, nil
		},
	}
}

func TestRunLogin(t *testing.T) {
	store := newMemStore()
	issued := 0
	deps := testLoginDeps(store, &issued)

	res := RunLogin(context.Background(), LoginInput{Provider: provider.Steam, Credential: provider.Credential{"steam_auth_token": "good"}}, deps)
	if res.Failure != LoginFailureNone || res.Stage != LoginDone || res.Outcome != ResolvedCreated {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Pair.AccessToken != "a:"+res.UserID+":authenticated" {
		t.Fatalf("unexpected access token %q", res.Pair.AccessToken)
	}

	banned := RunLogin(context.Background(), LoginInput{Provider: provider.Steam, Credential: provider.Credential{"steam_auth_token": "banned"}}, deps)
	if banned.Failure != LoginFailureValidation || banned.Stage != LoginValidating || banned.Pair.AccessToken != "" {
		t.Fatalf("unexpected banned result %+v", banned)
	}

	dep := RunLogin(context.Background(), LoginInput{Provider: provider.Steam, Credential: provider.Credential{"steam_auth_token": "x"}}, deps)
	if dep.Failure != LoginFailureDependency {
		t.Fatalf("expected dependency failure, got %+v", dep)
	}

	unknown := RunLogin(context.Background(), LoginInput{Provider: "myspace"}, deps)
	if unknown.Failure != LoginFailureUnknownProvider {
		t.Fatalf("expected unknown provider, got %+v", unknown)
	}

	if issued != 1 || store.inserts != 1 {
		t.Fatalf("only the successful login may issue or write: issued=%d inserts=%d", issued, store.inserts)
	}
}

func TestRunLoginResolveFailureIssuesNothing(t *testing.T) {
	store := newMemStore()
	issued := 0
	deps := testLoginDeps(store, &issued)

	res := RunLogin(context.Background(), LoginInput{
		Provider:     provider.Steam,
		Credential:   provider.Credential{"steam_auth_token": "good"},
		LinkingToken: "forged",
	}, deps)
	if res.Failure != LoginFailureResolve || res.Resolve != ResolveFailureLinkToken || res.Stage != LoginResolving {
		t.Fatalf("unexpected result %+v", res)
	}
	if issued != 0 {
		t.Fatal("no tokens may be issued after a resolve failure")
	}
}

func TestRunRefresh(t *testing.T) {
	var gotPrior int64
	var gotScope string
	deps := RefreshDeps{
		Verify: func(_ context.Context, token, aud string) (*jwt.Claims, error) {
			if aud != jwt.RefreshAudience {
				t.Fatalf("refresh must verify against %q, got %q", jwt.RefreshAudience, aud)
			}
			switch token {
			case "good":
				c := &jwt.Claims{AccessTokenScope: "guest"}
				c.Subject = "u1"
				c.ExpiresAt = jwtNumericDate(1_700_500_000)
				return c, nil
			case "no-scope":
				c := &jwt.Claims{}
				c.Subject = "u1"
				return c, nil
			default:
				return nil, jwt.ErrBadSignature
			}
		},
		IssuePair: func(_ context.Context, userID, scope string, prior int64) (jwt.Pair, error) {
			gotPrior, gotScope = prior, scope
			return jwt.Pair{AccessToken: "a", RefreshToken: "r", RefreshExpiry: prior}, nil
		},
	}

	res := RunRefresh(context.Background(), "good", deps)
	if res.Failure != RefreshFailureNone || res.UserID != "u1" || gotPrior != 1_700_500_000 || gotScope != "guest" {
		t.Fatalf("unexpected refresh: %+v prior=%d scope=%q", res, gotPrior, gotScope)
	}
	if r := RunRefresh(context.Background(), "tampered", deps); r.Failure != RefreshFailureVerify || !errors.Is(r.Err, jwt.ErrBadSignature) {
		t.Fatalf("expected verify failure, got %+v", r)
	}
	if r := RunRefresh(context.Background(), "no-scope", deps); r.Failure != RefreshFailureScope {
		t.Fatalf("expected scope failure, got %+v", r)
	}
}
