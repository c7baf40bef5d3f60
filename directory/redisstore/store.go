// Package redisstore implements directory.Store on Redis. Users are hashes
// and every index entry is a plain string key holding the owner's id. All
// conditional writes run as Lua scripts.
//
// Keys are laid out as {prefix}:user:<id> and {prefix}:idx:<provider>:<subject>.
// The braces are a Redis Cluster hash tag: every key of one directory maps to
// the same slot, so the multi-key scripts run unchanged on a cluster. The
// whole directory therefore lives on a single shard.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/directory"
	"github.com/redis/go-redis/v9"
)

const (
	fieldUserID    = "user_id"
	fieldCreatedAt = "created_at"
	fieldGuestHash = "guest_secret_hash"
	linkPrefix     = "link:"
)

// insertUserScript return codes.
const (
	insertOK int64 = iota
	insertUserExists
	insertLinkTaken
)

// linkUserScript return codes.
const (
	linkOK int64 = iota
	linkUserMissing
	linkTaken
	linkConflict
)

// insertUserScript returns 1 when the user exists and 2 when a link is
// already indexed.
const insertUserScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 1
end
for i = 2, #KEYS do
  if redis.call("GET", KEYS[i]) then
    return 2
  end
end
redis.call("HSET", KEYS[1], unpack(ARGV, 2))
for i = 2, #KEYS do
  redis.call("SET", KEYS[i], ARGV[1])
end
return 0
`

// linkUserScript returns 1 when the user is missing, 2 when the identity
// belongs to another user and 3 when the user holds a different identity of
// the same provider.
const linkUserScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 1
end
local owner = redis.call("GET", KEYS[2])
if owner and owner ~= ARGV[1] then
  return 2
end
local current = redis.call("HGET", KEYS[1], ARGV[2])
if current and current ~= ARGV[3] then
  return 3
end
redis.call("HSET", KEYS[1], ARGV[2], ARGV[3])
redis.call("SET", KEYS[2], ARGV[1])
return 0
`

var (
	insertUserLua = redis.NewScript(insertUserScript)
	linkUserLua   = redis.NewScript(linkUserScript)
)

// Store is a Redis-backed directory.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// New returns a Store keeping its keys under the hash tag {prefix}.
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "gi"
	}
	return &Store{redis: client, prefix: "{" + prefix + "}"}
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":user:" + userID
}

func (s *Store) indexKey(l directory.Link) string {
	return s.prefix + ":idx:" + l.Provider + ":" + l.Subject
}

// GetUser implements directory.Store.
func (s *Store) GetUser(ctx context.Context, userID string) (*directory.User, error) {
	fields, err := s.redis.HGetAll(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, directory.ErrNotFound
	}

	u := &directory.User{
		UserID:          fields[fieldUserID],
		Links:           make(map[string]string),
		GuestSecretHash: fields[fieldGuestHash],
	}
	if ts, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64); err == nil {
		u.CreatedAt = time.Unix(ts, 0).UTC()
	}
	for k, v := range fields {
		if provider, ok := strings.CutPrefix(k, linkPrefix); ok {
			u.Links[provider] = v
		}
	}
	return u, nil
}

// InsertUserIfAbsent implements directory.Store.
func (s *Store) InsertUserIfAbsent(ctx context.Context, user *directory.User) error {
	if user == nil || user.UserID == "" {
		return errors.New("redisstore: user id required")
	}
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	keys := []string{s.userKey(user.UserID)}
	args := []any{
		user.UserID,
		fieldUserID, user.UserID,
		fieldCreatedAt, strconv.FormatInt(createdAt.Unix(), 10),
	}
	if user.GuestSecretHash != "" {
		args = append(args, fieldGuestHash, user.GuestSecretHash)
	}
	for _, l := range user.LinkList() {
		keys = append(keys, s.indexKey(l))
		args = append(args, linkPrefix+l.Provider, l.Subject)
	}

	status, err := insertUserLua.Run(ctx, s.redis, keys, args...).Int64()
	if err != nil {
		return unavailable(err)
	}
	switch status {
	case insertOK:
		return nil
	case insertUserExists:
		return directory.ErrUserExists
	case insertLinkTaken:
		return directory.ErrIdentityTaken
	default:
		return fmt.Errorf("redisstore: unexpected insert status %d", status)
	}
}

// UpdateUserIfExists implements directory.Store.
func (s *Store) UpdateUserIfExists(ctx context.Context, userID string, link directory.Link) error {
	return s.link(ctx, userID, link)
}

func (s *Store) link(ctx context.Context, userID string, link directory.Link) error {
	status, err := linkUserLua.Run(ctx, s.redis,
		[]string{s.userKey(userID), s.indexKey(link)},
		userID, linkPrefix+link.Provider, link.Subject,
	).Int64()
	if err != nil {
		return unavailable(err)
	}
	return linkStatus(status)
}

// LookupIdentity implements directory.Store.
func (s *Store) LookupIdentity(ctx context.Context, link directory.Link) (string, error) {
	owner, err := s.redis.Get(ctx, s.indexKey(link)).Result()
	if errors.Is(err, redis.Nil) {
		return "", directory.ErrNotFound
	}
	if err != nil {
		return "", unavailable(err)
	}
	return owner, nil
}

// InsertIdentityIfAbsent implements directory.Store. The user hash gains
// the link field in the same script, keeping both views in step.
func (s *Store) InsertIdentityIfAbsent(ctx context.Context, link directory.Link, userID string) error {
	return s.link(ctx, userID, link)
}

func linkStatus(status int64) error {
	switch status {
	case linkOK:
		return nil
	case linkUserMissing:
		return directory.ErrNotFound
	case linkTaken:
		return directory.ErrIdentityTaken
	case linkConflict:
		return directory.ErrLinkConflict
	default:
		return fmt.Errorf("redisstore: unexpected link status %d", status)
	}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", directory.ErrUnavailable, err)
}
