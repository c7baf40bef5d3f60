package directory

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means the user or index entry does not exist.
	ErrNotFound = errors.New("directory: not found")
	// ErrUserExists means the candidate user id is already taken.
	ErrUserExists = errors.New("directory: user id already exists")
	// ErrIdentityTaken means the (provider, subject) pair belongs to a
	// different user.
	ErrIdentityTaken = errors.New("directory: identity already linked to another user")
	// ErrLinkConflict means the user already holds a different subject for
	// the same provider.
	ErrLinkConflict = errors.New("directory: user already linked to another subject for provider")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("directory: backend unavailable")
)

// Link is one provider identity.
type Link struct {
	Provider string
	Subject  string
}

// User is a canonical backend user.
type User struct {
	UserID string
	// Links maps provider name to subject.
	Links           map[string]string
	GuestSecretHash string
	CreatedAt       time.Time
}

// LinkList returns the user's links in no particular order.
func (u *User) LinkList() []Link {
	out := make([]Link, 0, len(u.Links))
	for p, s := range u.Links {
		out = append(out, Link{Provider: p, Subject: s})
	}
	return out
}

// Store is the persistence contract used by identity resolution. Every
// method is a single conditional write or read.
type Store interface {
	// GetUser loads a user. Missing users return ErrNotFound.
	GetUser(ctx context.Context, userID string) (*User, error)
	// InsertUserIfAbsent creates user together with index entries for every
	// link it carries. It returns ErrUserExists when the id is taken and
	// ErrIdentityTaken when any link is already indexed; nothing is
	// written in either case.
	InsertUserIfAbsent(ctx context.Context, user *User) error
	// UpdateUserIfExists adds link to an existing user and indexes it.
	// It returns ErrNotFound, ErrIdentityTaken or ErrLinkConflict. Re-adding
	// the same link is a no-op.
	UpdateUserIfExists(ctx context.Context, userID string, link Link) error
	// LookupIdentity returns the owner of link or ErrNotFound.
	LookupIdentity(ctx context.Context, link Link) (string, error)
	// InsertIdentityIfAbsent indexes link for userID. It succeeds when the
	// entry already points at userID and returns ErrIdentityTaken when it
	// points elsewhere. The user must exist, and ErrLinkConflict applies as
	// for UpdateUserIfExists.
	InsertIdentityIfAbsent(ctx context.Context, link Link, userID string) error
}
