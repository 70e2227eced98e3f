// Package models defines the server-side artifact record and the types
// derived from it.
package models

import (
	"fmt"
	"time"
)

// Kind is the closed set of artifact kinds.
type Kind int

const (
	KindFile Kind = iota + 1
	KindNote
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindNote:
		return "note"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps the persisted name back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "file":
		return KindFile, nil
	case "note":
		return KindNote, nil
	default:
		return 0, fmt.Errorf("unknown artifact kind %q", s)
	}
}

// Status is derived from the record, never stored on its own.
type Status int

const (
	StatusActive Status = iota
	StatusExpired
	StatusConsumed
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusExpired:
		return "expired"
	case StatusConsumed:
		return "consumed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusExpired || s == StatusConsumed
}

// Artifact is the metadata record of a stored file or note. The bytes live
// in a storage backend under Location.
type Artifact struct {
	// ID is the public share token.
	ID           string
	Kind         Kind
	OriginalName string
	Owner        string
	Location     string
	Size         int64
	CreatedAt    time.Time
	ExpiresAt    *time.Time

	// ConsumedAt and ConsumedBy are written once, by the retrieval that won.
	ConsumedAt *time.Time
	ConsumedBy string
	// ExpiredAt is written once, by the expiry check that won.
	ExpiredAt *time.Time

	DecryptionReported *bool
	SharedWith         []string

	// Purged is set once the bytes of a terminal record are confirmed gone
	// from the backend.
	Purged bool
}

// Status returns the committed lifecycle state. Consumed and expired are
// mutually exclusive by construction of the conditional updates.
func (a *Artifact) Status() Status {
	switch {
	case a.ConsumedAt != nil:
		return StatusConsumed
	case a.ExpiredAt != nil:
		return StatusExpired
	default:
		return StatusActive
	}
}

// Due reports whether an active artifact has reached its expiry at now.
func (a *Artifact) Due(now time.Time) bool {
	return a.Status() == StatusActive && a.ExpiresAt != nil && !now.Before(*a.ExpiresAt)
}

// SharedWithIdentity reports whether identity appears in SharedWith.
func (a *Artifact) SharedWithIdentity(identity string) bool {
	for _, s := range a.SharedWith {
		if s == identity {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (a *Artifact) Clone() *Artifact {
	if a == nil {
		return nil
	}
	c := *a
	c.ExpiresAt = cloneTime(a.ExpiresAt)
	c.ConsumedAt = cloneTime(a.ConsumedAt)
	c.ExpiredAt = cloneTime(a.ExpiredAt)
	if a.DecryptionReported != nil {
		v := *a.DecryptionReported
		c.DecryptionReported = &v
	}
	if a.SharedWith != nil {
		c.SharedWith = append([]string(nil), a.SharedWith...)
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Patch names the fields an update writes. Nil fields are left untouched,
// so concurrent writers of different fields never clobber each other.
type Patch struct {
	ExpiresAt          *time.Time
	DecryptionReported *bool
	SharedWith         *[]string
	Purged             *bool
}

// Empty reports whether the patch writes nothing.
func (p Patch) Empty() bool {
	return p.ExpiresAt == nil && p.DecryptionReported == nil && p.SharedWith == nil && p.Purged == nil
}

// Apply writes the named fields onto a.
func (p Patch) Apply(a *Artifact) {
	if p.ExpiresAt != nil {
		a.ExpiresAt = cloneTime(p.ExpiresAt)
	}
	if p.DecryptionReported != nil {
		v := *p.DecryptionReported
		a.DecryptionReported = &v
	}
	if p.SharedWith != nil {
		a.SharedWith = append([]string(nil), (*p.SharedWith)...)
	}
	if p.Purged != nil {
		a.Purged = *p.Purged
	}
}
