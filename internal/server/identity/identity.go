// Package identity verifies user credentials. Users are configured out of
// band; there is no registration.
package identity

import (
	"context"
	"crypto/subtle"
	"sort"
)

// User is a configured account without its secret.
type User struct {
	Username string `json:"username"`
	Admin    bool   `json:"is_admin"`
}

type Provider interface {
	// Verify returns the identity for valid credentials.
	Verify(ctx context.Context, username, password string) (string, bool)
	IsAdmin(identity string) bool
	Users() []User
}

// StaticProvider holds plain-text credentials in memory. It is meant for
// tests and throwaway development servers.
type StaticProvider struct {
	passwords map[string]string
	admins    map[string]bool
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{passwords: map[string]string{}, admins: map[string]bool{}}
}

// Add registers a user and returns p for chaining.
func (p *StaticProvider) Add(username, password string, admin bool) *StaticProvider {
	p.passwords[username] = password
	p.admins[username] = admin
	return p
}

func (p *StaticProvider) Verify(_ context.Context, username, password string) (string, bool) {
	want, ok := p.passwords[username]
	if !ok || subtle.ConstantTimeCompare([]byte(want), []byte(password)) != 1 {
		return "", false
	}
	return username, true
}

func (p *StaticProvider) IsAdmin(identity string) bool { return p.admins[identity] }

func (p *StaticProvider) Users() []User {
	out := make([]User, 0, len(p.passwords))
	for name := range p.passwords {
		out = append(out, User{Username: name, Admin: p.admins[name]})
	}
	sortUsers(out)
	return out
}

func sortUsers(u []User) {
	sort.Slice(u, func(i, j int) bool { return u[i].Username < u[j].Username })
}
