package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/buzzdrop/internal/logging"
	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is a seam so tests can hash quickly.
var bcryptCost = bcrypt.DefaultCost

type envUser struct {
	hash  []byte
	admin bool
}

// EnvProvider reads users from environment entries of the form
// PREFIX<N>=username:password:is_admin. Passwords are hashed once at load
// and never kept in plain text.
type EnvProvider struct {
	users map[string]envUser
	// dummy is compared against for unknown users so both paths cost the same.
	dummy []byte
}

// NewEnvProvider parses environ (as returned by os.Environ). Malformed
// entries are logged and skipped; a later entry for the same username
// replaces an earlier one.
func NewEnvProvider(ctx context.Context, logger logging.Logger, prefix string, environ []string) (*EnvProvider, error) {
	p := &EnvProvider{users: map[string]envUser{}}

	dummy, err := bcrypt.GenerateFromPassword([]byte("buzzdrop-dummy"), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash dummy password: %w", err)
	}
	p.dummy = dummy

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}

		parts := strings.SplitN(value, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			logger.Warn(ctx, "invalid user format in environment variable", "key", key)
			continue
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(parts[1]), bcryptCost)
		if err != nil {
			logger.Warn(ctx, "cannot hash password", "key", key, "error", err)
			continue
		}
		p.users[parts[0]] = envUser{
			hash:  hash,
			admin: strings.EqualFold(strings.TrimSpace(parts[2]), "true"),
		}
	}

	if len(p.users) == 0 {
		logger.Warn(ctx, "no users configured", "prefix", prefix)
	}
	return p, nil
}

func (p *EnvProvider) Verify(_ context.Context, username, password string) (string, bool) {
	u, ok := p.users[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(p.dummy, []byte(password))
		return "", false
	}
	if bcrypt.CompareHashAndPassword(u.hash, []byte(password)) != nil {
		return "", false
	}
	return username, true
}

func (p *EnvProvider) IsAdmin(identity string) bool {
	return p.users[identity].admin
}

func (p *EnvProvider) Users() []User {
	out := make([]User, 0, len(p.users))
	for name, u := range p.users {
		out = append(out, User{Username: name, Admin: u.admin})
	}
	sortUsers(out)
	return out
}
