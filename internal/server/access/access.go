// Package access decides who may act on an artifact. Retrieval is not
// checked here: knowing the share id is the capability.
package access

import (
	"fmt"

	"github.com/dmitrijs2005/buzzdrop/internal/common"
	"github.com/dmitrijs2005/buzzdrop/internal/server/models"
)

// Principal is the caller as established by the transport. The zero value
// is anonymous.
type Principal struct {
	Identity string
	Admin    bool
}

func (p Principal) Anonymous() bool { return p.Identity == "" }

// Policy holds the ownership rules.
type Policy struct{}

// RequireIdentity fails with common.ErrorUnauthorized for anonymous callers.
func (Policy) RequireIdentity(p Principal) error {
	if p.Anonymous() {
		return common.ErrorUnauthorized
	}
	return nil
}

// CanDelete allows only the owner. Admins get no exception.
func (pol Policy) CanDelete(p Principal, a *models.Artifact) error {
	if err := pol.RequireIdentity(p); err != nil {
		return err
	}
	if a.Owner != p.Identity {
		return fmt.Errorf("%w: %s does not own %s", common.ErrForbidden, p.Identity, a.ID)
	}
	return nil
}

// CanListOwned allows listing one's own artifacts, or anybody's for admins.
func (pol Policy) CanListOwned(p Principal, identity string) error {
	if err := pol.RequireIdentity(p); err != nil {
		return err
	}
	if p.Identity != identity && !p.Admin {
		return common.ErrForbidden
	}
	return nil
}

// RequireAdmin guards user administration.
func (pol Policy) RequireAdmin(p Principal) error {
	if err := pol.RequireIdentity(p); err != nil {
		return err
	}
	if !p.Admin {
		return fmt.Errorf("%w: admin access required", common.ErrForbidden)
	}
	return nil
}
