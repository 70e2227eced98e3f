package models

import (
	"time"

	"github.com/dmitrijs2005/buzzdrop/internal/timex"
)

// Display is the read-only view of an artifact handed to transports.
type Display struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Kind              string   `json:"kind"`
	Owner             string   `json:"owner"`
	Size              int64    `json:"size"`
	Status            string   `json:"status"`
	StatusDisplay     string   `json:"status_display"`
	DecryptionStatus  string   `json:"decryption_status"`
	CreatedAt         string   `json:"created_at"`
	ExpiresAt         string   `json:"expires_at,omitempty"`
	ConsumedAt        string   `json:"downloaded_at,omitempty"`
	ConsumedByAddress string   `json:"downloaded_by,omitempty"`
	SharedWith        []string `json:"shared_with,omitempty"`
	ShareLink         string   `json:"share_link"`
}

// NewDisplay renders a in loc. shareLink is passed in because the base URL
// is a transport concern.
func NewDisplay(a *Artifact, loc *time.Location, shareLink string) *Display {
	created := a.CreatedAt
	return &Display{
		ID:                a.ID,
		Name:              a.OriginalName,
		Kind:              a.Kind.String(),
		Owner:             a.Owner,
		Size:              a.Size,
		Status:            a.Status().String(),
		StatusDisplay:     StatusDisplay(a),
		DecryptionStatus:  DecryptionStatus(a.DecryptionReported),
		CreatedAt:         timex.Format(&created, loc),
		ExpiresAt:         timex.Format(a.ExpiresAt, loc),
		ConsumedAt:        timex.Format(a.ConsumedAt, loc),
		ConsumedByAddress: a.ConsumedBy,
		SharedWith:        append([]string(nil), a.SharedWith...),
		ShareLink:         shareLink,
	}
}

// StatusDisplay is "Expired" for expired artifacts, otherwise the reported
// decryption outcome ("Success", "Failed") or "" when none was reported.
func StatusDisplay(a *Artifact) string {
	if a.Status() == StatusExpired {
		return "Expired"
	}
	switch {
	case a.DecryptionReported == nil:
		return ""
	case *a.DecryptionReported:
		return "Success"
	default:
		return "Failed"
	}
}

// DecryptionStatus renders the decryption report, "Pending" when absent.
func DecryptionStatus(reported *bool) string {
	switch {
	case reported == nil:
		return "Pending"
	case *reported:
		return "Success"
	default:
		return "Failed"
	}
}
