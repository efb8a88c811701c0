// Package auth contains identity types supplied by the external
// identity/role service. The engine consumes them read-only.
package auth

import "strings"

// Identity describes an authenticated user as reported by the identity
// service: who they are, what role they hold, and which sites they are
// assigned to.
type Identity struct {
	UserID          string  `json:"user_id"`
	Role            string  `json:"role"`
	AssignedSiteIDs []int64 `json:"assigned_site_ids"`
}

// Valid returns true when the identity carries the minimum fields required
// to register a notification session.
func (i Identity) Valid() bool {
	return strings.TrimSpace(i.UserID) != "" && strings.TrimSpace(i.Role) != ""
}

// CanSeeSite reports whether the identity's site assignments cover the given
// site. A nil site means the alert applies to all sites and is visible to
// every user.
func (i Identity) CanSeeSite(siteID *int64) bool {
	if siteID == nil {
		return true
	}
	for _, id := range i.AssignedSiteIDs {
		if id == *siteID {
			return true
		}
	}
	return false
}
