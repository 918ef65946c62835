package entities

import (
	"wisdomwalk/pkg/consts"
)

// User is the read-only identity record consumed by the chat logic. It is
// written by the auth and admin flows.
type User struct {
	ID            string   `json:"id"`
	Name          string   `json:"name,omitempty"`
	Email         string   `json:"email,omitempty"`
	EmailVerified bool     `json:"email_verified"`
	AdminVerified bool     `json:"admin_verified"`
	Status        string   `json:"status"`
	BlockedUsers  []string `json:"blocked_users,omitempty"`
}

// HasBlocked reports whether u has blocked other.
func (u *User) HasBlocked(other string) bool {
	for _, blocked := range u.BlockedUsers {
		if blocked == other {
			return true
		}
	}
	return false
}

// HasAccess is the access gate: verified email, verified by an admin and an
// active account.
func (u *User) HasAccess() bool {
	return u.EmailVerified && u.AdminVerified && u.Status == consts.UserStatusActive
}

type DeviceRequest struct {
	DeviceID string `json:"device_id" binding:"required,max=512"`
}
