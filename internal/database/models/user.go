package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AdminRole groups admin permissions.
type AdminRole string

const (
	RoleSuper   AdminRole = "super"
	RoleContent AdminRole = "content"
	RoleSupport AdminRole = "support"
)

// Permission is a single admin capability tag.
type Permission string

const (
	PermManageUsers    Permission = "manage_users"
	PermManageContent  Permission = "manage_content"
	PermManageSettings Permission = "manage_settings"
	PermSendBroadcast  Permission = "send_broadcast"
	PermViewStats      Permission = "view_stats"
	PermApproveContent Permission = "approve_content"
	PermHandleReports  Permission = "handle_reports"
)

var rolePermissions = map[AdminRole][]Permission{
	RoleSuper: {
		PermManageUsers, PermManageContent, PermManageSettings, PermSendBroadcast,
		PermViewStats, PermApproveContent, PermHandleReports,
	},
	RoleContent: {PermManageContent, PermApproveContent, PermViewStats},
	RoleSupport: {PermHandleReports, PermViewStats},
}

// ParseAdminRole validates a role name.
func ParseAdminRole(name string) (AdminRole, bool) {
	role := AdminRole(strings.ToLower(strings.TrimSpace(name)))
	_, ok := rolePermissions[role]
	return role, ok
}

// PermissionsFor returns a copy of the permissions granted by role.
func PermissionsFor(role AdminRole) []Permission {
	perms := rolePermissions[role]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// User represents a Telegram user known to the bot.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	TelegramID   int64              `bson:"telegramId"`
	Username     string             `bson:"username,omitempty"`
	FirstName    string             `bson:"firstName,omitempty"`
	LastName     string             `bson:"lastName,omitempty"`
	LanguageCode string             `bson:"languageCode,omitempty"`
	PhoneNumber  string             `bson:"phoneNumber,omitempty"`

	IsAdmin          bool         `bson:"isAdmin"`
	AdminRole        AdminRole    `bson:"adminRole,omitempty"`
	AdminPermissions []Permission `bson:"adminPermissions,omitempty"`

	IsBanned  bool       `bson:"isBanned"`
	BanReason string     `bson:"banReason,omitempty"`
	BannedAt  *time.Time `bson:"bannedAt,omitempty"`
	BannedBy  int64      `bson:"bannedBy,omitempty"`

	HasSubscribedToChannel bool `bson:"hasSubscribedToChannel"`
	HasSharedContact       bool `bson:"hasSharedContact"`
	OnboardingCompleted    bool `bson:"onboardingCompleted"`

	CreatedAt    time.Time `bson:"createdAt"`
	LastActiveAt time.Time `bson:"lastActiveAt"`
}

// Profile is the subset of Telegram user data refreshed on every update.
type Profile struct {
	TelegramID   int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
}

// DisplayName returns the best available human readable name.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return "Student"
}

// HasPermission reports whether the user is an admin holding perm.
func (u *User) HasPermission(perm Permission) bool {
	if !u.IsAdmin {
		return false
	}
	for _, p := range u.AdminPermissions {
		if p == perm {
			return true
		}
	}
	return false
}
