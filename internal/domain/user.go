package domain

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Scope is a capability tag granting route access.
type Scope string

const (
	ScopeAdmin     Scope = "admin"
	ScopeTrainer   Scope = "trainer"
	ScopeUser      Scope = "user"
	ScopeNonMember Scope = "non-member"
	ScopeAnonymous Scope = "anonymous"
)

// RoleName identifies the kind of account.
type RoleName string

const (
	RoleAdmin     RoleName = "Admin"
	RoleTrainer   RoleName = "Trainer"
	RoleUser      RoleName = "User"
	RoleNonMember RoleName = "NonMember"
	RoleAnonymous RoleName = "Anonymous"
)

// roleScopes is the closed set of role kinds and the scopes each one carries.
var roleScopes = map[RoleName][]Scope{
	RoleAdmin:     {ScopeAdmin},
	RoleTrainer:   {ScopeTrainer},
	RoleUser:      {ScopeUser},
	RoleNonMember: {ScopeNonMember},
	RoleAnonymous: {ScopeAnonymous},
}

// Role is embedded in the user document.
type Role struct {
	Name  RoleName `bson:"name" json:"name"`
	Scope []Scope  `bson:"scope" json:"scope"`
}

// NewRole builds a role with the scope set fixed for its kind.
func NewRole(name RoleName) (Role, bool) {
	scopes, ok := roleScopes[name]
	if !ok {
		return Role{}, false
	}
	return Role{Name: name, Scope: append([]Scope(nil), scopes...)}, true
}

// ParseRoleName accepts role names case-insensitively ("trainer", "Trainer").
func ParseRoleName(s string) (RoleName, bool) {
	for name := range roleScopes {
		if strings.EqualFold(string(name), s) {
			return name, true
		}
	}
	return "", false
}

// ValidScope reports whether s belongs to the closed scope enum.
func ValidScope(s Scope) bool {
	switch s {
	case ScopeAdmin, ScopeTrainer, ScopeUser, ScopeNonMember, ScopeAnonymous:
		return true
	}
	return false
}

// SanitizeScopes drops anything outside the scope enum.
func SanitizeScopes(in []Scope) []Scope {
	out := make([]Scope, 0, len(in))
	for _, s := range in {
		if ValidScope(s) {
			out = append(out, s)
		}
	}
	return out
}

// HasAnyScope reports whether the two scope sets intersect.
func HasAnyScope(have []Scope, allowed ...Scope) bool {
	for _, h := range have {
		for _, a := range allowed {
			if h == a {
				return true
			}
		}
	}
	return false
}

// User represents any account: admin, trainer or client.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	NameKey      string             `bson:"nameKey" json:"-"` // lower-cased name, unique
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"passwordHash" json:"-"`
	Role         Role               `bson:"role" json:"role"`

	BirthDate       *time.Time `bson:"birthDate,omitempty" json:"birthDate,omitempty"`
	Address         string     `bson:"address,omitempty" json:"address,omitempty"`
	Country         string     `bson:"country,omitempty" json:"country,omitempty"`
	ProfileImage    string     `bson:"profileImage,omitempty" json:"profileImage,omitempty"`
	ProfileImageKey string     `bson:"profileImageKey,omitempty" json:"-"`

	// Trainer is the associating trainer, CreatedBy the account that created this one.
	Trainer    *primitive.ObjectID `bson:"trainer,omitempty" json:"trainer,omitempty"`
	CreatedBy  *primitive.ObjectID `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
	InviteCode string              `bson:"inviteCode,omitempty" json:"inviteCode,omitempty"`

	ResetPasswordToken   string     `bson:"resetPasswordToken,omitempty" json:"-"`
	ResetPasswordExpires *time.Time `bson:"resetPasswordExpires,omitempty" json:"-"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

func (u *User) IsAdmin() bool {
	return u.Role.Name == RoleAdmin
}

func (u *User) IsTrainer() bool {
	return u.Role.Name == RoleTrainer
}

func (u *User) IsClient() bool {
	return u.Role.Name == RoleUser
}

// HasTrainer reports whether a trainer reference is set.
func (u *User) HasTrainer() bool {
	return u.Trainer != nil && !u.Trainer.IsZero()
}

// NameKey normalizes a name for case-insensitive uniqueness.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FirstName returns the first whitespace separated token of a name.
func FirstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
