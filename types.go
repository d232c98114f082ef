package authcore

import (
	"context"
	"time"
)

// Role is the hierarchical access level of an account. Higher roles satisfy
// checks for lower ones.
type Role string

const (
	// RoleUser is the lowest-privilege role assigned to new accounts.
	RoleUser Role = "USER"
	// RoleAnalyst can read benchmark resources.
	RoleAnalyst Role = "ANALYST"
	// RoleAdmin satisfies every role check.
	RoleAdmin Role = "ADMIN"
)

var roleRank = map[Role]int{
	RoleUser:    1,
	RoleAnalyst: 2,
	RoleAdmin:   3,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Satisfies reports whether r grants at least the access level of required.
// Unknown roles satisfy nothing.
func (r Role) Satisfies(required Role) bool {
	have, ok := roleRank[r]
	if !ok {
		return false
	}
	want, ok := roleRank[required]
	if !ok {
		return false
	}
	return have >= want
}

// AccountStatus is the lifecycle state of a local account.
type AccountStatus uint8

const (
	// AccountActive is an account in good standing.
	AccountActive AccountStatus = iota
	// AccountDisabled blocks authentication and refresh.
	AccountDisabled
)

// Identity is the verified profile returned by the identity provider after a
// successful code exchange.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
}

// UserRecord is the local account a provider identity maps to.
type UserRecord struct {
	UserID    string
	Email     string
	Role      Role
	CompanyID string
	Status    AccountStatus
}

// UserProvider is the interface callers implement to connect the engine to
// their user database. GetOrCreateByIdentity must provision first-time
// sign-ins with the lowest-privilege role.
type UserProvider interface {
	GetOrCreateByIdentity(ctx context.Context, identity Identity) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
}

// Principal is the per-request identity constructed from a verified access
// token.
type Principal struct {
	UserID    string
	Role      Role
	CompanyID string
	ExpiresAt time.Time
}

// AuthURLResult is returned by [Engine.AuthURL].
type AuthURLResult struct {
	URL   string
	State string
}

// AuthResult is the token pair returned by [Engine.Authenticate] and
// [Engine.Refresh]. Expiry values are absolute timestamps.
type AuthResult struct {
	UserID    string
	Role      Role
	CompanyID string

	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
