package goCreds

import (
	"context"
	"time"

	"github.com/MrEthical07/goCreds/jwt"
	"github.com/MrEthical07/goCreds/verification"
)

// Role is the coarse authorization level carried in access tokens.
type Role string

const (
	RoleGuest     Role = "guest"
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleUser, RoleModerator, RoleAdmin:
		return true
	default:
		return false
	}
}

// User is the projection of an account the engine needs. The engine never owns
// user storage; it reads and writes through [UserProvider].
type User struct {
	SubjectID    string
	Email        string
	PasswordHash string
	Role         Role
	Confirmed    bool
}

// CreateUserInput is passed to [UserProvider.CreateUser] on registration.
type CreateUserInput struct {
	Email        string
	PasswordHash string
	Role         Role
}

// UserProvider is implemented by the application's user store.
//
// FindBySubjectID and FindByEmail return [ErrUserNotFound] when no account matches.
// CreateUser returns [ErrAlreadyExists] when the email is taken.
type UserProvider interface {
	FindBySubjectID(ctx context.Context, subjectID string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	UpdatePasswordHash(ctx context.Context, subjectID, passwordHash string) error
	MarkConfirmed(ctx context.Context, subjectID string) error
}

// Delivery carries a freshly minted verification token to the application's mailer.
type Delivery struct {
	Purpose   verification.Purpose
	SubjectID string
	Email     string
	Token     string
	ExpiresAt time.Time
}

// PasswordDelivery carries a regenerated password after a completed reset.
type PasswordDelivery struct {
	SubjectID string
	Email     string
	Password  string
}

// Notifier hands secrets to an out-of-band channel. Implementations must not log
// the token or password they receive.
type Notifier interface {
	DeliverVerification(ctx context.Context, d Delivery) error
	DeliverPassword(ctx context.Context, d PasswordDelivery) error
}

// NopNotifier discards every delivery.
type NopNotifier struct{}

func (NopNotifier) DeliverVerification(context.Context, Delivery) error { return nil }

func (NopNotifier) DeliverPassword(context.Context, PasswordDelivery) error { return nil }

// TokenPair is a signed access/refresh pair with their expiry instants.
type TokenPair = jwt.Pair

// Claims are the verified contents of an access token.
type Claims = jwt.Claims

// AuthResult is returned by Register, Login and LoginWithTemporaryToken.
type AuthResult struct {
	Subject User
	Tokens  TokenPair
}

// PasswordResetResult is returned once by CompletePasswordReset. NewPassword is
// the only copy of the plaintext and is never stored.
type PasswordResetResult struct {
	SubjectID      string
	NewPassword    string
	// TemporaryToken authorizes a single LoginWithTemporaryToken call. It is
	// empty when the token could not be recorded.
	TemporaryToken string
}
