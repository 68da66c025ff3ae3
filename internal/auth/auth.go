// Package auth implements per-session credential binding (spec.md
// §4.G): an immutable Context created at client authentication time,
// threaded into connector.Pool.Acquire so passthrough-capable backends
// can forward the caller's identity, plus the immutable-in-transaction
// rule (invariant 5).
package auth

import (
	"fmt"
	"time"

	"github.com/ansilo-run/ansilo/internal/ansierr"
)

// Claims is a closed interface over the supported credential shapes a
// Context may carry. Each variant is a distinct Go type so callers can
// type-switch rather than probe a generic map.
type Claims interface {
	claimsNode()
}

// PasswordClaims carries a plaintext (or already-hashed, per provider)
// password for passthrough authentication.
type PasswordClaims struct {
	Password string
}

func (PasswordClaims) claimsNode() {}

// JWTClaims carries a verified bearer token: Header holds the signing
// algorithm named in its header ("alg"), Claims the decoded claim set.
type JWTClaims struct {
	Header string
	Claims map[string]any
	Token  string // original compact token, for passthrough exchange
}

func (JWTClaims) claimsNode() {}

// SAMLClaims carries the raw assertion XML for providers that
// authenticate via SAML.
type SAMLClaims struct {
	AssertionXML string
}

func (SAMLClaims) claimsNode() {}

// CustomClaims carries an arbitrary provider-specific JSON payload.
type CustomClaims struct {
	JSON string
}

func (CustomClaims) claimsNode() {}

// Context is created when a client authenticates to the Postgres
// frontend. It is immutable for the session once set and is threaded
// into pool.Acquire(ctx, auth) for passthrough authentication.
type Context struct {
	Username        string
	ProviderID      string
	AuthenticatedAt time.Time
	Claims          Claims
	// ServiceUser, when true, means this identity is a pre-provisioned
	// name the node trusts directly — it bypasses passthrough.
	ServiceUser bool
}

func (c *Context) String() string {
	return fmt.Sprintf("auth.Context{user=%s provider=%s service_user=%v}", c.Username, c.ProviderID, c.ServiceUser)
}

// Binder holds the single AuthContext active for a session and enforces
// invariant 5: it cannot be replaced while a transaction is open.
// InTransaction is supplied by the caller (typically backed by a
// connector.TransactionManager) rather than owned here, since the auth
// binder has no visibility into backend transaction state on its own.
type Binder struct {
	current       *Context
	inTransaction func() bool
}

func NewBinder(inTransaction func() bool) *Binder {
	return &Binder{inTransaction: inTransaction}
}

// Current returns the currently bound AuthContext, or nil if the
// session has not yet authenticated.
func (b *Binder) Current() *Context {
	return b.current
}

// SetAuth binds a new AuthContext. Fails with ErrAuthImmutableInTx if a
// transaction is currently open (invariant 5).
func (b *Binder) SetAuth(ctx *Context) error {
	if b.inTransaction != nil && b.inTransaction() {
		return ErrAuthImmutableInTx
	}
	b.current = ctx
	return nil
}

// ErrAuthImmutableInTx is returned by Binder.SetAuth when a transaction
// is in progress.
var ErrAuthImmutableInTx = ansierr.New(ansierr.KindInternal, "cannot change auth context while a transaction is in progress")
