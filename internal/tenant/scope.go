package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/logging"
)

// SessionSetting is the Postgres session setting read by the row-level
// security policies. Every policy predicate compares a row's tenant_hash to
// current_setting('memoryd.tenant_hash', true).
const SessionSetting = "memoryd.tenant_hash"

// Common errors.
var (
	// ErrScopeActive is returned when a connection already carries a tenant
	// binding. Concurrent tenants must each acquire their own connection.
	ErrScopeActive = errors.New("tenant: scope already active on connection")
	// ErrEmptyIdentity is returned for blank caller identities.
	ErrEmptyIdentity = errors.New("tenant: identity must not be empty")
)

// Conn is the subset of pgx connection behavior the store needs inside a
// tenant scope.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Session is a pooled connection held for one unit of work. Destroy takes
// the connection out of the pool permanently; it is used when the tenant
// binding cannot be cleared and the connection must never serve again.
type Session interface {
	Conn
	Release()
	Destroy()
}

// SessionPool hands out sessions. *PgxPool adapts pgxpool.Pool; tests
// substitute fakes.
type SessionPool interface {
	AcquireSession(ctx context.Context) (Session, error)
}

// PgxPool adapts a pgxpool.Pool to SessionPool.
type PgxPool struct {
	Pool *pgxpool.Pool
}

type pgxSession struct {
	*pgxpool.Conn
}

func (s pgxSession) Release() { s.Conn.Release() }

func (s pgxSession) Destroy() {
	// Hijack detaches the connection from the pool so Release can never
	// recycle it; closing it ends the Postgres session and its settings.
	_ = s.Conn.Hijack().Close(context.Background())
}

// AcquireSession acquires a pooled connection.
func (p *PgxPool) AcquireSession(ctx context.Context) (Session, error) {
	conn, err := p.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("tenant: acquiring connection: %w", err)
	}
	return pgxSession{conn}, nil
}

// Scope binds tenant digests to database sessions for the lifetime of one
// unit of work.
type Scope struct {
	pool   SessionPool
	hasher *Hasher
	logger *logging.Logger
}

// NewScope creates a Scope.
func NewScope(pool SessionPool, hasher *Hasher, logger *logging.Logger) (*Scope, error) {
	if pool == nil {
		return nil, errors.New("tenant: session pool is required")
	}
	if hasher == nil {
		return nil, errors.New("tenant: hasher is required")
	}
	if logger == nil {
		return nil, errors.New("tenant: logger is required")
	}
	return &Scope{pool: pool, hasher: hasher, logger: logger}, nil
}

// Hash exposes the underlying hasher so callers can derive a digest without
// opening a scope (for example, to stamp AAD on candidates).
func (s *Scope) Hash(identity string) string {
	return s.hasher.Hash(identity)
}

// WithTenant runs fn on a connection whose session is bound to the tenant's
// digest. The binding is cleared on every exit path, including panics,
// before the connection goes back to the pool, so a pooled
// connection can never leak a stale tenant into a later request.
//
// The context passed to fn carries the tenant digest for log correlation and
// candidate AAD checks.
func (s *Scope) WithTenant(ctx context.Context, identity string, fn func(ctx context.Context, conn Conn) error) error {
	if identity == "" {
		return ErrEmptyIdentity
	}
	digest := s.hasher.Hash(identity)

	sess, err := s.pool.AcquireSession(ctx)
	if err != nil {
		return err
	}

	// Clearing must happen even when fn panics or the request context is
	// already cancelled (client disconnect, deadline), so the reset runs on
	// a context detached from cancellation. A connection whose binding
	// cannot be cleared is destroyed, never returned to the pool.
	bound := false
	defer func() {
		if !bound {
			sess.Release()
			return
		}
		clearCtx := context.WithoutCancel(ctx)
		if _, err := sess.Exec(clearCtx, "SELECT set_config($1, '', false)", SessionSetting); err != nil {
			s.logger.Error(clearCtx, "failed to clear tenant binding, destroying connection", zap.Error(err))
			sess.Destroy()
			return
		}
		sess.Release()
	}()

	// Refuse to stack tenants on one connection. A non-empty setting here
	// means a previous scope failed to release, which is a bug worth
	// surfacing loudly rather than masking.
	var current string
	if err := sess.QueryRow(ctx, "SELECT COALESCE(current_setting($1, true), '')", SessionSetting).Scan(&current); err != nil {
		return fmt.Errorf("tenant: reading session setting: %w", err)
	}
	if current != "" {
		s.logger.Error(ctx, "connection carried a stale tenant binding",
			zap.String("stale_digest_prefix", current[:min(len(current), 12)]))
		return ErrScopeActive
	}

	if _, err := sess.Exec(ctx, "SELECT set_config($1, $2, false)", SessionSetting, digest); err != nil {
		return fmt.Errorf("tenant: activating scope: %w", err)
	}
	bound = true

	scopedCtx := WithDigest(ctx, digest)
	scopedCtx = logging.WithTenantDigest(scopedCtx, digest)
	return fn(scopedCtx, sess)
}

// digestCtxKey carries the active tenant digest.
type digestCtxKey struct{}

// WithDigest stores a tenant digest in the context.
func WithDigest(ctx context.Context, digest string) context.Context {
	return context.WithValue(ctx, digestCtxKey{}, digest)
}

// DigestFromContext returns the active tenant digest, or "" when no scope is
// active.
func DigestFromContext(ctx context.Context) string {
	if d, ok := ctx.Value(digestCtxKey{}).(string); ok {
		return d
	}
	return ""
}
