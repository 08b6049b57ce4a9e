// Package repository holds ARServer's own identity and audit persistence —
// User, RefreshToken, OIDCProvider, and AuditEntry. Catalog state (object
// types, scenes, projects, packages) is owned by the external Project/
// Storage/Build services and is never modeled here (spec.md §4.3).
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/arcor2/arcor2-core/arserver/internal/db"
)

// ListOptions contains common pagination options for list queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// UserRepository persists registered UI users.
type UserRepository interface {
	Create(ctx context.Context, user *db.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.User, error)
	GetByEmail(ctx context.Context, email string) (*db.User, error)
	GetByOIDC(ctx context.Context, provider, sub string) (*db.User, error)
	Update(ctx context.Context, user *db.User) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]db.User, int64, error)
}

// RefreshTokenRepository persists refresh tokens issued by the optional
// JWT/OIDC login flow.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *db.RefreshToken) error
	GetByHash(ctx context.Context, hash string) (*db.RefreshToken, error)
	DeleteByHash(ctx context.Context, hash string) error
	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
	DeleteExpired(ctx context.Context) error
}

// OIDCProviderRepository persists the single active OIDC provider
// configuration.
type OIDCProviderRepository interface {
	Create(ctx context.Context, provider *db.OIDCProvider) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.OIDCProvider, error)
	GetEnabled(ctx context.Context) (*db.OIDCProvider, error)
	Update(ctx context.Context, provider *db.OIDCProvider) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// AuditRepository persists the audit trail of mutating RPCs.
type AuditRepository interface {
	Create(ctx context.Context, entry *db.AuditEntry) error
	List(ctx context.Context, opts ListOptions) ([]db.AuditEntry, int64, error)
}
