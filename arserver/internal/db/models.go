package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// base contains the common fields shared by all models.
// ID uses UUID v7 (time-ordered) for efficient B-tree indexing and natural
// chronological ordering without a separate created_at sort. CreatedAt and
// UpdatedAt are managed automatically by GORM.
type base struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a new UUID v7 if the ID is not already set.
// This ensures every record has a valid time-ordered ID before insertion.
func (b *base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == (uuid.UUID{}) {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	return nil
}

// -----------------------------------------------------------------------------
// Users & Auth
//
// Catalog entities (object types, scenes, projects, packages) are owned by
// the Project/Storage/Build services (spec.md §4.3, §3) and are never
// persisted here — this database holds only ARServer's own identity and
// audit state.
// -----------------------------------------------------------------------------

// User represents a local or OIDC-authenticated UI user. The RegisterUser
// RPC (spec.md §4.1) is the only unauthenticated entry point; once a user
// name is registered for a connection it is attributed on every subsequent
// lock/aiming/execution RPC from that connection.
type User struct {
	base
	Email        string          `gorm:"uniqueIndex;not null"`
	Password     EncryptedString `gorm:"type:text"` // empty for OIDC users
	DisplayName  string          `gorm:"not null"`
	Role         string          `gorm:"not null;default:'user'"` // "admin" or "user"
	IsActive     bool            `gorm:"not null;default:true"`   // false = account disabled
	OIDCProvider string          `gorm:"default:''"`              // provider ID if OIDC user
	OIDCSub      string          `gorm:"default:''"`              // subject claim from OIDC token
	LastLoginAt  *time.Time
}

// RefreshToken stores a hashed refresh token associated with a user session.
// The raw token is never stored — only its SHA-256 hash. Tokens are rotated
// on every use.
type RefreshToken struct {
	base
	UserID    uuid.UUID `gorm:"type:text;not null;index"`
	TokenHash string    `gorm:"not null;uniqueIndex"` // SHA-256 hex of the raw token
	ExpiresAt time.Time `gorm:"not null;index"`
	RevokedAt *time.Time
	UserAgent string
	IPAddress string
}

// OIDCProvider stores the configuration for an external OIDC identity
// provider, supplementing the bare RegisterUser{name} RPC with a real login
// flow when ARCOR2_OIDC_ISSUER is configured. Only one provider is active at
// a time.
type OIDCProvider struct {
	base
	Name         string          `gorm:"not null"`
	Issuer       string          `gorm:"not null"`
	ClientID     string          `gorm:"not null"`
	ClientSecret EncryptedString `gorm:"type:text;not null"`
	RedirectURL  string          `gorm:"not null"`
	Scopes       string          `gorm:"not null;default:'openid email profile'"` // space-separated
	Enabled      bool            `gorm:"not null;default:false"`
}

// -----------------------------------------------------------------------------
// Audit
// -----------------------------------------------------------------------------

// AuditEntry records one mutating RPC handled by ARServer: who ran it, on
// what object, and whether it succeeded. Supplements spec.md's scene/project
// mutation RPCs (§4.1) with an audit trail, a feature present in the
// original Python arserver's action-execution log (original_source/
// arcor2_arserver) but dropped from the distilled spec.
type AuditEntry struct {
	base
	User      string `gorm:"not null;index"`
	Request   string `gorm:"not null;index"` // RPC name, e.g. "UpdateObjectPose"
	TargetID  string `gorm:"default:'';index"`
	Success   bool   `gorm:"not null"`
	Error     string `gorm:"type:text;default:''"`
	DurationMs int64  `gorm:"not null;default:0"`
}
