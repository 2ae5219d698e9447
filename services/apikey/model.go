package apikey

import (
	"time"

	"github.com/lib/pq"
)

type APIKeyStatus string

const (
	APIKeyStatusActive  APIKeyStatus = "active"
	APIKeyStatusRevoked APIKeyStatus = "revoked"
)

// APIKey is a hashed, revocable programmatic credential. Plaintext key
// material is never persisted: only the prefix (a cheap index) and the
// one-way digest are stored.
type APIKey struct {
	ID         string         `gorm:"column:id;primaryKey" json:"id"`
	TenantID   string         `gorm:"column:tenant_id;not null;index" json:"accountId"`
	Name       string         `gorm:"column:name" json:"name"`
	KeyPrefix  string         `gorm:"column:key_prefix;not null;index" json:"keyPrefix"`
	KeyHash    string         `gorm:"column:key_hash;not null;uniqueIndex" json:"-"`
	Scopes     pq.StringArray `gorm:"column:scopes;type:text[]" json:"scopes,omitempty"`
	Status     APIKeyStatus   `gorm:"column:status;default:'active';not null" json:"status"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	LastUsedAt *time.Time     `gorm:"column:last_used_at" json:"lastUsedAt,omitempty"`
}

func (APIKey) TableName() string {
	return "api_keys"
}
