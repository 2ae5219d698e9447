package domain

import (
	"time"
)

type Status string

var (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusError   Status = "error"
)

func (s Status) String() string {
	switch s {
	case StatusPending, StatusActive, StatusError:
		return string(s)
	default:
		return ""
	}
}

type RecordType string

var (
	RecordTXT   RecordType = "txt"
	RecordCNAME RecordType = "cname"
)

func (t RecordType) String() string {
	switch t {
	case RecordTXT, RecordCNAME:
		return string(t)
	default:
		return ""
	}
}

// Domain is a tenant's claim over a hostname. Hostname is globally unique
// across all tenants; status is written only through verification outcomes.
type Domain struct {
	ID                 string     `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt          time.Time  `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt          time.Time  `gorm:"column:updated_at" json:"updatedAt"`
	TenantID           string     `gorm:"column:tenant_id;index" json:"accountId"`
	TenantSlug         string     `gorm:"column:tenant_slug" json:"slug"`
	Hostname           string     `gorm:"column:hostname;uniqueIndex" json:"domain"`
	RecordType         RecordType `gorm:"column:record_type" json:"dnsRecordType"`
	VerificationToken  string     `gorm:"column:verification_token" json:"verificationToken"`
	VerificationTarget string     `gorm:"column:verification_target" json:"verificationTarget,omitempty"`
	Status             Status     `gorm:"column:status" json:"status"`
	LastError          *string    `gorm:"column:last_error" json:"lastError,omitempty"`
	LastCheckedAt      *time.Time `gorm:"column:last_checked_at" json:"lastCheckedAt,omitempty"`
	VerifiedAt         *time.Time `gorm:"column:verified_at" json:"verifiedAt,omitempty"`
}

func (Domain) TableName() string {
	return "custom_domains"
}

// ExpectedTXTValue is the value the tenant must publish to prove ownership.
func (m *Domain) ExpectedTXTValue() string {
	return "verify=" + m.VerificationToken
}

// verificationUpdate builds the column set for a verification outcome.
// status, last_error and verified_at always move together here so a row can
// never hold an inconsistent combination.
func verificationUpdate(matched bool, reason string, at time.Time) map[string]any {
	updates := map[string]any{
		"last_checked_at": at,
		"updated_at":      at,
	}

	if matched {
		updates["status"] = StatusActive
		updates["last_error"] = nil
		updates["verified_at"] = at
		return updates
	}

	updates["status"] = StatusError
	updates["last_error"] = reason
	updates["verified_at"] = nil
	return updates
}

// Binding is the active hostname to tenant mapping served to the edge
// router. It is derived from an active Domain row and never stored.
type Binding struct {
	Hostname   string    `json:"hostname"`
	TenantID   string    `json:"tenantId"`
	TenantSlug string    `json:"tenantSlug"`
	VerifiedAt time.Time `json:"verifiedAt"`
}

func (m *Domain) ToBinding() *Binding {
	b := &Binding{
		Hostname:   m.Hostname,
		TenantID:   m.TenantID,
		TenantSlug: m.TenantSlug,
	}
	if m.VerifiedAt != nil {
		b.VerifiedAt = *m.VerifiedAt
	}
	return b
}
