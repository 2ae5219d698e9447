package tenant

import (
	"time"
)

type AccountStatus string

var (
	Active    AccountStatus = "active"
	Suspended AccountStatus = "suspended"
)

func (t AccountStatus) String() string {
	switch t {
	case Active, Suspended:
		return string(t)
	default:
		return ""
	}
}

// Account is the gateway's read-only view of a tenant account. The account
// store itself is owned by another service.
type Account struct {
	ID        string        `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt time.Time     `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time     `gorm:"column:updated_at" json:"updatedAt"`
	Name      string        `gorm:"column:name" json:"name"`
	Slug      string        `gorm:"column:slug" json:"slug"`
	Status    AccountStatus `gorm:"column:status" json:"status"`
}

func (Account) TableName() string {
	return "accounts"
}
