package option

import (
	"edgegate/pkg/db/pagination"

	"gorm.io/gorm"
)

// QueryOption mutates a gorm query before it executes.
type QueryOption func(*gorm.DB) *gorm.DB

func WithOrder(order string) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Order(order)
	}
}

func ApplyPagination(p pagination.Pagination) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		if p.Limit > 0 {
			tx = tx.Limit(p.Limit)
		}
		if p.Cursor != "" {
			if cursor, err := pagination.DecodeCursor(p.Cursor); err == nil && cursor.ID != "" {
				tx = tx.Where("id > ?", cursor.ID)
			}
		}
		return tx
	}
}
