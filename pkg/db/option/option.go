package option

import (
	"strconv"
	"strings"

	"github.com/smallbiznis/quoteflow/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a statement before it runs.
type QueryOption func(*gorm.DB) *gorm.DB

// SortBy orders by column when it is in allow, and by created_at otherwise.
// id breaks ties in the same direction. direction is asc or desc.
func SortBy(column, direction string, allow ...string) QueryOption {
	column = strings.ToLower(strings.TrimSpace(column))
	permitted := false
	for _, candidate := range allow {
		if candidate == column {
			permitted = true
			break
		}
	}
	if !permitted {
		column = "created_at"
	}
	order := "desc"
	if strings.EqualFold(strings.TrimSpace(direction), "asc") {
		order = "asc"
	}
	return func(db *gorm.DB) *gorm.DB {
		return db.Order(column + " " + order).Order("id " + order)
	}
}

// Keyset pages over snowflake ids, which grow with creation time, fetching
// one row beyond the page size. An unreadable token starts from the top;
// services validate tokens before they get here.
func Keyset(page pagination.Pagination) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if page.PageToken != "" {
			if cursor, err := pagination.DecodeCursor(page.PageToken); err == nil {
				if id, err := strconv.ParseInt(cursor.ID, 10, 64); err == nil {
					db = db.Where("id < ?", id)
				}
			}
		}
		return db.Limit(page.Size() + 1)
	}
}
