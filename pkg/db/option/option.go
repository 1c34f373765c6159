package option

import (
	"time"

	"gorm.io/gorm"

	"github.com/voltoralabs/voltora/pkg/db/pagination"
)

// Option mutates a query statement before execution.
type Option func(stmt *gorm.DB) *gorm.DB

func (o Option) Apply(stmt *gorm.DB) *gorm.DB { return o(stmt) }

// ApplyPagination seeks past the cursor position and fetches one row beyond
// the page size. Call sites order by started_at desc, id desc; the cursor
// predicate matches that order. A malformed token reads the first page.
func ApplyPagination(page pagination.Pagination) Option {
	return func(stmt *gorm.DB) *gorm.DB {
		size := page.PageSize
		if size <= 0 {
			size = 20
		}
		if size > 250 {
			size = 250
		}

		if page.PageToken != "" {
			cursor, err := pagination.DecodeCursor(page.PageToken)
			if err == nil && cursor.StartedAt != "" {
				if at, perr := time.Parse(time.RFC3339Nano, cursor.StartedAt); perr == nil {
					stmt = stmt.Where(
						"(started_at < ?) OR (started_at = ? AND id < ?)",
						at, at, cursor.ID,
					)
				}
			}
		}

		return stmt.Limit(size + 1)
	}
}
