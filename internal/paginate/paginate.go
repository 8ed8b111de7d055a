// Package paginate rewrites a SELECT into one page of results plus a count query.
package paginate

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/xwb1989/sqlparser"
)

const (
	MaxPageSize     = 1000
	DefaultPageSize = 50
)

var (
	ErrNotSelect   = errors.New("pagination is only supported for SELECT queries")
	ErrHasLimit    = errors.New("query already contains a LIMIT clause, remove it and try again")
	ErrInvalidPage = errors.New("page must be a positive integer")
	ErrInvalidSize = fmt.Errorf("page_size must be between 1 and %d", MaxPageSize)
)

// Plan is the pair of statements that serve one page.
type Plan struct {
	PageSQL  string
	CountSQL string
	Page     int
	PageSize int
	Offset   int
}

// Rewrite parses query, which must be a single SELECT without LIMIT, and
// returns the page and count statements. Page numbers start at 1.
func Rewrite(query string, page, pageSize int) (*Plan, error) {
	if page < 1 {
		return nil, ErrInvalidPage
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return nil, ErrInvalidSize
	}

	stmt, err := sqlparser.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("unable to parse query: %w", err)
	}
	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return nil, ErrNotSelect
	}
	if sel.Limit != nil {
		return nil, ErrHasLimit
	}

	countSQL := "select count(*) as total from (" + sqlparser.String(sel) + ") as paginated_count"

	offset := (page - 1) * pageSize
	sel.Limit = &sqlparser.Limit{
		Offset:   sqlparser.NewIntVal([]byte(strconv.Itoa(offset))),
		Rowcount: sqlparser.NewIntVal([]byte(strconv.Itoa(pageSize))),
	}

	return &Plan{
		PageSQL:  sqlparser.String(sel),
		CountSQL: countSQL,
		Page:     page,
		PageSize: pageSize,
		Offset:   offset,
	}, nil
}

// TotalPages rounds up.
func TotalPages(total int64, pageSize int) int64 {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return (total + int64(pageSize) - 1) / int64(pageSize)
}
