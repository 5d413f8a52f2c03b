package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	uniqueViolation = "23505"
)

// whereBuilder accumulates positional predicates.
type whereBuilder struct {
	conditions []string
	args       []interface{}
}

// add appends a predicate; each %s in format receives the next placeholder.
func (w *whereBuilder) add(format string, value interface{}) {
	placeholder := fmt.Sprintf("$%d", len(w.args)+1)
	w.conditions = append(w.conditions, strings.ReplaceAll(format, "%s", placeholder))
	w.args = append(w.args, value)
}

func (w *whereBuilder) clause() string {
	if len(w.conditions) == 0 {
		return "WHERE 1=1"
	}
	return "WHERE " + strings.Join(w.conditions, " AND ")
}

func likePattern(search string) string {
	return "%" + strings.ToLower(strings.TrimSpace(search)) + "%"
}

// orderAndPage resolves sort column, direction and limit/offset.
func orderAndPage(sortBy, sortOrder string, allowed map[string]string, fallback string, page, size int) string {
	column, ok := allowed[sortBy]
	if !ok {
		column = fallback
	}
	order := strings.ToUpper(sortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > maxPageSize {
		size = defaultPageSize
	}
	return fmt.Sprintf("ORDER BY %s %s LIMIT %d OFFSET %d", column, order, size, (page-1)*size)
}

// isUniqueViolation reports whether err is a Postgres unique constraint failure.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
