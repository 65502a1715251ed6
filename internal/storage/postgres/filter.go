package postgres

import (
	"strconv"
	"strings"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// whereBuilder composes a conjunction of positional predicates.
type whereBuilder struct {
	clauses []string
	args    []any
}

// add appends a predicate. Each "?" in expr is replaced by the next
// positional placeholder bound to arg.
func (w *whereBuilder) add(expr string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.Replace(expr, "?", "$"+strconv.Itoa(len(w.args)), 1))
}

// next returns the placeholder for an extra argument after the predicates.
func (w *whereBuilder) next(arg any) string {
	w.args = append(w.args, arg)
	return "$" + strconv.Itoa(len(w.args))
}

func (w *whereBuilder) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// orderListQuery builds the admin listing query for a normalized filter.
func orderListQuery(f order.Filter) (string, []any) {
	var w whereBuilder
	if f.Status != nil {
		w.add("status = ?", string(*f.Status))
	}
	if f.UserID != nil {
		w.add("user_id = ?", *f.UserID)
	}

	where := w.sql()
	limit := w.next(f.Limit)
	offset := w.next(f.Offset)

	return `SELECT ` + orderColumns + ` FROM orders` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ` + limit + ` OFFSET ` + offset, w.args
}
