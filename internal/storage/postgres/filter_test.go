package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

func TestOrderListQuery(t *testing.T) {
	shipped := order.StatusShipped
	user := int64(42)

	tests := []struct {
		name      string
		filter    order.Filter
		wantWhere string
		wantTail  string
		wantArgs  []any
	}{
		{
			name:     "no predicates",
			filter:   order.Filter{Limit: 50},
			wantTail: " ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2",
			wantArgs: []any{50, 0},
		},
		{
			name:      "status only",
			filter:    order.Filter{Status: &shipped, Limit: 10, Offset: 20},
			wantWhere: " WHERE status = $1",
			wantTail:  " LIMIT $2 OFFSET $3",
			wantArgs:  []any{"shipped", 10, 20},
		},
		{
			name:      "status and user",
			filter:    order.Filter{Status: &shipped, UserID: &user, Limit: 5},
			wantWhere: " WHERE status = $1 AND user_id = $2",
			wantTail:  " LIMIT $3 OFFSET $4",
			wantArgs:  []any{"shipped", int64(42), 5, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := orderListQuery(tt.filter)
			if tt.wantWhere != "" {
				assert.Contains(t, sql, tt.wantWhere)
			} else {
				assert.NotContains(t, sql, "WHERE")
			}
			assert.Contains(t, sql, tt.wantTail)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}
