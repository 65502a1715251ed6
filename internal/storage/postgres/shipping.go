package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/domain/shipping"
)

const (
	shippingRuleColumns = `country_code, country_name, standard_shipping_cost, standard_delivery_days,
		free_shipping_threshold, next_day_available, next_day_cost, next_day_cutoff_hour,
		click_collect_available, is_active`

	findShippingRuleSQL = `SELECT ` + shippingRuleColumns + ` FROM shipping_rules WHERE country_code = $1`

	listShippingRulesSQL = `SELECT ` + shippingRuleColumns + ` FROM shipping_rules ORDER BY country_code`

	upsertShippingRuleSQL = `INSERT INTO shipping_rules (` + shippingRuleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (country_code) DO UPDATE SET
			country_name = EXCLUDED.country_name,
			standard_shipping_cost = EXCLUDED.standard_shipping_cost,
			standard_delivery_days = EXCLUDED.standard_delivery_days,
			free_shipping_threshold = EXCLUDED.free_shipping_threshold,
			next_day_available = EXCLUDED.next_day_available,
			next_day_cost = EXCLUDED.next_day_cost,
			next_day_cutoff_hour = EXCLUDED.next_day_cutoff_hour,
			click_collect_available = EXCLUDED.click_collect_available,
			is_active = EXCLUDED.is_active`
)

var _ shipping.Repository = (*ShippingRepository)(nil)

// ShippingRepository implements shipping.Repository backed by PostgreSQL.
type ShippingRepository struct {
	pool *pgxpool.Pool
}

// NewShippingRepository returns a ShippingRepository that uses the given pool.
func NewShippingRepository(pool *pgxpool.Pool) *ShippingRepository {
	return &ShippingRepository{pool: pool}
}

// FindByCountry returns the rule for a country code, active or not.
func (r *ShippingRepository) FindByCountry(ctx context.Context, countryCode string) (*shipping.Rule, error) {
	rows, err := r.pool.Query(ctx, findShippingRuleSQL, countryCode)
	if err != nil {
		return nil, fmt.Errorf("finding shipping rule %q: %w", countryCode, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanShippingRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shipping.ErrRuleNotFound
		}
		return nil, fmt.Errorf("finding shipping rule %q: %w", countryCode, err)
	}
	return &rule, nil
}

// List returns all rules ordered by country code.
func (r *ShippingRepository) List(ctx context.Context) ([]shipping.Rule, error) {
	rows, err := r.pool.Query(ctx, listShippingRulesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing shipping rules: %w", err)
	}
	return pgx.CollectRows(rows, scanShippingRule)
}

// Upsert creates or replaces the rule for its country.
func (r *ShippingRepository) Upsert(ctx context.Context, rule *shipping.Rule) error {
	_, err := r.pool.Exec(ctx, upsertShippingRuleSQL,
		rule.CountryCode, rule.CountryName, rule.StandardCost, rule.StandardDeliveryDays,
		rule.FreeShippingThreshold, rule.NextDayAvailable, rule.NextDayCost, rule.NextDayCutoffHour,
		rule.ClickCollectAvailable, rule.IsActive,
	)
	if err != nil {
		return fmt.Errorf("upserting shipping rule %q: %w", rule.CountryCode, err)
	}
	return nil
}

func scanShippingRule(row pgx.CollectableRow) (shipping.Rule, error) {
	var r shipping.Rule
	err := row.Scan(
		&r.CountryCode, &r.CountryName, &r.StandardCost, &r.StandardDeliveryDays,
		&r.FreeShippingThreshold, &r.NextDayAvailable, &r.NextDayCost, &r.NextDayCutoffHour,
		&r.ClickCollectAvailable, &r.IsActive,
	)
	return r, err
}
