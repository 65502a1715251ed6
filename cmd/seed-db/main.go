// Command seed-db migrates the schema and loads the default catalog,
// shipping rules, coupons and an admin API key.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/db"
	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/shipping"
	"github.com/xenking/storefront-checkout/internal/storage/postgres"
)

type productJSON struct {
	Name              string          `json:"name"`
	Slug              string          `json:"slug"`
	SKU               string          `json:"sku"`
	Price             decimal.Decimal `json:"price"`
	Stock             int             `json:"stock"`
	LowStockThreshold int             `json:"lowStockThreshold"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "", "path to products JSON file (defaults to the embedded catalog)")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or SHOP_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("SHOP_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or SHOP_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedShippingRules(ctx, pool); err != nil {
		return errors.Wrap(err, "seed shipping rules")
	}
	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	data := db.SeedProducts
	if productsFile != "" {
		slog.Info("reading products file", slog.String("path", productsFile))

		var err error
		if data, err = os.ReadFile(productsFile); err != nil {
			return errors.Wrap(err, "read products file")
		}
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	repo := postgres.NewProductRepository(pool)
	for _, p := range products {
		id, err := repo.Upsert(ctx, postgres.SeedProduct{
			Name:              p.Name,
			Slug:              p.Slug,
			SKU:               p.SKU,
			Price:             p.Price,
			Stock:             p.Stock,
			LowStockThreshold: p.LowStockThreshold,
		})
		if err != nil {
			return err
		}

		slog.Info("upserted product", slog.Int64("id", id), slog.String("name", p.Name))
	}

	return nil
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nullMoney(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(money(s))
}

func seedShippingRules(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding shipping rules")

	rules := []shipping.Rule{
		{
			CountryCode:           "GB",
			CountryName:           "United Kingdom",
			StandardCost:          money("3.50"),
			StandardDeliveryDays:  3,
			FreeShippingThreshold: nullMoney("25.00"),
			NextDayAvailable:      true,
			NextDayCost:           nullMoney("4.95"),
			NextDayCutoffHour:     14,
			ClickCollectAvailable: true,
		},
		{
			CountryCode:           "IE",
			CountryName:           "Ireland",
			StandardCost:          money("5.99"),
			StandardDeliveryDays:  5,
			FreeShippingThreshold: nullMoney("50.00"),
		},
		{
			CountryCode:           "FR",
			CountryName:           "France",
			StandardCost:          money("7.99"),
			StandardDeliveryDays:  7,
			FreeShippingThreshold: nullMoney("75.00"),
		},
		{
			CountryCode:           "DE",
			CountryName:           "Germany",
			StandardCost:          money("7.99"),
			StandardDeliveryDays:  7,
			FreeShippingThreshold: nullMoney("75.00"),
		},
		{
			CountryCode:           "US",
			CountryName:           "United States",
			StandardCost:          money("12.99"),
			StandardDeliveryDays:  14,
			FreeShippingThreshold: nullMoney("100.00"),
		},
	}

	repo := postgres.NewShippingRepository(pool)
	for i := range rules {
		r := &rules[i]
		r.IsActive = true
		if r.NextDayCutoffHour == 0 {
			r.NextDayCutoffHour = shipping.DefaultCutoffHour
		}
		if err := r.Check(); err != nil {
			return err
		}
		if err := repo.Upsert(ctx, r); err != nil {
			return err
		}

		slog.Info("upserted shipping rule", slog.String("country", r.CountryCode))
	}

	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding coupons")

	once := 1
	coupons := []coupon.Coupon{
		{Code: "SAVE20", DiscountType: coupon.DiscountPercentage, Value: money("20"), MinOrderAmount: nullMoney("30.00"), Description: "20% off orders over 30"},
		{Code: "WELLNESS15", DiscountType: coupon.DiscountPercentage, Value: money("15"), MinOrderAmount: nullMoney("20.00"), Description: "15% off wellness favourites"},
		{Code: "BABY15", DiscountType: coupon.DiscountPercentage, Value: money("15"), MinOrderAmount: nullMoney("40.00"), Description: "15% off when you spend 40 on baby"},
		{Code: "FREESHIP", DiscountType: coupon.DiscountFixed, Value: money("3.50"), MinOrderAmount: nullMoney("15.00"), Description: "Free standard delivery"},
		{Code: "WELCOME10", DiscountType: coupon.DiscountPercentage, Value: money("10"), UsageLimit: &once, Description: "10% off your first order"},
	}
	for i := range coupons {
		coupons[i].IsActive = true
		if err := coupons[i].Check(); err != nil {
			return err
		}
	}

	inserted, err := postgres.NewCouponRepository(pool).Import(ctx, coupons)
	if err != nil {
		return err
	}

	slog.Info("seeded coupons", slog.Int("inserted", inserted), slog.Int("existing", len(coupons)-inserted))

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding admin API key")

	info := auth.APIKeyInfo{
		ID:      "admin",
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
		Name:    "Default admin key",
		Scopes:  []string{auth.ScopeAdmin},
	}
	if err := postgres.NewAPIKeyRepository(pool).Upsert(ctx, info); err != nil {
		return err
	}

	slog.Info("upserted API key", slog.String("id", info.ID), slog.String("name", info.Name))

	return nil
}
