package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is the stock-relevant slice of a catalog item.
type Product struct {
	ID                int64
	Name              string
	Price             decimal.Decimal
	Stock             int
	LowStockThreshold int
	IsActive          bool
}

// Available reports whether qty units can be sold from the current stock.
func (p Product) Available(qty int) bool {
	return p.IsActive && p.Stock >= qty
}

// Catalog resolves products for pricing. Missing ids are simply absent from
// the result; callers decide how to report them.
type Catalog interface {
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
}

// Repository extends Catalog with the reporting queries used by the admin
// surface.
type Repository interface {
	Catalog
	GetByID(ctx context.Context, id int64) (*Product, error)
	ListLowStock(ctx context.Context) ([]Product, error)
}

// NotFoundError names the product id that could not be resolved.
type NotFoundError struct {
	ProductID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// UnavailableError reports a product whose stock cannot cover the request.
type UnavailableError struct {
	ProductID int64
	Name      string
	Requested int
	InStock   int
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("product %d (%s): requested %d, in stock %d", e.ProductID, e.Name, e.Requested, e.InStock)
}
