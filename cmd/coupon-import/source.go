package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
)

// row is one parsed CSV record. Err is set when the record is not a valid
// coupon; Coupon is then zero.
type row struct {
	Line   int
	Coupon coupon.Coupon
	Err    error
}

// source is a named stream of coupon rows that can be read more than once.
type source struct {
	name string
	scan func(ctx context.Context, fn func(row) error) error
}

func fileSource(path string) source {
	return source{
		name: filepath.Base(path),
		scan: func(ctx context.Context, fn func(row) error) error {
			return scanGzFile(ctx, path, fn)
		},
	}
}

// scanGzFile streams a gzip-compressed CSV file of
// code,type,value,minOrderAmount,maxDiscount,usageLimit records.
func scanGzFile(ctx context.Context, path string, fn func(row) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	return scanCSV(ctx, gz, fn)
}

func scanCSV(ctx context.Context, r io.Reader, fn func(row) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read line %d", line)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "code") {
			continue
		}

		c, perr := parseRecord(record)
		if err := fn(row{Line: line, Coupon: c, Err: perr}); err != nil {
			return err
		}
	}
}

const (
	colCode = iota
	colType
	colValue
	colMinOrder
	colMaxDiscount
	colUsageLimit
	numCols
)

func parseRecord(record []string) (coupon.Coupon, error) {
	if len(record) < colValue+1 || len(record) > numCols {
		return coupon.Coupon{}, errors.Errorf("expected 3 to %d fields, got %d", numCols, len(record))
	}
	field := func(i int) string {
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	c := coupon.Coupon{
		Code:         field(colCode),
		DiscountType: coupon.DiscountType(strings.ToLower(field(colType))),
		IsActive:     true,
	}

	var err error
	if c.Value, err = decimal.NewFromString(field(colValue)); err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "value")
	}
	if c.MinOrderAmount, err = parseNullDecimal(field(colMinOrder)); err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "minOrderAmount")
	}
	if c.MaxDiscount, err = parseNullDecimal(field(colMaxDiscount)); err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "maxDiscount")
	}
	if s := field(colUsageLimit); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return coupon.Coupon{}, errors.Wrap(err, "usageLimit")
		}
		c.UsageLimit = &n
	}

	if err := c.Check(); err != nil {
		return coupon.Coupon{}, err
	}
	return c, nil
}

func parseNullDecimal(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
