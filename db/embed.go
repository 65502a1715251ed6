// Package db embeds the storefront schema and default seed data.
package db

import _ "embed"

// Schema contains the DDL for the catalog, coupon, shipping and order tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// SeedProducts is the default catalog loaded by seed-db when no products
// file is given.
//
//go:embed seed/products.json
var SeedProducts []byte
