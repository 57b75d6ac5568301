// Package db embeds the schema migrations and the demo venue seed.
package db

import "embed"

// Migrations holds the numbered DDL files applied at startup in name order.
// Every statement is idempotent.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// DemoSeed is a single restaurant with tables, foods and one open offer.
//
//go:embed seed/venue.json
var DemoSeed []byte
