//go:build integration

package testutil

import (
	"context"
	"time"
)

// CleanAll truncates all tables in dependency-safe order.
func (env *TestEnv) CleanAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tables := []string{
		"event_outbox",
		"notifications",
		"payment_events",
		"payments",
		"order_items",
		"orders",
		"redeem_codes",
		"redeem_cards",
		"reseller_products",
		"product_variants",
		"products",
		"stores",
		"wallet_transactions",
		"users",
	}

	for _, table := range tables {
		_, _ = env.Pool.Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE")
	}
}
