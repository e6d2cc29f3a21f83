//go:build integration

package testutil

import (
	"context"
	"time"
)

// CleanAll truncates all mutable tables in dependency-safe order. Seeded
// plans and renewal packs survive so allocation tests can reference them.
func (env *TestEnv) CleanAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tables := []string{
		"login_attempts",
		"event_outbox",
		"renewal_settings",
		"class_logs",
		"scheduled_classes",
		"ledger_entries",
		"subscriptions",
		"auth_users",
	}

	for _, table := range tables {
		if _, err := env.Pool.Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			env.t.Fatalf("CleanAll: truncate %s: %v", table, err)
		}
	}
}
