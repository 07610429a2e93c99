// Package seed provisions a demo tenant for local development: a sample
// tenant row, both providers enabled with placeholder credentials, and a
// handful of inventory items carried through the Edit API so their ledger
// and outbox rows look exactly like a real mutation produced them.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/lotsync/internal/clock"
	"github.com/wisbric/lotsync/pkg/editapi"
	"github.com/wisbric/lotsync/pkg/inventory"
	"github.com/wisbric/lotsync/pkg/provideradapter"
	"github.com/wisbric/lotsync/pkg/providerconfig"
)

// demoTenantSlug is the fixed slug the demo tenant is always provisioned
// under, so repeated runs and the seeded webhook/header-auth examples stay
// stable across restarts.
const demoTenantSlug = "acme-bricks"

// RunDemo provisions the demo tenant and sample inventory. It is
// idempotent: if the tenant already exists, it logs and returns nil rather
// than duplicating data.
func RunDemo(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	var existingID uuid.UUID
	err := pool.QueryRow(ctx, `SELECT id FROM tenants WHERE slug = $1`, demoTenantSlug).Scan(&existingID)
	if err == nil {
		logger.Info("seed-demo: tenant already exists, skipping", "slug", demoTenantSlug, "tenant_id", existingID)
		return nil
	}

	clk := clock.New()
	tenantID := clk.NewID()
	actorID := clk.NewID()

	if _, err := pool.Exec(ctx,
		`INSERT INTO tenants (id, slug, name) VALUES ($1, $2, $3)`,
		tenantID, demoTenantSlug, "Acme Bricks & Parts",
	); err != nil {
		return fmt.Errorf("creating demo tenant: %w", err)
	}
	logger.Info("seed-demo: created tenant", "tenant_id", tenantID, "slug", demoTenantSlug)

	var credentialKey [32]byte
	copy(credentialKey[:], []byte("seed-demo-credential-key-do-not-use"))
	configs := providerconfig.NewStore(pool, credentialKey)

	if err := configs.Upsert(ctx, tenantID, string(provideradapter.ProviderA), true,
		provideradapter.Credentials{APIKey: "demo-a-key", APISecret: "demo-a-secret"}, 60, 60000); err != nil {
		return fmt.Errorf("enabling provider A for demo tenant: %w", err)
	}
	if err := configs.Upsert(ctx, tenantID, string(provideradapter.ProviderB), true,
		provideradapter.Credentials{APIKey: "demo-b-key", APISecret: "demo-b-secret"}, 60, 60000); err != nil {
		return fmt.Errorf("enabling provider B for demo tenant: %w", err)
	}
	logger.Info("seed-demo: enabled providers A and B")

	editSvc := editapi.NewService(pool, clk, credentialKey)

	priceA := int64(1299)
	priceB := int64(450)
	items := []editapi.CreateFields{
		{PartNumber: "3001", ColorID: "5", Location: "A-12", Condition: inventory.ConditionNew, QuantityAvailable: 240, PriceCents: &priceA, Notes: "2x4 brick, red"},
		{PartNumber: "3020", ColorID: "1", Location: "B-04", Condition: inventory.ConditionUsed, QuantityAvailable: 85, PriceCents: &priceB, Notes: "6x10 plate, white"},
		{PartNumber: "92582", ColorID: "0", Location: "C-19", Condition: inventory.ConditionNew, QuantityAvailable: 12},
	}

	for _, f := range items {
		id, err := editSvc.CreateItem(ctx, tenantID, actorID, f)
		if err != nil {
			return fmt.Errorf("seeding item %s/%s: %w", f.PartNumber, f.ColorID, err)
		}
		logger.Info("seed-demo: created item", "item_id", id, "part_number", f.PartNumber, "color_id", f.ColorID)
	}

	logger.Info("seed-demo: completed successfully", "tenant", demoTenantSlug, "items", len(items))
	return nil
}
