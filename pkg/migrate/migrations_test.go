package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cartaviva/cartaviva-backend/pkg/migrate"
)

func TestValidateMigrationsDir(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migrations dir invalid: %v", err)
	}
}

func TestListingsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_listings.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS listings",
		"CHECK (available_qty >= 0)",
		"CHECK (reserved_qty >= 0)",
		"FOREIGN KEY (listing_id) REFERENCES listings(id) ON DELETE CASCADE",
		"UNIQUE (transaction_id, listing_id)",
		"DROP TABLE IF EXISTS listing_reservations",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestTransactionsMigrationContainsLifecycleColumns(t *testing.T) {
	content := readMigration(t, "*_create_transactions.sql")

	checks := []string{
		"status transaction_status NOT NULL DEFAULT 'pending_seller_response'",
		"seller_deadline timestamptz NOT NULL",
		"delivery_deadline timestamptz",
		"CHECK (buyer_id <> seller_id)",
		"WHERE status = 'pending_seller_response'",
		"WHERE status = 'accepted_pending_delivery'",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestRatingsMigrationEnforcesOnePerRole(t *testing.T) {
	content := readMigration(t, "*_create_ratings_disputes.sql")

	checks := []string{
		"UNIQUE (transaction_id, role)",
		"CHECK (score BETWEEN 1 AND 5)",
		"transaction_id uuid NOT NULL UNIQUE",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s found", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
