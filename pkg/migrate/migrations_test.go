package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forgelabs-ai/mediaforge-backend/pkg/migrate"
)

func TestMigrationFilenamesValidate(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matches %q", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestIdempotencyMigrationEnforcesUserKeyUniqueness(t *testing.T) {
	content := readMigration(t, "*_create_idempotency_keys.sql")
	if !strings.Contains(content, "CREATE UNIQUE INDEX idx_idempotency_user_key ON idempotency_keys (user_id, key)") {
		t.Errorf("missing the unique (user_id, key) index")
	}
}

func TestUsersMigrationRejectsNegativeBalances(t *testing.T) {
	content := readMigration(t, "*_create_users.sql")
	if !strings.Contains(content, "CHECK (credits >= 0)") {
		t.Errorf("missing the non-negative credits constraint")
	}
}

func TestPurchasesMigrationConstraints(t *testing.T) {
	content := readMigration(t, "*_create_purchases.sql")

	checks := []string{
		"CREATE UNIQUE INDEX idx_purchases_external_invoice_id ON purchases (external_invoice_id)",
		"credited            BOOLEAN NOT NULL DEFAULT FALSE",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
