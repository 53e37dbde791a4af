package db

import (
	"path/filepath"
	"testing"

	"github.com/soldierhq/helpergate/internal/models"
	internalsettings "github.com/soldierhq/helpergate/internal/settings"
)

func TestIsSQLiteDSN(t *testing.T) {
	cases := map[string]bool{
		"file:helpergate.db":                               true,
		"file::memory:?cache=shared":                       true,
		"./data/helpergate.db":                             true,
		"data.sqlite?_busy_timeout=5000":                   true,
		"postgres://u:p@localhost:5432/hg?sslmode=disable": false,
		"host=localhost user=hg dbname=hg":                 false,
	}
	for dsn, want := range cases {
		if got := IsSQLiteDSN(dsn); got != want {
			t.Fatalf("IsSQLiteDSN(%q)=%v, want %v", dsn, got, want)
		}
	}
}

func TestOpenRejectsEmptyAndBadPostgresDSN(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
	if _, err := Open("postgres://bad host:notaport/db"); err == nil {
		t.Fatalf("expected error for malformed postgres dsn")
	}
}

func TestMigrateAndSeedSettings(t *testing.T) {
	conn, err := Open("file:" + filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if !IsSQLite(conn) {
		t.Fatalf("expected sqlite dialect, got %q", DialectName(conn))
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	// Second run must be a no-op.
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("re-migrate: %v", errMigrate)
	}
	seed := map[string]any{
		"UNKNOWN_KEY":                             "ignored",
		internalsettings.RateLimitKey:             0,
		internalsettings.RateLimitRedisEnabledKey: false,
	}
	if errSeed := SeedSettings(conn, seed); errSeed != nil {
		t.Fatalf("seed: %v", errSeed)
	}

	var setting models.Setting
	if errFind := conn.Where("key = ?", internalsettings.RateLimitKey).First(&setting).Error; errFind != nil {
		t.Fatalf("find setting: %v", errFind)
	}
	if string(setting.Value) != "0" {
		t.Fatalf("expected default rate limit 0, got %s", string(setting.Value))
	}

	if errUpdate := conn.Model(&models.Setting{}).Where("key = ?", internalsettings.RateLimitKey).
		Update("value", []byte("9")).Error; errUpdate != nil {
		t.Fatalf("update setting: %v", errUpdate)
	}
	if errSeed := SeedSettings(conn, seed); errSeed != nil {
		t.Fatalf("re-seed after edit: %v", errSeed)
	}
	if errFind := conn.Where("key = ?", internalsettings.RateLimitKey).First(&setting).Error; errFind != nil {
		t.Fatalf("find setting: %v", errFind)
	}
	if string(setting.Value) != "9" {
		t.Fatalf("expected edited value preserved, got %s", string(setting.Value))
	}

	var unknown int64
	if errCount := conn.Model(&models.Setting{}).Where("key = ?", "UNKNOWN_KEY").Count(&unknown).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if unknown != 0 {
		t.Fatalf("expected unknown key skipped")
	}
}

func TestJSONArrayContainsOnSQLite(t *testing.T) {
	conn, err := Open("file:" + filepath.Join(t.TempDir(), "contains.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	grants := []models.UnlockGrant{
		{BillingSubscriptionID: 1, ClerkID: "user_a", UnlockedSoldiers: models.HelpersJSON([]string{"buddy", "sage"})},
		{BillingSubscriptionID: 1, ClerkID: "user_a", UnlockedSoldiers: models.HelpersJSON([]string{"scout"})},
	}
	if errCreate := conn.Create(&grants).Error; errCreate != nil {
		t.Fatalf("create grants: %v", errCreate)
	}
	var found []models.UnlockGrant
	if errFind := conn.Where(JSONArrayContainsExpr(conn, "unlocked_soldiers"), JSONArrayContainsString(conn, "sage")).
		Find(&found).Error; errFind != nil {
		t.Fatalf("find: %v", errFind)
	}
	if len(found) != 1 || found[0].ID != grants[0].ID {
		t.Fatalf("expected only first grant, got %+v", found)
	}
	if errLock := LockUserXact(conn, "user_a"); errLock != nil {
		t.Fatalf("expected sqlite lock no-op, got %v", errLock)
	}
}
