package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{"explicit dsn", ClientConfig{DSN: "postgres://u:p@db/x"}, "postgres://u:p@db/x"},
		{"defaults", ClientConfig{User: "hb", Password: "pw", Host: "localhost", Database: "hedgebot"},
			"postgres://hb:pw@localhost:5432/hedgebot?sslmode=disable"},
		{"ssl", ClientConfig{User: "hb", Password: "pw", Host: "db", Port: 6543, Database: "h", SSLMode: "require"},
			"postgres://hb:pw@db:6543/h?sslmode=require"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DSN(tt.cfg); got != tt.want {
				t.Errorf("DSN = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestListRecentQuery(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	query, args := listRecentQuery(domain.ListOpts{Type: domain.HedgeCrossExchange, Since: &since, Limit: 10, Offset: 20})

	for _, frag := range []string{"hedge_type = $1", "found_at >= $2", "LIMIT $3", "OFFSET $4", "ORDER BY found_at DESC"} {
		if !strings.Contains(query, frag) {
			t.Errorf("query %q missing %q", query, frag)
		}
	}
	if len(args) != 4 || args[0] != "cross_exchange" || args[2] != 10 || args[3] != 20 {
		t.Errorf("args = %v", args)
	}

	query, args = listRecentQuery(domain.ListOpts{})
	if !strings.Contains(query, "LIMIT $1") || len(args) != 1 || args[0] != 50 {
		t.Errorf("default query = %q %v", query, args)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	data, err := migrationsFS.ReadFile("migrations/001_init.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	for _, table := range []string{"hedge_opportunities", "hedge_executions"} {
		if !strings.Contains(string(data), table) {
			t.Errorf("migration does not create %s", table)
		}
	}
}

func TestMigrationNamesSorted(t *testing.T) {
	names, err := migrationNames()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) == 0 || names[0] != "001_init.sql" {
		t.Errorf("names = %v", names)
	}
}
