package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/portalvoice/internal/catalog"
	"github.com/MrWong99/portalvoice/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(validConfig(), validConfig())
	if d.LogLevelChanged || d.CatalogChanged || len(d.CatalogChanges) > 0 || len(d.RestartRequired) > 0 {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old, cur := validConfig(), validConfig()
	cur.Server.LogLevel = config.LogDebug

	d := config.Diff(old, cur)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("got %+v, want debug log level change", d)
	}
}

func TestDiff_CatalogEntries(t *testing.T) {
	t.Parallel()
	old, cur := validConfig(), validConfig()
	old.Catalog.Entries = []catalog.Entry{
		{Name: "Buka Portal", URL: "https://pa-cirebon.go.id/"},
		{Name: "Jadwal Sidang", URL: "https://pa-cirebon.go.id/jadwal"},
		{Name: "E-Court", URL: "https://ecourt.mahkamahagung.go.id/"},
	}
	cur.Catalog.Entries = []catalog.Entry{
		{Name: "Buka Portal", URL: "https://pa-cirebon.go.id/"},
		{Name: "Jadwal Sidang", URL: "https://pa-cirebon.go.id/jadwal-sidang"},
		{Name: "Biaya Perkara", URL: "https://pa-cirebon.go.id/biaya"},
	}

	d := config.Diff(old, cur)
	if !d.CatalogChanged {
		t.Fatal("CatalogChanged = false")
	}
	want := []config.EntryDiff{
		{Name: "Jadwal Sidang", Changed: true},
		{Name: "E-Court", Removed: true},
		{Name: "Biaya Perkara", Added: true},
	}
	if !slices.Equal(d.CatalogChanges, want) {
		t.Errorf("CatalogChanges = %+v, want %+v", d.CatalogChanges, want)
	}
}

func TestDiff_CatalogReordered(t *testing.T) {
	t.Parallel()
	a := catalog.Entry{Name: "A", URL: "https://a.example/"}
	b := catalog.Entry{Name: "B", URL: "https://b.example/"}
	old, cur := validConfig(), validConfig()
	old.Catalog.Entries = []catalog.Entry{a, b}
	cur.Catalog.Entries = []catalog.Entry{b, a}

	d := config.Diff(old, cur)
	if !d.CatalogChanged {
		t.Error("reordering must mark the catalog as changed")
	}
	if len(d.CatalogChanges) != 0 {
		t.Errorf("CatalogChanges = %+v, want none", d.CatalogChanges)
	}
}

func TestDiff_SeedFileChanged(t *testing.T) {
	t.Parallel()
	old, cur := validConfig(), validConfig()
	cur.Catalog.SeedFile = "configs/catalog.yaml"

	if d := config.Diff(old, cur); !d.CatalogChanged {
		t.Error("seed file change must mark the catalog as changed")
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old, cur := validConfig(), validConfig()
	cur.Server.ListenAddr = ":9999"
	cur.Catalog.PostgresDSN = "postgres://localhost/portal"
	cur.Voice.Language = "en"
	cur.Timeouts.Chat = time.Minute

	d := config.Diff(old, cur)
	want := []string{"server.listen_addr", "catalog.postgres_dsn", "voice", "timeouts"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.CatalogChanged {
		t.Error("DSN change alone should not trigger a catalog reload")
	}
}
