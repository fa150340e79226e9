package config

import "github.com/MrWong99/portalvoice/internal/catalog"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// CatalogChanged is true when the inline entries or the seed file path
	// changed. The catalog store is replaced wholesale.
	CatalogChanged bool
	CatalogChanges []EntryDiff

	// RestartRequired lists settings that changed but only take effect
	// after a restart.
	RestartRequired []string
}

// EntryDiff describes one changed inline catalog entry.
type EntryDiff struct {
	Name    string
	Added   bool
	Removed bool
	Changed bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Catalog.SeedFile != new.Catalog.SeedFile {
		d.CatalogChanged = true
	}
	d.CatalogChanges = diffEntries(old.Catalog.Entries, new.Catalog.Entries)
	if len(d.CatalogChanges) > 0 {
		d.CatalogChanged = true
	}
	if !d.CatalogChanged && !sameOrder(old.Catalog.Entries, new.Catalog.Entries) {
		// Order decides ties between equally scored entries.
		d.CatalogChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Catalog.PostgresDSN != new.Catalog.PostgresDSN {
		d.RestartRequired = append(d.RestartRequired, "catalog.postgres_dsn")
	}
	if old.Voice != new.Voice {
		d.RestartRequired = append(d.RestartRequired, "voice")
	}
	if old.Timeouts != new.Timeouts {
		d.RestartRequired = append(d.RestartRequired, "timeouts")
	}

	return d
}

func diffEntries(old, new []catalog.Entry) []EntryDiff {
	oldByName := make(map[string]catalog.Entry, len(old))
	for _, e := range old {
		oldByName[e.Name] = e
	}
	newByName := make(map[string]catalog.Entry, len(new))
	for _, e := range new {
		newByName[e.Name] = e
	}

	var out []EntryDiff
	for _, e := range old {
		ne, ok := newByName[e.Name]
		switch {
		case !ok:
			out = append(out, EntryDiff{Name: e.Name, Removed: true})
		case ne != e:
			out = append(out, EntryDiff{Name: e.Name, Changed: true})
		}
	}
	for _, e := range new {
		if _, ok := oldByName[e.Name]; !ok {
			out = append(out, EntryDiff{Name: e.Name, Added: true})
		}
	}
	return out
}

func sameOrder(a, b []catalog.Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return false
		}
	}
	return true
}
