package catalog

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile is the top-level structure of a catalog seed YAML file.
//
// Example:
//
//	entries:
//	  - name: "pendaftaran perkara"
//	    url: "https://sipendi.pa-cirebon.go.id"
//	    description: "Pendaftaran perkara dapat dilakukan secara online."
type SeedFile struct {
	Entries []Entry `yaml:"entries"`
}

// LoadSeedFile reads and parses a seed file from disk.
func LoadSeedFile(path string) (*SeedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open seed file %q: %w", path, err)
	}
	defer f.Close()

	sf, err := LoadSeedFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse seed file %q: %w", path, err)
	}
	return sf, nil
}

// LoadSeedFromReader parses seed YAML from r. Unknown keys are rejected.
func LoadSeedFromReader(r io.Reader) (*SeedFile, error) {
	var sf SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sf); err != nil && err != io.EOF {
		return nil, fmt.Errorf("catalog: decode seed yaml: %w", err)
	}
	if err := ValidateEntries(sf.Entries); err != nil {
		return nil, err
	}
	return &sf, nil
}

// Import replaces the contents of store with the seed entries and returns
// how many were written.
func Import(ctx context.Context, store Store, seed *SeedFile) (int, error) {
	if seed == nil {
		return 0, fmt.Errorf("catalog: seed must not be nil")
	}
	if err := store.Replace(ctx, seed.Entries); err != nil {
		return 0, fmt.Errorf("catalog: import: %w", err)
	}
	return len(seed.Entries), nil
}
