// Package catalog holds the typed provider catalog for multi-provider
// searches. The catalog is validated once at load time; lookups afterwards
// are infallible for known keys.
package catalog

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/casedesk/intel-cli/internal/model"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Provider is one catalog entry: a named data source with a fixed credit
// cost and its gating flags.
type Provider struct {
	Key             string          `yaml:"key"`
	Name            string          `yaml:"name"`
	Cost            int             `yaml:"cost"`
	Sensitive       bool            `yaml:"sensitive"`
	ConsentRequired bool            `yaml:"consent_required"`
	Kinds           []model.JobKind `yaml:"kinds,omitempty"`
}

// Catalog is the validated set of available providers, in file order.
type Catalog struct {
	providers []Provider
	byKey     map[string]Provider
}

// Load reads the catalog from path, or the embedded default when path is
// empty, and validates it.
func Load(path string) (*Catalog, error) {
	raw := defaultCatalogYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrap(err, "catalog: read file")
		}
		raw = b
	}

	var doc struct {
		Providers []Provider `yaml:"providers"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, eris.Wrap(err, "catalog: parse yaml")
	}

	return New(doc.Providers)
}

// New builds a catalog from entries, rejecting duplicates and malformed
// entries up front.
func New(providers []Provider) (*Catalog, error) {
	if len(providers) == 0 {
		return nil, eris.New("catalog: no providers defined")
	}

	byKey := make(map[string]Provider, len(providers))
	for _, p := range providers {
		if p.Key == "" {
			return nil, eris.New("catalog: provider with empty key")
		}
		if p.Name == "" {
			return nil, eris.Errorf("catalog: provider %q has no display name", p.Key)
		}
		if p.Cost <= 0 {
			return nil, eris.Errorf("catalog: provider %q has non-positive cost %d", p.Key, p.Cost)
		}
		if _, dup := byKey[p.Key]; dup {
			return nil, eris.Errorf("catalog: duplicate provider key %q", p.Key)
		}
		byKey[p.Key] = p
	}

	return &Catalog{providers: providers, byKey: byKey}, nil
}

// Providers returns all entries in catalog order.
func (c *Catalog) Providers() []Provider {
	out := make([]Provider, len(c.providers))
	copy(out, c.providers)
	return out
}

// Get returns the provider for key.
func (c *Catalog) Get(key string) (Provider, bool) {
	p, ok := c.byKey[key]
	return p, ok
}

// Resolve maps a set of selected keys to providers, rejecting unknown keys
// and collapsing duplicates while preserving first-seen order.
func (c *Catalog) Resolve(keys []string) ([]Provider, error) {
	if len(keys) == 0 {
		return nil, &model.ValidationError{Field: "providers", Reason: "no providers selected"}
	}
	seen := make(map[string]bool, len(keys))
	out := make([]Provider, 0, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		p, ok := c.byKey[k]
		if !ok {
			return nil, &model.ValidationError{Field: "providers", Reason: "unknown provider " + k}
		}
		out = append(out, p)
	}
	return out, nil
}

// TotalCost sums the credit cost over selected keys. Duplicate keys count
// once; selection is a set.
func (c *Catalog) TotalCost(keys []string) (int, error) {
	providers, err := c.Resolve(keys)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, p := range providers {
		total += p.Cost
	}
	return total, nil
}

// ConsentGated returns the selected providers that require explicit consent.
func (c *Catalog) ConsentGated(keys []string) []string {
	var gated []string
	for _, k := range keys {
		if p, ok := c.byKey[k]; ok && p.ConsentRequired {
			gated = append(gated, p.Key)
		}
	}
	return gated
}
