package integration

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

/* FileSource manages integrations from integrations.yaml
 * Provides in-memory lookup for fast access
 */

// FileConfig represents the structure of integrations.yaml
type FileConfig struct {
	Integrations []FileEntry `yaml:"integrations"`
}

// FileEntry represents a single integration in the YAML file
type FileEntry struct {
	ID         string `yaml:"id"`
	TenantID   string `yaml:"tenant_id"`
	ShopDomain string `yaml:"shop_domain"`
	Secret     string `yaml:"secret"`
	Active     *bool  `yaml:"active"` // Default: true
}

// FileSource holds the loaded integrations keyed by shop domain
type FileSource struct {
	byDomain map[string]Integration
}

// NewFileSource creates an empty file source
func NewFileSource() *FileSource {
	return &FileSource{
		byDomain: make(map[string]Integration),
	}
}

// Load reads and parses the integrations file
func (f *FileSource) Load(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading integrations file: %w", err)
	}
	return f.Parse(data)
}

// Parse loads integrations from YAML bytes
func (f *FileSource) Parse(data []byte) error {
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parsing integrations YAML: %w", err)
	}

	loaded := make(map[string]Integration, len(cfg.Integrations))
	ids := make(map[string]bool, len(cfg.Integrations))
	for _, e := range cfg.Integrations {
		active := true
		if e.Active != nil {
			active = *e.Active
		}

		in := Integration{
			ID:         e.ID,
			TenantID:   e.TenantID,
			ShopDomain: NormalizeDomain(e.ShopDomain),
			Secret:     e.Secret,
			Active:     active,
		}
		if err := in.Validate(); err != nil {
			return fmt.Errorf("validating integration: %w", err)
		}
		if ids[in.ID] {
			return fmt.Errorf("duplicate integration id %s", in.ID)
		}
		if _, exists := loaded[in.ShopDomain]; exists {
			return fmt.Errorf("duplicate shop_domain %s", in.ShopDomain)
		}

		ids[in.ID] = true
		loaded[in.ShopDomain] = in
	}

	f.byDomain = loaded
	return nil
}

// Get retrieves an integration by shop domain
func (f *FileSource) Get(ctx context.Context, shopDomain string) (Integration, error) {
	in, exists := f.byDomain[NormalizeDomain(shopDomain)]
	if !exists {
		return Integration{}, fmt.Errorf("%w: %s", ErrNotFound, shopDomain)
	}
	return in, nil
}

// List returns all loaded integrations ordered by id
func (f *FileSource) List() []Integration {
	out := make([]Integration, 0, len(f.byDomain))
	for _, in := range f.byDomain {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
