// Package manifest reads the list of items and image locators the command
// line tool preloads.
//
//	priority: prefetch
//	items:
//	  - id: product-1
//	    images:
//	      - https://cdn.example.com/p1/front.jpg
//	      - https://cdn.example.com/p1/back.jpg
package manifest

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/IvanBrykalov/imgprefetch/engine"
)

// Manifest is an ordered list of items.
type Manifest struct {
	// Priority applies to the first image of every item. Empty => prefetch.
	Priority string `yaml:"priority"`
	Items    []Item `yaml:"items" validate:"required,min=1,dive"`
}

// Item is one renderable unit (a product card, a post) and its images.
// The first image is the one shown first.
type Item struct {
	ID     string   `yaml:"id" validate:"required"`
	Images []string `yaml:"images" validate:"required,min=1,dive,url"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML manifest.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if _, err := m.Prio(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	seen := make(map[string]struct{}, len(m.Items))
	var errs []error
	for _, it := range m.Items {
		if _, dup := seen[it.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate item id %q", it.ID))
		}
		seen[it.ID] = struct{}{}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

// Prio returns the parsed priority.
func (m *Manifest) Prio() (engine.Priority, error) {
	if m.Priority == "" {
		return engine.Prefetch, nil
	}
	return engine.ParsePriority(m.Priority)
}

// IDs returns the item ids in manifest order.
func (m *Manifest) IDs() []string {
	ids := make([]string, len(m.Items))
	for i, it := range m.Items {
		ids[i] = it.ID
	}
	return ids
}

// ImagesByItem returns the image locators keyed by item id.
func (m *Manifest) ImagesByItem() map[string][]string {
	out := make(map[string][]string, len(m.Items))
	for _, it := range m.Items {
		out[it.ID] = it.Images
	}
	return out
}

// Locators returns every image locator in manifest order.
func (m *Manifest) Locators() []string {
	var out []string
	for _, it := range m.Items {
		out = append(out, it.Images...)
	}
	return out
}
