package achievement

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Definition is an immutable catalog entry keyed by a stable code.
type Definition struct {
	Code        string `yaml:"code"`
	Kind        Kind   `yaml:"kind"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Points      int    `yaml:"points"`
}

// Catalog maps every kind to its definition.
type Catalog struct {
	byKind map[Kind]Definition
	byCode map[string]Definition
}

type catalogFile struct {
	Achievements []Definition `yaml:"achievements"`
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("achievement: decode catalog: %w", err)
	}

	c := &Catalog{
		byKind: make(map[Kind]Definition, len(f.Achievements)),
		byCode: make(map[string]Definition, len(f.Achievements)),
	}
	for _, d := range f.Achievements {
		d.Code = strings.TrimSpace(d.Code)
		switch {
		case d.Code == "":
			return nil, fmt.Errorf("achievement: catalog entry for %s has no code", d.Kind)
		case d.Name == "":
			return nil, fmt.Errorf("achievement: %s has no name", d.Code)
		case d.Points < 0:
			return nil, fmt.Errorf("achievement: %s has negative points", d.Code)
		}
		if _, ok := registry[d.Kind]; !ok {
			return nil, fmt.Errorf("achievement: %s has unknown kind", d.Code)
		}
		if _, dup := c.byKind[d.Kind]; dup {
			return nil, fmt.Errorf("achievement: kind %s defined twice", d.Kind)
		}
		if _, dup := c.byCode[d.Code]; dup {
			return nil, fmt.Errorf("achievement: code %s defined twice", d.Code)
		}
		c.byKind[d.Kind] = d
		c.byCode[d.Code] = d
	}
	for _, k := range Kinds() {
		if _, ok := c.byKind[k]; !ok {
			return nil, fmt.Errorf("achievement: catalog is missing kind %s", k)
		}
	}
	return c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = ParseCatalog(defaultCatalogYAML)
	})
	return defaultCatalog, defaultErr
}

// Definition returns the entry for a kind.
func (c *Catalog) Definition(k Kind) Definition {
	return c.byKind[k]
}

// ByCode looks an entry up by code.
func (c *Catalog) ByCode(code string) (Definition, bool) {
	d, ok := c.byCode[code]
	return d, ok
}

// Definitions returns all entries in kind order.
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, 0, len(c.byKind))
	for _, k := range Kinds() {
		out = append(out, c.byKind[k])
	}
	return out
}
