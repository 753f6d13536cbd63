package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog is the validated, ordered model list. Read-only after load;
// a reload produces a fresh Catalog value rather than mutating this one.
type Catalog struct {
	specs []*ModelSpec
	byID  map[string]*ModelSpec
}

// catalogFile is the on-disk YAML shape of the catalog.
type catalogFile struct {
	Models []*ModelSpec `yaml:"models"`
}

// LoadCatalog reads, expands, parses, and validates the catalog file.
// Exactly one file is read; duplicate ids, container names, or ports
// fail the load.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError(path, ErrConfigNotFound)
		}
		return nil, NewLoadError(path, err)
	}

	expanded := ExpandEnv(data)

	var file catalogFile
	if err := yaml.Unmarshal(expanded, &file); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	for _, spec := range file.Models {
		spec.applyDefaults()
	}

	if err := ValidateSpecs(file.Models); err != nil {
		return nil, NewLoadError(path, err)
	}

	return NewCatalog(file.Models), nil
}

// NewCatalog builds a catalog from already-validated specs.
func NewCatalog(specs []*ModelSpec) *Catalog {
	byID := make(map[string]*ModelSpec, len(specs))
	for _, spec := range specs {
		byID[spec.ID] = spec
	}
	return &Catalog{specs: specs, byID: byID}
}

// ByID returns the spec for the given model id.
func (c *Catalog) ByID(id string) (*ModelSpec, bool) {
	spec, ok := c.byID[id]
	return spec, ok
}

// All returns the specs in declaration order. The returned slice is a
// copy; the specs themselves are shared and must not be mutated.
func (c *Catalog) All() []*ModelSpec {
	out := make([]*ModelSpec, len(c.specs))
	copy(out, c.specs)
	return out
}

// Len returns the number of declared models.
func (c *Catalog) Len() int {
	return len(c.specs)
}
