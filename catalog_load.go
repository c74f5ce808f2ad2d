package models

import (
	_ "embed"
	"fmt"
	"path"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

var (
	defaultCatalogOnce sync.Once
	defaultCatalog     *Catalog
	defaultCatalogErr  error
)

// DefaultCatalog returns the built-in catalog. It is parsed once per process.
func DefaultCatalog() (*Catalog, error) {
	defaultCatalogOnce.Do(func() {
		defaultCatalog, defaultCatalogErr = ParseCatalog(defaultCatalogYAML)
	})
	return defaultCatalog, defaultCatalogErr
}

// catalogFile is the YAML document layout.
type catalogFile struct {
	DefaultGroup string       `yaml:"default_group"`
	Families     []Family     `yaml:"families"`
	Groups       []Group      `yaml:"groups"`
	Assets       []assetEntry `yaml:"assets"`
}

type assetEntry struct {
	Name           string      `yaml:"name"`
	Family         string      `yaml:"family"`
	Group          string      `yaml:"group"`
	Repository     string      `yaml:"repository"`
	Revision       string      `yaml:"revision"`
	Description    string      `yaml:"description"`
	Language       string      `yaml:"language"`
	MinSize        int64       `yaml:"min_size"`
	LocalPrefix    string      `yaml:"local_prefix"`
	Shared         bool        `yaml:"shared"`
	Dependents     []string    `yaml:"dependents"`
	DependentGroup string      `yaml:"dependent_group"` // expands to every member of the group
	Files          []AssetFile `yaml:"files"`
}

// ParseCatalog decodes a YAML catalog document and validates it.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc catalogFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	byGroup := make(map[string][]string)
	for _, e := range doc.Assets {
		if e.Group != "" {
			byGroup[e.Group] = append(byGroup[e.Group], e.Name)
		}
	}

	def := CatalogDefinition{
		DefaultGroup: doc.DefaultGroup,
		Families:     doc.Families,
		Groups:       doc.Groups,
		Assets:       make([]AssetDescriptor, 0, len(doc.Assets)),
	}
	for _, e := range doc.Assets {
		d := AssetDescriptor{
			Name:        e.Name,
			Family:      e.Family,
			Group:       e.Group,
			Repository:  e.Repository,
			Revision:    e.Revision,
			Description: e.Description,
			Language:    e.Language,
			MinSize:     e.MinSize,
			Shared:      e.Shared,
			Dependents:  append([]string(nil), e.Dependents...),
		}
		if e.DependentGroup != "" {
			members, ok := byGroup[e.DependentGroup]
			if !ok {
				return nil, fmt.Errorf("%w: %s names empty dependent group %q", ErrInvalidCatalog, e.Name, e.DependentGroup)
			}
			d.Dependents = append(d.Dependents, members...)
		}
		for _, f := range e.Files {
			if f.Local == "" {
				f.Local = f.Remote
			}
			if e.LocalPrefix != "" {
				f.Local = path.Join(e.LocalPrefix, f.Local)
			}
			d.Files = append(d.Files, f)
		}
		def.Assets = append(def.Assets, d)
	}

	return NewCatalog(def)
}
