package models

import (
	"fmt"
	"path"
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

// AliasAll expands to every member of a dependency group.
const AliasAll = "all"

// Family is a storage family: a set of assets sharing one storage root.
type Family struct {
	// Name is the family key and the default subdirectory under the base dir.
	Name string `yaml:"name"`

	// Env names the environment variable that overrides the family root.
	Env string `yaml:"env"`

	// Description is a short human-readable summary.
	Description string `yaml:"description"`
}

// Group is a dependency group, e.g. every PrimeSpeech voice.
type Group struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// CatalogDefinition is the raw input to NewCatalog.
type CatalogDefinition struct {
	// DefaultGroup is the group the "all" alias expands to when no group is given.
	DefaultGroup string

	Families []Family
	Groups   []Group
	Assets   []AssetDescriptor
}

// Catalog is an immutable mapping from asset name to descriptor.
// It is safe for concurrent use. Accessors return copies.
type Catalog struct {
	assets       []AssetDescriptor
	index        map[string]int
	groups       []Group
	members      map[string][]int
	families     map[string]Family
	defaultGroup string
}

// foldName normalises a name for case-insensitive lookup.
func foldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// NewCatalog validates def and builds a Catalog.
// Returns an error wrapping ErrInvalidCatalog if any invariant is violated.
func NewCatalog(def CatalogDefinition) (*Catalog, error) {
	c := &Catalog{
		index:        make(map[string]int, len(def.Assets)),
		members:      make(map[string][]int),
		families:     make(map[string]Family, len(def.Families)),
		defaultGroup: def.DefaultGroup,
	}

	for _, f := range def.Families {
		if f.Name == "" {
			return nil, fmt.Errorf("%w: family with empty name", ErrInvalidCatalog)
		}
		c.families[f.Name] = f
	}

	groupSeen := make(map[string]bool)
	for _, g := range def.Groups {
		if g.Name == "" || groupSeen[g.Name] {
			return nil, fmt.Errorf("%w: invalid or duplicate group %q", ErrInvalidCatalog, g.Name)
		}
		groupSeen[g.Name] = true
		c.groups = append(c.groups, g)
	}

	for i, a := range def.Assets {
		a = cloneDescriptor(a)
		if err := validateDescriptor(a); err != nil {
			return nil, err
		}
		key := foldName(a.Name)
		if _, dup := c.index[key]; dup {
			return nil, fmt.Errorf("%w: duplicate asset name %q", ErrInvalidCatalog, a.Name)
		}
		c.index[key] = i
		if _, ok := c.families[a.Family]; !ok {
			c.families[a.Family] = Family{Name: a.Family}
		}
		if a.Group != "" {
			if !groupSeen[a.Group] {
				groupSeen[a.Group] = true
				c.groups = append(c.groups, Group{Name: a.Group})
			}
			c.members[a.Group] = append(c.members[a.Group], i)
		}
		c.assets = append(c.assets, a)
	}

	for _, a := range c.assets {
		if !a.Shared {
			continue
		}
		for _, dep := range a.Dependents {
			idx, ok := c.index[foldName(dep)]
			if !ok {
				return nil, fmt.Errorf("%w: %s lists unknown dependent %q", ErrInvalidCatalog, a.Name, dep)
			}
			if c.assets[idx].Name == a.Name {
				return nil, fmt.Errorf("%w: %s depends on itself", ErrInvalidCatalog, a.Name)
			}
		}
	}

	if c.defaultGroup != "" && !groupSeen[c.defaultGroup] {
		return nil, fmt.Errorf("%w: default group %q has no members", ErrInvalidCatalog, c.defaultGroup)
	}

	return c, nil
}

func validateDescriptor(a AssetDescriptor) error {
	switch {
	case strings.TrimSpace(a.Name) == "":
		return fmt.Errorf("%w: asset with empty name", ErrInvalidCatalog)
	case strings.EqualFold(strings.TrimSpace(a.Name), AliasAll):
		return fmt.Errorf("%w: %q is reserved", ErrInvalidCatalog, AliasAll)
	case a.Family == "":
		return fmt.Errorf("%w: %s has no family", ErrInvalidCatalog, a.Name)
	case a.Repository == "":
		return fmt.Errorf("%w: %s has no repository", ErrInvalidCatalog, a.Name)
	case len(a.Files) == 0:
		return fmt.Errorf("%w: %s declares no files", ErrInvalidCatalog, a.Name)
	case a.Shared && len(a.Dependents) == 0:
		return fmt.Errorf("%w: shared asset %s has no dependents", ErrInvalidCatalog, a.Name)
	case !a.Shared && len(a.Dependents) > 0:
		return fmt.Errorf("%w: %s lists dependents but is not shared", ErrInvalidCatalog, a.Name)
	}

	locals := make(map[string]bool, len(a.Files))
	for _, f := range a.Files {
		if f.Remote == "" || f.Local == "" {
			return fmt.Errorf("%w: %s has a file with an empty path", ErrInvalidCatalog, a.Name)
		}
		clean := path.Clean(f.Local)
		if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
			return fmt.Errorf("%w: %s file %q escapes the store root", ErrInvalidCatalog, a.Name, f.Local)
		}
		if locals[clean] {
			return fmt.Errorf("%w: %s declares %q twice", ErrInvalidCatalog, a.Name, f.Local)
		}
		locals[clean] = true
		if f.MinSize < 0 {
			return fmt.Errorf("%w: %s file %q has a negative minimum size", ErrInvalidCatalog, a.Name, f.Local)
		}
	}
	return nil
}

func cloneDescriptor(a AssetDescriptor) AssetDescriptor {
	a.Files = slices.Clone(a.Files)
	for i := range a.Files {
		if a.Files[i].Local == "" {
			a.Files[i].Local = a.Files[i].Remote
		}
	}
	a.Dependents = slices.Clone(a.Dependents)
	return a
}

// Len returns the number of assets.
func (c *Catalog) Len() int {
	return len(c.assets)
}

// Assets returns every descriptor in definition order.
func (c *Catalog) Assets() []AssetDescriptor {
	out := make([]AssetDescriptor, len(c.assets))
	for i, a := range c.assets {
		out[i] = cloneDescriptor(a)
	}
	return out
}

// Get returns the descriptor for name.
// Returns ErrUnknownAsset if the name is not in the catalog.
func (c *Catalog) Get(name string) (AssetDescriptor, error) {
	idx, ok := c.index[foldName(name)]
	if !ok {
		return AssetDescriptor{}, fmt.Errorf("%w: %q", ErrUnknownAsset, name)
	}
	return cloneDescriptor(c.assets[idx]), nil
}

// Resolve returns the descriptors named by nameOrAlias. The alias "all"
// expands to every member of group, or of the default group if group is
// empty. A catalog miss returns ErrUnknownAsset.
func (c *Catalog) Resolve(nameOrAlias, group string) ([]AssetDescriptor, error) {
	if strings.EqualFold(strings.TrimSpace(nameOrAlias), AliasAll) {
		if group == "" {
			group = c.defaultGroup
		}
		return c.Members(group)
	}
	a, err := c.Get(nameOrAlias)
	if err != nil {
		return nil, err
	}
	return []AssetDescriptor{a}, nil
}

// Members returns the assets in group, in definition order.
func (c *Catalog) Members(group string) ([]AssetDescriptor, error) {
	idxs, ok := c.members[group]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, group)
	}
	out := make([]AssetDescriptor, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, cloneDescriptor(c.assets[i]))
	}
	return out, nil
}

// Groups returns every dependency group in definition order.
func (c *Catalog) Groups() []Group {
	return slices.Clone(c.groups)
}

// DefaultGroup returns the group "all" expands to by default.
func (c *Catalog) DefaultGroup() string {
	return c.defaultGroup
}

// Family returns the storage family called name.
func (c *Catalog) Family(name string) (Family, bool) {
	f, ok := c.families[name]
	return f, ok
}

// Families returns every family, sorted by name.
func (c *Catalog) Families() []Family {
	out := make([]Family, 0, len(c.families))
	for _, f := range c.families {
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b Family) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Prerequisites returns the shared assets that list name as a dependent.
func (c *Catalog) Prerequisites(name string) []AssetDescriptor {
	var out []AssetDescriptor
	for _, a := range c.assets {
		if a.Shared && a.HasDependent(name) {
			out = append(out, cloneDescriptor(a))
		}
	}
	return out
}

// SharedFor returns the shared assets with at least one dependent in group.
func (c *Catalog) SharedFor(group string) []AssetDescriptor {
	var out []AssetDescriptor
	for _, a := range c.assets {
		if !a.Shared {
			continue
		}
		for _, dep := range a.Dependents {
			if d, err := c.Get(dep); err == nil && d.Group == group {
				out = append(out, cloneDescriptor(a))
				break
			}
		}
	}
	return out
}

// WithPrerequisites returns names with the shared assets they depend on
// placed first, without duplicates. Unknown names return ErrUnknownAsset.
func (c *Catalog) WithPrerequisites(names []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, name := range names {
		d, err := c.Get(name)
		if err != nil {
			return nil, err
		}
		for _, p := range c.Prerequisites(d.Name) {
			add(p.Name)
		}
	}
	for _, name := range names {
		d, _ := c.Get(name)
		add(d.Name)
	}
	return out, nil
}
