package catalog

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var (
	// ErrDuplicateID is returned when two items share an id.
	ErrDuplicateID = errors.New("duplicate item id")
	// ErrInvalidItem is returned when an item fails validation.
	ErrInvalidItem = errors.New("invalid item")
)

// UnknownValueError reports an enum value that is not recognized.
type UnknownValueError struct {
	Kind  string
	Value string
}

func (e *UnknownValueError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.Value)
}

// Catalog is the immutable set of checklist items.
type Catalog struct {
	version  string
	sections []SectionInfo
	items    []Item
	index    map[string]int
}

type document struct {
	Version  string        `yaml:"version"`
	Sections []SectionInfo `yaml:"sections"`
	Items    []Item        `yaml:"items"`
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded catalog is invalid: %v", err))
	}
	return c
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(doc.Version, doc.Sections, doc.Items)
}

// New validates items and builds a catalog. Item order is preserved.
func New(version string, sections []SectionInfo, items []Item) (*Catalog, error) {
	c := &Catalog{
		version:  version,
		sections: append([]SectionInfo(nil), sections...),
		items:    append([]Item(nil), items...),
		index:    make(map[string]int, len(items)),
	}
	for _, s := range c.sections {
		if !s.ID.Valid() {
			return nil, &UnknownValueError{Kind: "section", Value: string(s.ID)}
		}
	}
	for i, it := range c.items {
		if it.ID == "" {
			return nil, fmt.Errorf("%w: item %d has no id", ErrInvalidItem, i)
		}
		if _, dup := c.index[it.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, it.ID)
		}
		if !it.Section.Valid() {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidItem, it.ID, &UnknownValueError{Kind: "section", Value: string(it.Section)})
		}
		if !it.Priority.Valid() {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidItem, it.ID, &UnknownValueError{Kind: "priority", Value: string(it.Priority)})
		}
		if it.MinimumProfile != "" {
			if _, ok := it.MinimumProfile.Ordinal(); !ok {
				return nil, fmt.Errorf("%w: %s: minimum profile %q", ErrInvalidItem, it.ID, it.MinimumProfile)
			}
		}
		c.index[it.ID] = i
	}
	return c, nil
}

// Version is the catalog version tag stored with shared reports.
func (c *Catalog) Version() string { return c.version }

// Items returns a copy of all items in catalog order.
func (c *Catalog) Items() []Item { return append([]Item(nil), c.items...) }

// Sections returns the section metadata in display order.
func (c *Catalog) Sections() []SectionInfo { return append([]SectionInfo(nil), c.sections...) }

// Lookup returns the item with the given id.
func (c *Catalog) Lookup(id string) (Item, bool) {
	i, ok := c.index[id]
	if !ok {
		return Item{}, false
	}
	return c.items[i], true
}

// Len is the number of items.
func (c *Catalog) Len() int { return len(c.items) }
