package catalog

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/fadedpez/crates/internal/types"
	"github.com/fadedpez/crates/pkg/entities"
)

// file is the on-disk shape of the item/case catalog.
type file struct {
	Items []entities.Item           `yaml:"items"`
	Cases []entities.CaseDefinition `yaml:"cases"`
}

// Catalog holds the published item and case definitions. Reads and the
// administrative case replacement share one lock, so a replacement never
// races with an open request reading the definition.
type Catalog struct {
	mu    sync.RWMutex
	items map[string]*entities.Item
	cases map[string]*entities.CaseDefinition
}

// Load reads and validates the catalog file. Any malformed definition fails
// the load with a configuration error; nothing starts on a bad catalog.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.WrapError(types.ErrConfiguration, fmt.Sprintf("reading catalog file %s", path), err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, types.WrapError(types.ErrConfiguration, "parsing catalog file", err)
	}

	return New(f.Items, f.Cases)
}

// New builds a catalog from already-decoded definitions.
func New(items []entities.Item, cases []entities.CaseDefinition) (*Catalog, error) {
	c := &Catalog{
		items: make(map[string]*entities.Item, len(items)),
		cases: make(map[string]*entities.CaseDefinition, len(cases)),
	}

	for i := range items {
		item := items[i]
		if err := validateItem(&item); err != nil {
			return nil, err
		}
		if _, exists := c.items[item.ID]; exists {
			return nil, types.NewErrorf(types.ErrConfiguration, "duplicate item id %q", item.ID)
		}
		c.items[item.ID] = &item
	}

	for i := range cases {
		def := cases[i]
		if err := c.validateCase(&def); err != nil {
			return nil, err
		}
		if _, exists := c.cases[def.ID]; exists {
			return nil, types.NewErrorf(types.ErrConfiguration, "duplicate case id %q", def.ID)
		}
		c.cases[def.ID] = &def
	}

	return c, nil
}

func validateItem(item *entities.Item) error {
	if item.ID == "" {
		return types.NewError(types.ErrConfiguration, "item id cannot be empty")
	}
	if item.Name == "" {
		return types.NewErrorf(types.ErrConfiguration, "item %q has no name", item.ID)
	}
	if !item.Rarity.IsValid() {
		return types.NewErrorf(types.ErrConfiguration, "item %q has unknown rarity %q", item.ID, item.Rarity)
	}
	if item.Value < 0 {
		return types.NewErrorf(types.ErrConfiguration, "item %q has negative value", item.ID)
	}
	return nil
}

// validateCase checks a definition against the catalog's items. Callers must
// not hold the lock for writes triggered here; New and ReplaceCase manage it.
func (c *Catalog) validateCase(def *entities.CaseDefinition) error {
	if def.ID == "" {
		return types.NewError(types.ErrConfiguration, "case id cannot be empty")
	}
	if def.Price <= 0 {
		return types.NewErrorf(types.ErrConfiguration, "case %q must have a positive price", def.ID)
	}
	if len(def.Slots) == 0 {
		return types.NewErrorf(types.ErrConfiguration, "case %q has no slots", def.ID)
	}
	for _, slot := range def.Slots {
		if _, ok := c.items[slot.ItemID]; !ok {
			return types.NewErrorf(types.ErrConfiguration, "case %q references unknown item %q", def.ID, slot.ItemID)
		}
	}
	if !def.ProbabilitiesValid() {
		return types.NewErrorf(types.ErrConfiguration,
			"case %q probabilities sum to %.6f, want 100", def.ID, def.ProbabilitySum())
	}
	return nil
}

// Item returns the catalog item with the given id.
func (c *Catalog) Item(id string) (*entities.Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[id]
	if !ok {
		return nil, types.NewErrorf(types.ErrNotFound, "item %q not in catalog", id)
	}
	return item, nil
}

// Case returns a copy of the case definition with the given id. The copy
// means an open request keeps working on a consistent definition even if an
// administrative replacement lands mid-operation.
func (c *Catalog) Case(id string) (*entities.CaseDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.cases[id]
	if !ok {
		return nil, types.NewErrorf(types.ErrNotFound, "case %q not in catalog", id)
	}

	defCopy := *def
	defCopy.Slots = make([]entities.CaseSlot, len(def.Slots))
	copy(defCopy.Slots, def.Slots)
	return &defCopy, nil
}

// ReplaceCase atomically swaps a published case definition. The replacement
// is validated first and rejected wholesale on any violation.
func (c *Catalog) ReplaceCase(def entities.CaseDefinition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.validateCase(&def); err != nil {
		return err
	}
	c.cases[def.ID] = &def
	return nil
}

// Items returns all catalog items.
func (c *Catalog) Items() []*entities.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()

	items := make([]*entities.Item, 0, len(c.items))
	for _, item := range c.items {
		items = append(items, item)
	}
	return items
}
