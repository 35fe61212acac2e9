package actions

import (
	"context"
	"fmt"
	"sort"

	"github.com/abd3rr/workflow-api/pkg/models"
)

// MethodStore persists the catalog.
type MethodStore interface {
	ListMethods(ctx context.Context) ([]*models.Method, error)
	CreateMethod(ctx context.Context, m *models.Method) error
	DeleteMethod(ctx context.Context, id string) error
}

// Catalog is the persisted method set after reconciliation. It is read-only.
type Catalog struct {
	byName map[string]*models.Method
	byID   map[string]*models.Method

	// Added and Removed name the methods inserted and deleted by Bootstrap.
	Added   []string
	Removed []string
}

// Bootstrap reconciles the persisted catalog with reg by name: stored
// methods reg lacks are deleted, registered actions the store lacks are
// inserted. Methods present on both sides are left alone, so a changed
// parameter list under an existing name is not picked up.
func Bootstrap(ctx context.Context, reg *Registry, store MethodStore) (*Catalog, error) {
	stored, err := store.ListMethods(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load method catalog: %w", err)
	}

	c := &Catalog{
		byName:  map[string]*models.Method{},
		byID:    map[string]*models.Method{},
		Added:   []string{},
		Removed: []string{},
	}

	for _, m := range stored {
		if _, ok := reg.Lookup(m.Name); ok {
			c.add(m)
			continue
		}
		if err := store.DeleteMethod(ctx, m.ID); err != nil {
			return nil, fmt.Errorf("failed to remove method %s: %w", m.Name, err)
		}
		c.Removed = append(c.Removed, m.Name)
	}

	for _, m := range reg.Methods() {
		if _, ok := c.byName[m.Name]; ok {
			continue
		}
		if err := store.CreateMethod(ctx, m); err != nil {
			return nil, fmt.Errorf("failed to add method %s: %w", m.Name, err)
		}
		c.add(m)
		c.Added = append(c.Added, m.Name)
	}

	sort.Strings(c.Removed)
	return c, nil
}

func (c *Catalog) add(m *models.Method) {
	c.byName[m.Name] = m
	c.byID[m.ID] = m
}

func (c *Catalog) ByName(name string) (*models.Method, bool) {
	m, ok := c.byName[name]
	return m, ok
}

func (c *Catalog) ByID(id string) (*models.Method, bool) {
	m, ok := c.byID[id]
	return m, ok
}

// Methods returns the catalog sorted by name.
func (c *Catalog) Methods() []*models.Method {
	methods := make([]*models.Method, 0, len(c.byName))
	for _, m := range c.byName {
		methods = append(methods, m)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i].Name < methods[j].Name })
	return methods
}

// Resolve maps method ids to catalog entries, in order. Unknown ids are a
// NotFound error.
func (c *Catalog) Resolve(ids []string) ([]*models.Method, error) {
	methods := make([]*models.Method, 0, len(ids))
	for _, id := range ids {
		m, ok := c.byID[id]
		if !ok {
			return nil, models.NotFound("method", id)
		}
		methods = append(methods, m)
	}
	return methods, nil
}
