package automl

import (
	"fmt"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/thalesfsp/automl/hpo"
)

// Catalog registers the estimators under consideration, their hyperparameter
// spaces and their child iteration budgets. The three always share the same
// set of model ids.
type Catalog struct {
	mu            sync.RWMutex
	models        []string
	spaces        map[string]hpo.Space
	budgets       map[string]int
	defaultBudget int
}

// NewCatalog returns an empty catalog whose new models get defaultBudget
// child iterations.
func NewCatalog(defaultBudget int) *Catalog {
	return &Catalog{
		spaces:        make(map[string]hpo.Space),
		budgets:       make(map[string]int),
		defaultBudget: defaultBudget,
	}
}

// AddModel registers model with space.
func (c *Catalog) AddModel(model string, space hpo.Space) error {
	if err := space.Validate(); err != nil {
		return fmt.Errorf("space of %s: %w", model, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, inSpaces := c.spaces[model]
	_, inBudgets := c.budgets[model]

	if inSpaces || inBudgets || slices.Contains(c.models, model) {
		return &DuplicateModelError{Model: model}
	}

	c.models = append(c.models, model)
	c.spaces[model] = space.Clone()
	c.budgets[model] = c.defaultBudget

	return nil
}

// RemoveModel unregisters models. Either every model is removed or, when
// one of them is unknown, none is.
func (c *Catalog) RemoveModel(models ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, model := range models {
		if !c.has(model) {
			return &UnknownModelError{Model: model}
		}
	}

	for _, model := range models {
		if i := slices.Index(c.models, model); i >= 0 {
			c.models = slices.Delete(c.models, i, i+1)
		}

		delete(c.spaces, model)
		delete(c.budgets, model)
	}

	return nil
}

// UpdateSpace replaces the space of a registered model.
func (c *Catalog) UpdateSpace(model string, space hpo.Space) error {
	if err := space.Validate(); err != nil {
		return fmt.Errorf("space of %s: %w", model, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.has(model) {
		return &UnknownModelError{Model: model}
	}

	c.spaces[model] = space.Clone()

	return nil
}

// SetChildBudget overrides the child iteration budget of model.
func (c *Catalog) SetChildBudget(model string, n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %d for %s", ErrInvalidBudget, n, model)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.has(model) {
		return &UnknownModelError{Model: model}
	}

	c.budgets[model] = n

	return nil
}

// Models returns the registered model ids in registration order.
func (c *Catalog) Models() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.models)
}

// Snapshot returns an immutable copy of the catalog.
func (c *Catalog) Snapshot() CatalogSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := CatalogSnapshot{
		models:  slices.Clone(c.models),
		spaces:  make(map[string]hpo.Space, len(c.spaces)),
		budgets: make(map[string]int, len(c.budgets)),
	}

	for k, v := range c.spaces {
		s.spaces[k] = v.Clone()
	}

	for k, v := range c.budgets {
		s.budgets[k] = v
	}

	return s
}

// has reports whether model is registered. Callers hold mu.
func (c *Catalog) has(model string) bool {
	_, ok := c.spaces[model]

	return ok
}

// CatalogSnapshot is a read-only view of a Catalog taken at one point in time.
type CatalogSnapshot struct {
	models  []string
	spaces  map[string]hpo.Space
	budgets map[string]int
}

// Models returns the model ids in registration order.
func (s CatalogSnapshot) Models() []string {
	return slices.Clone(s.models)
}

// Space returns the hyperparameter space of model.
func (s CatalogSnapshot) Space(model string) (hpo.Space, error) {
	space, ok := s.spaces[model]
	if !ok {
		return nil, &UnknownModelError{Model: model}
	}

	return space.Clone(), nil
}

// Budget returns the child iteration budget of model.
func (s CatalogSnapshot) Budget(model string) (int, error) {
	n, ok := s.budgets[model]
	if !ok {
		return 0, &UnknownModelError{Model: model}
	}

	return n, nil
}

// MaxBudget returns the largest child budget, 0 for an empty catalog.
func (s CatalogSnapshot) MaxBudget() int {
	var max int
	for _, n := range s.budgets {
		if n > max {
			max = n
		}
	}

	return max
}
