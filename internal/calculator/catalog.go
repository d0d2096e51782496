// Package calculator holds the scoring engine: a catalog of calculator
// definitions, the validating evaluator that dispatches to their formulas,
// and the risk band classifier.
package calculator

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/periop-risk-mcp-server/internal/domain"
)

// snapshot is an immutable view of the catalog. It is never modified once
// published.
type snapshot struct {
	byType  map[domain.CalculationType]*domain.CalculatorDefinition
	ordered []*domain.CalculatorDefinition
}

func newSnapshot(defs []*domain.CalculatorDefinition) (*snapshot, error) {
	s := &snapshot{
		byType:  make(map[domain.CalculationType]*domain.CalculatorDefinition, len(defs)),
		ordered: make([]*domain.CalculatorDefinition, 0, len(defs)),
	}
	for _, def := range defs {
		if def == nil {
			return nil, fmt.Errorf("catalog: nil calculator definition")
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		if _, dup := s.byType[def.Type]; dup {
			return nil, fmt.Errorf("catalog: duplicate calculation type %q", def.Type)
		}
		frozen := freeze(def)
		s.byType[def.Type] = frozen
		s.ordered = append(s.ordered, frozen)
	}
	sort.Slice(s.ordered, func(i, j int) bool {
		return s.ordered[i].Type < s.ordered[j].Type
	})
	return s, nil
}

// freeze copies a definition so later changes by the caller cannot leak
// into a published snapshot.
func freeze(def *domain.CalculatorDefinition) *domain.CalculatorDefinition {
	cp := *def
	cp.Parameters = make([]domain.ParameterSpec, len(def.Parameters))
	for i, p := range def.Parameters {
		p.Choices = append([]string(nil), p.Choices...)
		cp.Parameters[i] = p
	}
	return &cp
}

// Catalog is the process-wide registry of calculator definitions. Reads are
// lock free; writers build a complete new snapshot and swap it in, so a
// reader sees either the old or the new catalog and never a mix.
type Catalog struct {
	logger  *logrus.Logger
	current atomic.Pointer[snapshot]
	writeMu sync.Mutex
}

// NewCatalog creates a catalog holding defs.
func NewCatalog(logger *logrus.Logger, defs ...*domain.CalculatorDefinition) (*Catalog, error) {
	snap, err := newSnapshot(defs)
	if err != nil {
		return nil, err
	}
	c := &Catalog{logger: logger}
	c.current.Store(snap)
	return c, nil
}

// NewDefaultCatalog creates a catalog with the bundled reference calculators.
func NewDefaultCatalog(logger *logrus.Logger) (*Catalog, error) {
	return NewCatalog(logger, Builtins()...)
}

// Get returns the definition registered for t. Unknown types yield an error
// wrapping domain.ErrNotFound; no other calculator is substituted.
func (c *Catalog) Get(t domain.CalculationType) (*domain.CalculatorDefinition, error) {
	def, ok := c.current.Load().byType[t]
	if !ok {
		return nil, fmt.Errorf("calculator %q: %w", t, domain.ErrNotFound)
	}
	return def, nil
}

// List returns every definition ordered by calculation type.
func (c *Catalog) List() []*domain.CalculatorDefinition {
	ordered := c.current.Load().ordered
	out := make([]*domain.CalculatorDefinition, len(ordered))
	copy(out, ordered)
	return out
}

// Len returns the number of registered calculators.
func (c *Catalog) Len() int {
	return len(c.current.Load().ordered)
}

// Register adds def or replaces the definition with the same type.
func (c *Catalog) Register(def *domain.CalculatorDefinition) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	old := c.current.Load()
	defs := make([]*domain.CalculatorDefinition, 0, len(old.ordered)+1)
	for _, d := range old.ordered {
		if def != nil && d.Type == def.Type {
			continue
		}
		defs = append(defs, d)
	}
	defs = append(defs, def)

	snap, err := newSnapshot(defs)
	if err != nil {
		return err
	}
	c.current.Store(snap)

	c.logger.WithFields(logrus.Fields{
		"calculation_type": def.Type,
		"calculators":      len(snap.ordered),
	}).Info("Registered calculator")
	return nil
}

// Replace swaps the whole catalog for defs. On error the current catalog
// is left untouched.
func (c *Catalog) Replace(defs ...*domain.CalculatorDefinition) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	snap, err := newSnapshot(defs)
	if err != nil {
		return err
	}
	c.current.Store(snap)

	c.logger.WithField("calculators", len(snap.ordered)).Info("Replaced calculator catalog")
	return nil
}
