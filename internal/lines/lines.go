// Package lines loads metro line definitions and serves them by id.
package lines

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"metro-simulator/internal/route"
)

var ErrLineNotFound = errors.New("line not found")

// Store resolves lines by id. Catalog and the database store implement it.
type Store interface {
	Line(ctx context.Context, id int) (*route.Line, error)
	Lines(ctx context.Context) ([]route.Line, error)
}

type file struct {
	Lines []route.Line `yaml:"lines" validate:"required,min=1,dive"`
}

// Load reads and validates a lines file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	v := validator.New()
	if err := v.Struct(f); err != nil {
		return nil, err
	}
	return NewCatalog(f.Lines)
}

// Catalog is an in-memory Store.
type Catalog struct {
	byID  map[int]int
	lines []route.Line
}

// NewCatalog checks the cross-references of every line and indexes them.
func NewCatalog(ls []route.Line) (*Catalog, error) {
	c := &Catalog{byID: make(map[int]int, len(ls)), lines: ls}
	for i := range ls {
		if _, dup := c.byID[ls[i].ID]; dup {
			return nil, fmt.Errorf("duplicate line id %d", ls[i].ID)
		}
		if err := Check(&ls[i]); err != nil {
			return nil, err
		}
		c.byID[ls[i].ID] = i
	}
	return c, nil
}

// Check validates polyline points and ensures every station marker refers to
// a declared station.
func Check(l *route.Line) error {
	ids := make(map[int]struct{}, len(l.Stations))
	for _, s := range l.Stations {
		if _, dup := ids[s.ID]; dup {
			return fmt.Errorf("line %d: duplicate station id %d", l.ID, s.ID)
		}
		ids[s.ID] = struct{}{}
	}
	for i, p := range l.Polyline {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("line %d point %d: %w", l.ID, i, err)
		}
		if sid, ok := p.Station(); ok {
			if _, known := ids[sid]; !known {
				return fmt.Errorf("line %d point %d: station %d: %w", l.ID, i, sid, route.ErrStationNotFound)
			}
		}
	}
	return nil
}

func (c *Catalog) Line(_ context.Context, id int) (*route.Line, error) {
	i, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrLineNotFound, id)
	}
	l := c.lines[i]
	return &l, nil
}

func (c *Catalog) Lines(_ context.Context) ([]route.Line, error) {
	return append([]route.Line(nil), c.lines...), nil
}
