// Package entity holds the script-visible attribute bags. Writes through an
// Entity are forwarded to a Dispatcher under the path "Name.Attr".
package entity

import "github.com/jiecolao/pyquest-game/internal/watch"

// Names are the entities bound into every script run.
var Names = []string{"Player", "Game", "Enemy"}

// Dispatcher receives every attribute write. *watch.Tracker implements it.
type Dispatcher interface {
	Dispatch(path string, v watch.Value)
}

// Attribute is one slot of an entity's bag. Raw is the interpreter's own
// object so the script reads back exactly what it stored.
type Attribute struct {
	Raw   any
	Value watch.Value
}

// Entity is the attribute bag for one named entity during one run.
type Entity struct {
	name  string
	d     Dispatcher
	attrs map[string]Attribute
	order []string
}

func New(name string, d Dispatcher) *Entity {
	return &Entity{name: name, d: d, attrs: make(map[string]Attribute)}
}

func (e *Entity) Name() string { return e.name }

// Path returns the fully qualified path for attr.
func (e *Entity) Path(attr string) string { return e.name + "." + attr }

// Set dispatches v for attr, then records it in the bag.
func (e *Entity) Set(attr string, raw any, v watch.Value) {
	e.d.Dispatch(e.Path(attr), v)
	if _, ok := e.attrs[attr]; !ok {
		e.order = append(e.order, attr)
	}
	e.attrs[attr] = Attribute{Raw: raw, Value: v}
}

// Get returns the last value assigned through this entity.
func (e *Entity) Get(attr string) (Attribute, bool) {
	a, ok := e.attrs[attr]
	return a, ok
}

// Attrs lists assigned attribute names in first-assignment order.
func (e *Entity) Attrs() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Set is the group of entities bound into one run.
type Set struct {
	list []*Entity
}

// NewSet creates fresh bags for every name in Names.
func NewSet(d Dispatcher) *Set {
	s := &Set{list: make([]*Entity, 0, len(Names))}
	for _, n := range Names {
		s.list = append(s.list, New(n, d))
	}
	return s
}

func (s *Set) All() []*Entity { return s.list }

func (s *Set) Lookup(name string) (*Entity, bool) {
	for _, e := range s.list {
		if e.name == name {
			return e, true
		}
	}
	return nil, false
}
