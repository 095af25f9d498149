package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Example is one bundled script from examples.yaml.
type Example struct {
	Name    string   `yaml:"name" json:"name"`
	Title   string   `yaml:"title" json:"title"`
	Dialect string   `yaml:"dialect" json:"dialect"`
	Watch   []string `yaml:"watch" json:"watch"`
	Source  string   `yaml:"source" json:"source"`
}

// ExampleTable keeps the examples in file order with lookup by name.
type ExampleTable struct {
	list   []*Example
	byName map[string]*Example
}

// LoadExampleTable loads examples.yaml.
func LoadExampleTable(path string) (*ExampleTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read examples: %w", err)
	}
	return ParseExampleTable(raw)
}

func ParseExampleTable(raw []byte) (*ExampleTable, error) {
	var entries []Example
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse examples: %w", err)
	}
	t := &ExampleTable{
		list:   make([]*Example, 0, len(entries)),
		byName: make(map[string]*Example, len(entries)),
	}
	for i := range entries {
		e := &entries[i]
		if e.Name == "" {
			return nil, fmt.Errorf("parse examples: entry %d has no name", i)
		}
		if _, dup := t.byName[e.Name]; dup {
			return nil, fmt.Errorf("parse examples: duplicate name %q", e.Name)
		}
		t.list = append(t.list, e)
		t.byName[e.Name] = e
	}
	return t, nil
}

// Get returns the example called name, or nil.
func (t *ExampleTable) Get(name string) *Example {
	if t == nil {
		return nil
	}
	return t.byName[name]
}

// All returns the examples in file order.
func (t *ExampleTable) All() []*Example {
	if t == nil {
		return nil
	}
	return t.list
}

func (t *ExampleTable) Count() int {
	if t == nil {
		return 0
	}
	return len(t.list)
}
