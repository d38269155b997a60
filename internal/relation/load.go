package relation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lherron/importlink/internal/domain"
)

// File is the on-disk shape of a relations override file.
type File struct {
	// Replace drops the built-in kinds instead of merging into them.
	Replace bool       `yaml:"replace"`
	Kinds   []*Profile `yaml:"kinds"`
}

// Load reads a relations file and merges it over the built-in table. A kind
// defined in the file replaces the built-in profile of that kind entirely.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read relations file: %w", err)
	}
	return Parse(data)
}

// Parse is Load on an in-memory document.
func Parse(data []byte) (*Table, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse relations file: %w", err)
	}

	var t *Table
	if f.Replace {
		t = &Table{profiles: make(map[domain.Kind]*Profile)}
	} else {
		t = Default()
	}

	for i, p := range f.Kinds {
		if p == nil {
			return nil, fmt.Errorf("relations file: kind entry %d is empty", i)
		}
		for j := range p.Relations {
			if p.Relations[j].Cardinality == "" {
				p.Relations[j].Cardinality = domain.CardinalitySingle
			}
		}
		if err := t.Put(p); err != nil {
			return nil, fmt.Errorf("relations file: %w", err)
		}
	}
	return t, nil
}
