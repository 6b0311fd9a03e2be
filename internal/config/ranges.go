package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RangeTable is the configuration form of an organization range table. It is
// either inline (a mapping of organization name to a list of ranges) or a
// path to a separate file holding that mapping. Each range is a CIDR or
// address string, or a two-element [low, high] list.
//
// Range strings are trimmed here; netaddr itself accepts only the bare form.
//
// Problems found while decoding are kept on the table instead of failing the
// whole configuration, so one bad account cannot stop the others.
type RangeTable struct {
	Path    string
	Entries []RangeEntry

	problems []error
}

type RangeEntry struct {
	Organization string
	Ranges       [][]string
}

// Problems returns the decoding errors recorded for the table.
func (t *RangeTable) Problems() []error {
	if t == nil {
		return nil
	}
	return t.problems
}

func (t *RangeTable) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		t.Path = node.Value
		return nil
	case yaml.MappingNode:
		t.decodeMapping(node)
		return nil
	default:
		t.problems = append(t.problems, fmt.Errorf("ranges: line %d: expected a mapping or a file path", node.Line))
		return nil
	}
}

// decodeMapping walks the node pairs directly so organization order is kept.
func (t *RangeTable) decodeMapping(node *yaml.Node) {
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		entry := RangeEntry{Organization: key.Value}

		if value.Kind != yaml.SequenceNode {
			t.problems = append(t.problems, fmt.Errorf("ranges: organization %q: line %d: expected a list of ranges", key.Value, value.Line))
			continue
		}

		for _, item := range value.Content {
			switch item.Kind {
			case yaml.ScalarNode:
				entry.Ranges = append(entry.Ranges, []string{strings.TrimSpace(item.Value)})
			case yaml.SequenceNode:
				parts := make([]string, 0, len(item.Content))
				for _, part := range item.Content {
					parts = append(parts, strings.TrimSpace(part.Value))
				}
				entry.Ranges = append(entry.Ranges, parts)
			default:
				t.problems = append(t.problems, fmt.Errorf("ranges: organization %q: line %d: unsupported range form", key.Value, item.Line))
			}
		}

		t.Entries = append(t.Entries, entry)
	}
}

func (t *RangeTable) loadFile(baseDir string) error {
	path := t.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ranges: read %s: %w", path, err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("ranges: unmarshal %s: %w", path, err)
	}
	if node.Kind != yaml.DocumentNode || len(node.Content) == 0 || node.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("ranges: %s: expected a mapping of organizations", path)
	}

	t.decodeMapping(node.Content[0])
	return nil
}
