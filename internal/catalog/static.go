package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/cfdi-bills/internal/entity"
)

// StaticSource serves a fixed catalog from memory, e.g. an offline export.
type StaticSource struct {
	items []entity.CatalogEntry
}

type staticFile struct {
	Items []entity.CatalogEntry `yaml:"items"`
}

func NewStaticSource(items []entity.CatalogEntry) *StaticSource {
	return &StaticSource{items: append([]entity.CatalogEntry(nil), items...)}
}

// LoadStaticSource reads a YAML catalog of the form:
//
//	items:
//	  - id: "42"
//	    name: "WOOD:WOOD-1"
func LoadStaticSource(path string) (*StaticSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var f staticFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
	}
	return NewStaticSource(f.Items), nil
}

func (s *StaticSource) FetchAllItems(_ context.Context) ([]entity.CatalogEntry, error) {
	return append([]entity.CatalogEntry(nil), s.items...), nil
}

func (s *StaticSource) FetchItemByName(_ context.Context, name string) (*entity.CatalogEntry, error) {
	name = strings.TrimSpace(name)
	for i := range s.items {
		if strings.EqualFold(s.items[i].DisplayName, name) {
			e := s.items[i]
			return &e, nil
		}
	}
	return nil, nil
}

func (s *StaticSource) FetchItemsLike(_ context.Context, pattern string) ([]entity.CatalogEntry, error) {
	p := strings.ToLower(strings.TrimSpace(pattern))
	var out []entity.CatalogEntry
	if p == "" {
		return out, nil
	}
	for _, e := range s.items {
		if strings.Contains(strings.ToLower(e.DisplayName), p) {
			out = append(out, e)
		}
	}
	return out, nil
}
