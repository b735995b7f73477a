package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Checklist is a cached checklist definition used to validate finalization.
type Checklist struct {
	ID          string             `json:"id" yaml:"id" validate:"required"`
	Module      string             `json:"module,omitempty" yaml:"module,omitempty"`
	Name        string             `json:"name" yaml:"name" validate:"required"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	Active      bool               `json:"active" yaml:"active"`
	Sections    []ChecklistSection `json:"sections" yaml:"sections" validate:"dive"`
}

// ChecklistSection groups checklist items.
type ChecklistSection struct {
	ID     string          `json:"id" yaml:"id" validate:"required"`
	Name   string          `json:"name" yaml:"name"`
	Order  int             `json:"order" yaml:"order"`
	Active bool            `json:"active" yaml:"active"`
	Items  []ChecklistItem `json:"items" yaml:"items" validate:"dive"`
}

// ChecklistItem is one question of a checklist.
type ChecklistItem struct {
	ID                           string `json:"id" yaml:"id" validate:"required"`
	Title                        string `json:"title" yaml:"title" validate:"required"`
	Description                  string `json:"description,omitempty" yaml:"description,omitempty"`
	Order                        int    `json:"order" yaml:"order"`
	RequiresPhotoOnNonConformity bool   `json:"requiresPhotoOnNonConformity" yaml:"requiresPhotoOnNonConformity"`
	Active                       bool   `json:"active" yaml:"active"`
}

// Validate checks the checklist and its sections.
func (c *Checklist) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("checklist %s: %w", c.ID, err)
	}
	seen := make(map[string]bool)
	for _, s := range c.Sections {
		for _, it := range s.Items {
			if seen[it.ID] {
				return fmt.Errorf("checklist %s: duplicate item id %s", c.ID, it.ID)
			}
			seen[it.ID] = true
		}
	}
	return nil
}

// ActiveItems returns the active items across all sections in section and
// item order. Items of inactive sections are still included; only the item
// flag decides.
func (c *Checklist) ActiveItems() []ChecklistItem {
	sections := make([]ChecklistSection, len(c.Sections))
	copy(sections, c.Sections)
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].Order < sections[j].Order })

	var out []ChecklistItem
	for _, s := range sections {
		items := make([]ChecklistItem, len(s.Items))
		copy(items, s.Items)
		sort.SliceStable(items, func(i, j int) bool { return items[i].Order < items[j].Order })
		for _, it := range items {
			if it.Active {
				out = append(out, it)
			}
		}
	}
	return out
}

// ItemByID finds an item in any section.
func (c *Checklist) ItemByID(id string) (ChecklistItem, bool) {
	for _, s := range c.Sections {
		for _, it := range s.Items {
			if it.ID == id {
				return it, true
			}
		}
	}
	return ChecklistItem{}, false
}

// checklistFile is the on-disk import format.
type checklistFile struct {
	Checklists []*Checklist `json:"checklists" yaml:"checklists"`
}

// ReadChecklistFile loads checklist definitions from a YAML or JSON file.
// The file holds either a single checklist or a "checklists" list.
func ReadChecklistFile(path string) ([]*Checklist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checklist file %s: %w", path, err)
	}

	unmarshal := yaml.Unmarshal
	if strings.EqualFold(filepath.Ext(path), ".json") {
		unmarshal = json.Unmarshal
	}

	var file checklistFile
	if err := unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse checklist file %s: %w", path, err)
	}
	if len(file.Checklists) == 0 {
		var single Checklist
		if err := unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("failed to parse checklist file %s: %w", path, err)
		}
		if single.ID == "" {
			return nil, fmt.Errorf("checklist file %s: no checklists found", path)
		}
		file.Checklists = []*Checklist{&single}
	}

	for _, c := range file.Checklists {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return file.Checklists, nil
}
