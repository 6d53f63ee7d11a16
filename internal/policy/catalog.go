package policy

import "strings"

// SubArea is a named subdivision of a base area with an explicit list of
// table numbers. Capacity, when set, is the default seating of its tables.
type SubArea struct {
	Key      string   `yaml:"key" json:"key"`
	AreaID   int64    `yaml:"area_id" json:"area_id"`
	Label    string   `yaml:"label" json:"label"`
	Family   string   `yaml:"family,omitempty" json:"family,omitempty"`
	Tables   []string `yaml:"tables" json:"tables"`
	Capacity int      `yaml:"capacity,omitempty" json:"capacity,omitempty"`
}

// HasTable reports whether the table number belongs to the sub-area.
func (s SubArea) HasTable(number string) bool {
	number = strings.TrimSpace(number)
	for _, t := range s.Tables {
		if t == number {
			return true
		}
	}
	return false
}

// genericAreaNames are area names that say nothing about the physical space
// and must be disambiguated by area id.
var genericAreaNames = map[string]bool{
	"area coberta":    true,
	"área coberta":    true,
	"area descoberta": true,
	"área descoberta": true,
	"covered area":    true,
	"uncovered area":  true,
}

// IsGenericAreaName reports whether name is one of the generic area labels.
func IsGenericAreaName(name string) bool {
	return genericAreaNames[strings.ToLower(strings.TrimSpace(name))]
}

// HasSubAreas reports whether the establishment uses a sub-area layout.
func (p Profile) HasSubAreas() bool { return len(p.SubAreas) > 0 }

// SubAreasFor returns the sub-areas bound to areaID in catalog order.
func (p Profile) SubAreasFor(areaID int64) []SubArea {
	var out []SubArea
	for _, s := range p.SubAreas {
		if s.AreaID == areaID {
			out = append(out, s)
		}
	}
	return out
}

// SubArea looks a sub-area up by key.
func (p Profile) SubArea(key string) (SubArea, bool) {
	for _, s := range p.SubAreas {
		if s.Key == key {
			return s, true
		}
	}
	return SubArea{}, false
}

// SubAreaForTables resolves the sub-area of a booking from its table numbers.
// Members are tested in order so a multi-table booking resolves through its
// first table that belongs to the catalog.
func (p Profile) SubAreaForTables(numbers []string) (SubArea, bool) {
	for _, n := range numbers {
		for _, s := range p.SubAreas {
			if s.HasTable(n) {
				return s, true
			}
		}
	}
	return SubArea{}, false
}

// DisplayLabel returns the label an operator sees for a booking's location.
// The sub-area derived from the tables wins; a generic area name falls back
// to the configured label of that area id, then to the first sub-area bound
// to it; otherwise the area name is returned unchanged.
func (p Profile) DisplayLabel(areaID int64, areaName string, numbers []string) string {
	if s, ok := p.SubAreaForTables(numbers); ok {
		return s.Label
	}
	if !IsGenericAreaName(areaName) {
		return areaName
	}
	if label, ok := p.AreaLabels[areaID]; ok && label != "" {
		return label
	}
	if subs := p.SubAreasFor(areaID); len(subs) > 0 {
		return subs[0].Label
	}
	return areaName
}
