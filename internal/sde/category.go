package sde

import "strings"

// Category groups items for filtering and summaries.
type Category string

const (
	CategoryMineral    Category = "mineral"
	CategoryIceProduct Category = "ice_product"
	CategoryPlanetary  Category = "planetary"
	CategoryComponent  Category = "component"
	CategoryAmmunition Category = "ammunition"
	CategoryDrone      Category = "drone"
	CategoryModule     Category = "module"
	CategoryShip       Category = "ship"
)

// Categories lists every known category in display order.
var Categories = []Category{
	CategoryMineral,
	CategoryIceProduct,
	CategoryPlanetary,
	CategoryComponent,
	CategoryAmmunition,
	CategoryDrone,
	CategoryModule,
	CategoryShip,
}

// ParseCategory matches s case-insensitively against known categories.
// Spaces and hyphens are treated as underscores, so "Ice Product" resolves.
func ParseCategory(s string) (Category, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	for _, c := range Categories {
		if string(c) == norm {
			return c, true
		}
	}
	return "", false
}

// Label returns a human-readable name, e.g. "Ice Product".
func (c Category) Label() string {
	parts := strings.Split(string(c), "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}
