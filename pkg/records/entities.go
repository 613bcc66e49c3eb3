package records

import (
	"net/url"
	"strings"

	"github.com/skretail/console/pkg/dataset"
	"github.com/skretail/console/pkg/errcodes"
)

// Entity describes one upstream collection the console can list.
type Entity struct {
	Name     string
	ListPath string
	// SearchKeys are matched case-insensitively against the search text.
	SearchKeys []string
	// SelectKeys identify a record for selection, first present key wins.
	SelectKeys []string
	// Lookup is false for collections without get-data-by-id and delete.
	Lookup     bool
	ExportName string
}

var mrpSearchKeys = []string{"fsn", "SKU"}

var entities = map[string]*Entity{
	"products": {
		Name:       "products",
		ListPath:   "/products/get-data",
		SearchKeys: []string{"corporatecode", "skucode"},
		SelectKeys: []string{"id"},
		Lookup:     true,
		ExportName: "skretail_products_export.csv",
	},
	"mrp":     mrpEntity("mrp"),
	"gn":      mrpEntity("gn"),
	"appario": mrpEntity("appario"),
	"coco":    mrpEntity("coco"),
	"dispatches": {
		Name:       "dispatches",
		ListPath:   "/dispatch/dispatches",
		SearchKeys: []string{"corporatecode", "skucode", "useremail"},
		SelectKeys: []string{"id"},
		ExportName: "skretail_dispatches_export.csv",
	},
}

func mrpEntity(name string) *Entity {
	return &Entity{
		Name:       name,
		ListPath:   "/" + name + "/get-data",
		SearchKeys: mrpSearchKeys,
		SelectKeys: []string{"fsn", "asin"},
		Lookup:     true,
		ExportName: "skretail_" + name + "data_export.csv",
	}
}

// LookupEntity returns the entity called name.
func LookupEntity(name string) (*Entity, error) {
	e, ok := entities[strings.ToLower(name)]
	if !ok {
		return nil, errcodes.NotFound("Entity")
	}
	return e, nil
}

func (e *Entity) itemPath(code string) string {
	return "/" + e.Name + "/" + url.PathEscape(code)
}

// SelectionKey is the value a record is selected by.
func (e *Entity) SelectionKey(rec *dataset.Record) string {
	return rec.First(e.SelectKeys...)
}

// Matches reports whether any search key holds a string containing query.
// An empty query matches everything.
func (e *Entity) Matches(rec *dataset.Record, query string) bool {
	if query == "" {
		return true
	}
	query = strings.ToLower(query)
	for _, k := range e.SearchKeys {
		v, ok := rec.Get(k)
		if !ok {
			continue
		}
		s, ok := v.(string)
		if ok && strings.Contains(strings.ToLower(s), query) {
			return true
		}
	}
	return false
}
