// Package migrate upgrades store files between schema versions.
//
// Every step reads the whole store into a Dataset, transforms it in memory,
// writes it into a fresh store at the next version and swaps that file into
// place. The original file is only touched by the final swap.
package migrate

import "sort"

const (
	ListsTable = "shopping_lists"
	ItemsTable = "shopping_items"
)

// tableOrder is the order tables are written in.
var tableOrder = []string{ListsTable, ItemsTable}

// Record is one row, keyed by column name. Values are the plain driver
// types: nil, int64, float64, string, []byte, bool or time.Time.
type Record map[string]any

func (r Record) clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		if b, ok := v.([]byte); ok {
			v = append([]byte(nil), b...)
		}
		out[k] = v
	}
	return out
}

// Columns returns the record's column names in sorted order.
func (r Record) Columns() []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Dataset is the full content of a store at one schema version.
type Dataset struct {
	Version int64
	Tables  map[string][]Record
}

func NewDataset(version int64) *Dataset {
	return &Dataset{Version: version, Tables: make(map[string][]Record)}
}

// Count returns the number of records in table.
func (d *Dataset) Count(table string) int {
	return len(d.Tables[table])
}

// Clone returns a deep copy of d.
func (d *Dataset) Clone() *Dataset {
	out := NewDataset(d.Version)
	for name, records := range d.Tables {
		copied := make([]Record, len(records))
		for i, r := range records {
			copied[i] = r.clone()
		}
		out.Tables[name] = copied
	}
	return out
}
