package migrate

import (
	"fmt"
)

// Step upgrades a dataset from one schema version to the next.
type Step struct {
	From      int64
	To        int64
	Name      string
	Transform func(*Dataset) error
}

// Steps returns the built-in upgrade chain.
func Steps() []Step {
	return []Step{
		{From: 1, To: 2, Name: "list colors and item images", Transform: addColorsAndImages},
		{From: 2, To: 3, Name: "item trash timestamps", Transform: addDeletedAt},
	}
}

func findStep(steps []Step, from int64) (Step, bool) {
	for _, s := range steps {
		if s.From == from {
			return s, true
		}
	}
	return Step{}, false
}

func addColorsAndImages(ds *Dataset) error {
	for _, list := range ds.Tables[ListsTable] {
		if _, ok := list["color"]; !ok {
			list["color"] = "default"
		}
	}
	for _, item := range ds.Tables[ItemsTable] {
		if _, ok := item["image_ids"]; !ok {
			item["image_ids"] = "[]"
		}
	}
	return nil
}

// Items without a list were in the trash before deleted_at existed. Their
// last update is the best known deletion time.
func addDeletedAt(ds *Dataset) error {
	for _, item := range ds.Tables[ItemsTable] {
		if _, ok := item["deleted_at"]; ok {
			continue
		}
		if item["list_id"] != nil {
			item["deleted_at"] = nil
			continue
		}
		updated, ok := item["updated_at"]
		if !ok || updated == nil {
			return fmt.Errorf("trashed item %v has no updated_at", item["id"])
		}
		item["deleted_at"] = updated
	}
	return nil
}
