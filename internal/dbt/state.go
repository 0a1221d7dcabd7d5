package dbt

import (
	"encoding/json"
	"os"
)

// lastSelection is the persisted shape of the previous interactive selection
type lastSelection struct {
	Select []string `json:"select"`
}

// SaveLastSelection remembers an interactive selection so the next run can
// offer it as the default.
func SaveLastSelection(path string, selected []string) error {
	data, err := json.Marshal(lastSelection{Select: selected})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadLastSelection returns the previously saved selection, or nil when none
// has been saved yet.
func LoadLastSelection(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var state lastSelection
	if err := json.Unmarshal(data, &state); err != nil {
		return nil
	}
	return state.Select
}
