package dataset

import (
	"encoding/json"
	"fmt"
	"os"
)

// CategoryNames maps string class labels to human-readable names,
// e.g. "74" -> "rose".
type CategoryNames map[string]string

// LoadCategoryNames reads a label-to-name JSON file.
func LoadCategoryNames(path string) (CategoryNames, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category names: %w", err)
	}

	var names CategoryNames
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("parse category names %s: %w", path, err)
	}
	return names, nil
}

// Name returns the display name for a label, or the label itself when
// the file has no entry for it.
func (n CategoryNames) Name(label string) string {
	if name, ok := n[label]; ok {
		return name
	}
	return label
}
