package display

import (
	"encoding/json"
)

// MarshalJSON marshals v with two-space indentation. Results are for
// people and for jq, so stable pretty output wins over compactness.
func MarshalJSON(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
