package utils

import (
	"encoding/json"
)

// Remarshal copies input into output through its JSON form, so output ends
// up with plain JSON types and no shared references.
func Remarshal(input interface{}, output interface{}) error {
	b, err := json.Marshal(input)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, output)
}
