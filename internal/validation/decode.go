package validation

import (
	"encoding/json"
	"fmt"

	"github.com/renvik/convograph/pkg/schema"
)

// Decode unmarshals raw JSON into a FlowDocument. Shape acceptance is the
// structural pass's job; this only reports decode failures.
func Decode(raw []byte) (*schema.FlowDocument, error) {
	var doc schema.FlowDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode flow document: %w", err)
	}
	return &doc, nil
}
