package engine

import (
	"encoding/json"
	"fmt"

	"github.com/pario-ai/formwork/pkg/models"
)

// Decode copies a result's validated data into out, which must be a
// pointer. Field matching follows encoding/json rules.
func Decode(result *models.Result, out any) error {
	if result == nil {
		return fmt.Errorf("decode result: nil result")
	}
	data, err := json.Marshal(result.Data)
	if err != nil {
		return fmt.Errorf("encode result data: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode result data: %w", err)
	}
	return nil
}
