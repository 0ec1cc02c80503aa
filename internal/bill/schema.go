package bill

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/cfdi-bills/constants"
	"github.com/joseph-ayodele/cfdi-bills/internal/common"
)

// BuildBillJSONSchema returns the JSON-Schema the bill payload must satisfy
// before it is sent. Each line carries exactly the detail object its
// DetailType names.
func BuildBillJSONSchema() map[string]any {
	ref := map[string]any{
		"type":       "object",
		"properties": map[string]any{"value": map[string]any{"type": "string", "minLength": 1}},
		"required":   []string{"value"},
	}

	itemLine := map[string]any{
		"properties": map[string]any{
			"DetailType": map[string]any{"const": string(constants.ItemBasedExpense)},
			"ItemBasedExpenseLineDetail": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"ItemRef":   ref,
					"Qty":       map[string]any{"type": "number", "exclusiveMinimum": 0},
					"UnitPrice": map[string]any{"type": "number"},
				},
				"required": []string{"ItemRef", "Qty", "UnitPrice"},
			},
		},
		"required": []string{"ItemBasedExpenseLineDetail"},
		"not":      map[string]any{"required": []string{"AccountBasedExpenseLineDetail"}},
	}
	accountLine := map[string]any{
		"properties": map[string]any{
			"DetailType": map[string]any{"const": string(constants.AccountBasedExpense)},
			"AccountBasedExpenseLineDetail": map[string]any{
				"type":       "object",
				"properties": map[string]any{"AccountRef": ref},
				"required":   []string{"AccountRef"},
			},
		},
		"required": []string{"AccountBasedExpenseLineDetail"},
		"not":      map[string]any{"required": []string{"ItemBasedExpenseLineDetail"}},
	}

	line := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"DetailType":  map[string]any{"type": "string"},
			"Amount":      map[string]any{"type": "number", "exclusiveMinimum": 0},
			"Description": map[string]any{"type": "string"},
		},
		"required": []string{"DetailType", "Amount"},
		"oneOf":    []any{itemLine, accountLine},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"VendorRef": ref,
			"TxnDate":   map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
			"DocNumber": map[string]any{"type": "string", "maxLength": maxDocNumberLen},
			"Line":      map[string]any{"type": "array", "minItems": 1, "items": line},
		},
		"required": []string{"VendorRef", "TxnDate", "Line"},
	}
}

// ValidatePayload validates encoded bill JSON. Failures wrap ErrValidation.
func ValidatePayload(data []byte) error {
	if err := validateJSONAgainstSchema(BuildBillJSONSchema(), data); err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	return nil
}

func validateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("bill.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("bill.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("bill does not match schema: %w", err)
	}
	return nil
}
