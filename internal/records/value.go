package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gridstonehq/gridstone/backend/internal/schema"
)

// VariantKind selects the populated slot of a Variant.
type VariantKind int

const (
	VariantText VariantKind = iota
	VariantNumber
	VariantBoolean
	VariantDateTime
	VariantJSON
)

// Variant is the typed storage representation of one field value. Exactly
// one slot is meaningful, selected by Kind.
type Variant struct {
	Kind    VariantKind
	Text    string
	Number  float64
	Boolean bool
	Time    time.Time
	JSON    string
}

// ErrFormulaNotStored marks a write attempt against a formula field. Formula
// values are computed at read time and never persisted.
var ErrFormulaNotStored = errors.New("records: formula values are not stored")

// Encode maps a raw client value onto the storage slot dictated by the field
// type. The switch is exhaustive over the closed type set.
func Encode(fieldType schema.FieldType, raw any) (Variant, error) {
	switch fieldType {
	case schema.FieldTypeText, schema.FieldTypeEmail, schema.FieldTypeURL,
		schema.FieldTypePhoneNumber, schema.FieldTypeLookup, schema.FieldTypeRollup,
		schema.FieldTypeUser, schema.FieldTypeAutoNumber:
		return Variant{Kind: VariantText, Text: stringify(raw)}, nil

	case schema.FieldTypeNumber, schema.FieldTypeCount:
		number, err := toFloat(raw)
		if err != nil {
			return Variant{}, fmt.Errorf("records: %s value: %w", fieldType, err)
		}
		return Variant{Kind: VariantNumber, Number: number}, nil

	case schema.FieldTypeBoolean:
		flag, err := toBool(raw)
		if err != nil {
			return Variant{}, fmt.Errorf("records: boolean value: %w", err)
		}
		return Variant{Kind: VariantBoolean, Boolean: flag}, nil

	case schema.FieldTypeDate, schema.FieldTypeCreatedTime, schema.FieldTypeLastModifiedTime:
		when, err := toTime(raw)
		if err != nil {
			return Variant{}, fmt.Errorf("records: %s value: %w", fieldType, err)
		}
		return Variant{Kind: VariantDateTime, Time: when}, nil

	case schema.FieldTypeSingleSelect:
		switch raw.(type) {
		case []any, map[string]any:
			return Variant{}, fmt.Errorf("records: singleSelect value must be a scalar, got %T", raw)
		}
		return Variant{Kind: VariantText, Text: stringify(raw)}, nil

	case schema.FieldTypeMultiSelect:
		choices, err := toStringList(raw)
		if err != nil {
			return Variant{}, fmt.Errorf("records: multiSelect value: %w", err)
		}
		return Variant{Kind: VariantJSON, JSON: mustJSON(choices)}, nil

	case schema.FieldTypeLinkToRecord:
		ids, err := toIntList(raw)
		if err != nil {
			return Variant{}, fmt.Errorf("records: linkToRecord value: %w", err)
		}
		return Variant{Kind: VariantJSON, JSON: mustJSON(ids)}, nil

	case schema.FieldTypeAttachment:
		encoded, err := json.Marshal(raw)
		if err != nil {
			return Variant{}, fmt.Errorf("records: attachment value: %w", err)
		}
		return Variant{Kind: VariantJSON, JSON: string(encoded)}, nil

	case schema.FieldTypeFormula:
		return Variant{}, ErrFormulaNotStored

	default:
		return Variant{}, fmt.Errorf("records: unhandled field type %q", fieldType)
	}
}

// apply writes the variant into the matching nullable column of a
// RecordValue row.
func (v Variant) apply(value *RecordValue) {
	switch v.Kind {
	case VariantText:
		text := v.Text
		value.ValueText = &text
	case VariantNumber:
		number := v.Number
		value.ValueNumber = &number
	case VariantBoolean:
		flag := v.Boolean
		value.ValueBoolean = &flag
	case VariantDateTime:
		when := v.Time
		value.ValueDatetime = &when
	case VariantJSON:
		blob := v.JSON
		value.ValueJSON = &blob
	}
}

// Decode is the inverse of Encode: it lifts a stored row back into the
// display value for export and formula paths. Formula fields decode to nil
// because nothing is stored for them.
func Decode(fieldType schema.FieldType, value RecordValue) (any, error) {
	switch fieldType {
	case schema.FieldTypeText, schema.FieldTypeEmail, schema.FieldTypeURL,
		schema.FieldTypePhoneNumber, schema.FieldTypeLookup, schema.FieldTypeRollup,
		schema.FieldTypeUser, schema.FieldTypeAutoNumber, schema.FieldTypeSingleSelect:
		if value.ValueText == nil {
			return nil, nil
		}
		return *value.ValueText, nil

	case schema.FieldTypeNumber, schema.FieldTypeCount:
		if value.ValueNumber == nil {
			return nil, nil
		}
		return *value.ValueNumber, nil

	case schema.FieldTypeBoolean:
		if value.ValueBoolean == nil {
			return nil, nil
		}
		return *value.ValueBoolean, nil

	case schema.FieldTypeDate, schema.FieldTypeCreatedTime, schema.FieldTypeLastModifiedTime:
		if value.ValueDatetime == nil {
			return nil, nil
		}
		return *value.ValueDatetime, nil

	case schema.FieldTypeMultiSelect, schema.FieldTypeLinkToRecord, schema.FieldTypeAttachment:
		if value.ValueJSON == nil {
			return nil, nil
		}
		var decoded any
		if err := json.Unmarshal([]byte(*value.ValueJSON), &decoded); err != nil {
			return nil, fmt.Errorf("records: decode %s value: %w", fieldType, err)
		}
		return decoded, nil

	case schema.FieldTypeFormula:
		return nil, nil

	default:
		return nil, fmt.Errorf("records: unhandled field type %q", fieldType)
	}
}

// linkedIDs extracts the id list from a stored linkToRecord value.
func linkedIDs(value RecordValue) ([]int64, error) {
	if value.ValueJSON == nil {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(*value.ValueJSON), &ids); err != nil {
		return nil, fmt.Errorf("records: decode linked ids: %w", err)
	}
	return ids, nil
}

func stringify(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not numeric", v)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("%T is not convertible to a number", raw)
	}
}

func toBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return false, fmt.Errorf("%q is not a boolean", v)
	default:
		return false, fmt.Errorf("%T is not a boolean", raw)
	}
}

func toTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		trimmed := strings.TrimSpace(v)
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
			if when, err := time.Parse(layout, trimmed); err == nil {
				return when, nil
			}
		}
		return time.Time{}, fmt.Errorf("%q is not a date/time", v)
	default:
		return time.Time{}, fmt.Errorf("%T is not a date/time", raw)
	}
}

func toStringList(raw any) ([]string, error) {
	items, ok := raw.([]any)
	if !ok {
		if typed, isTyped := raw.([]string); isTyped {
			return typed, nil
		}
		return nil, fmt.Errorf("%T is not a list", raw)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		text, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("element %v is not a string", item)
		}
		out = append(out, text)
	}
	return out, nil
}

func toIntList(raw any) ([]int64, error) {
	switch typed := raw.(type) {
	case []int64:
		return typed, nil
	case []int:
		out := make([]int64, 0, len(typed))
		for _, id := range typed {
			out = append(out, int64(id))
		}
		return out, nil
	case []any:
		out := make([]int64, 0, len(typed))
		for _, item := range typed {
			switch id := item.(type) {
			case float64:
				if id != math.Trunc(id) {
					return nil, fmt.Errorf("element %v is not an integer", item)
				}
				out = append(out, int64(id))
			case int:
				out = append(out, int64(id))
			case int64:
				out = append(out, id)
			case json.Number:
				parsed, err := id.Int64()
				if err != nil {
					return nil, fmt.Errorf("element %v is not an integer", item)
				}
				out = append(out, parsed)
			default:
				return nil, fmt.Errorf("element %v is not an integer", item)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%T is not a list", raw)
	}
}

func mustJSON(value any) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		// Only reachable for unmarshalable Go values, which the converters
		// above never produce.
		panic(err)
	}
	return string(encoded)
}
