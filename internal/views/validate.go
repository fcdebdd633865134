package views

import (
	"fmt"
	"math"

	"github.com/gridstonehq/gridstone/backend/internal/schema"
)

// ConfigError reports a config violation and the offending key.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("views: invalid config key %q: %s", e.Key, e.Reason)
}

func configError(key, format string, args ...any) error {
	return &ConfigError{Key: key, Reason: fmt.Sprintf(format, args...)}
}

// stackableTypes are the field types a kanban view can group by.
var stackableTypes = map[schema.FieldType]struct{}{
	schema.FieldTypeSingleSelect: {},
	schema.FieldTypeText:         {},
	schema.FieldTypeBoolean:      {},
}

// ValidateConfig checks a decoded config blob against the table's field set
// for the given view type. Grid views carry no constrained keys.
func ValidateConfig(viewType ViewType, config map[string]any, fields map[int64]schema.Field) error {
	switch viewType {
	case ViewTypeGrid:
		return nil
	case ViewTypeForm:
		return validateFormConfig(config, fields)
	case ViewTypeKanban:
		return validateKanbanConfig(config, fields)
	case ViewTypeCalendar:
		return validateCalendarConfig(config, fields)
	case ViewTypeGallery:
		return validateGalleryConfig(config, fields)
	default:
		return fmt.Errorf("views: unknown view type %q", viewType)
	}
}

func validateFormConfig(config map[string]any, fields map[int64]schema.Field) error {
	raw, present := config["form_fields"]
	if !present {
		return nil
	}
	entries, ok := raw.([]any)
	if !ok {
		return configError("form_fields", "must be a list")
	}
	for index, entry := range entries {
		item, ok := entry.(map[string]any)
		if !ok {
			return configError("form_fields", "entry %d must be an object", index)
		}
		fieldID, err := fieldIDValue(item["field_id"])
		if err != nil {
			return configError("form_fields", "entry %d: %v", index, err)
		}
		if _, exists := fields[fieldID]; !exists {
			return configError("form_fields", "entry %d references unknown field %d", index, fieldID)
		}
	}
	return nil
}

func validateKanbanConfig(config map[string]any, fields map[int64]schema.Field) error {
	raw, present := config["stack_by_field_id"]
	if !present || raw == nil {
		return configError("stack_by_field_id", "required for kanban views")
	}
	stackBy, err := fieldIDValue(raw)
	if err != nil {
		return configError("stack_by_field_id", "%v", err)
	}
	field, exists := fields[stackBy]
	if !exists {
		return configError("stack_by_field_id", "references unknown field %d", stackBy)
	}
	if _, stackable := stackableTypes[field.Type]; !stackable {
		return configError("stack_by_field_id",
			"field %d has type %s; kanban stacking requires singleSelect, text, or boolean", stackBy, field.Type)
	}
	return validateFieldIDList(config, "card_fields", fields)
}

func validateCalendarConfig(config map[string]any, fields map[int64]schema.Field) error {
	dateFieldID, err := requiredFieldID(config, "date_field_id")
	if err != nil {
		return err
	}
	if err := checkDateBacked(dateFieldID, "date_field_id", fields); err != nil {
		return err
	}

	titleFieldID, err := requiredFieldID(config, "event_title_field_id")
	if err != nil {
		return err
	}
	if _, exists := fields[titleFieldID]; !exists {
		return configError("event_title_field_id", "references unknown field %d", titleFieldID)
	}

	if raw, present := config["end_date_field_id"]; present && raw != nil {
		endFieldID, err := fieldIDValue(raw)
		if err != nil {
			return configError("end_date_field_id", "%v", err)
		}
		if err := checkDateBacked(endFieldID, "end_date_field_id", fields); err != nil {
			return err
		}
	}
	return nil
}

func validateGalleryConfig(config map[string]any, fields map[int64]schema.Field) error {
	if raw, present := config["cover_field_id"]; present && raw != nil {
		coverFieldID, err := fieldIDValue(raw)
		if err != nil {
			return configError("cover_field_id", "%v", err)
		}
		if _, exists := fields[coverFieldID]; !exists {
			return configError("cover_field_id", "references unknown field %d", coverFieldID)
		}
	}
	return validateFieldIDList(config, "card_visible_field_ids", fields)
}

func validateFieldIDList(config map[string]any, key string, fields map[int64]schema.Field) error {
	raw, present := config[key]
	if !present || raw == nil {
		return nil
	}
	entries, ok := raw.([]any)
	if !ok {
		return configError(key, "must be a list of field ids")
	}
	for index, entry := range entries {
		fieldID, err := fieldIDValue(entry)
		if err != nil {
			return configError(key, "entry %d: %v", index, err)
		}
		if _, exists := fields[fieldID]; !exists {
			return configError(key, "entry %d references unknown field %d", index, fieldID)
		}
	}
	return nil
}

func requiredFieldID(config map[string]any, key string) (int64, error) {
	raw, present := config[key]
	if !present || raw == nil {
		return 0, configError(key, "required for this view type")
	}
	fieldID, err := fieldIDValue(raw)
	if err != nil {
		return 0, configError(key, "%v", err)
	}
	return fieldID, nil
}

func checkDateBacked(fieldID int64, key string, fields map[int64]schema.Field) error {
	field, exists := fields[fieldID]
	if !exists {
		return configError(key, "references unknown field %d", fieldID)
	}
	if !field.Type.IsDateBacked() {
		return configError(key,
			"field %d has type %s; calendar dates require date, createdTime, or lastModifiedTime", fieldID, field.Type)
	}
	return nil
}

// fieldIDValue coerces a decoded JSON value into a field id. JSON numbers
// arrive as float64.
func fieldIDValue(raw any) (int64, error) {
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("field id %v is not an integer", raw)
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("field id %v is not an integer", raw)
	}
}
