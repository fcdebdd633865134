package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FieldType enumerates every column type a table can carry. The set is
// closed: codec, formula, and view validation switch over it exhaustively.
type FieldType string

const (
	FieldTypeText             FieldType = "text"
	FieldTypeNumber           FieldType = "number"
	FieldTypeDate             FieldType = "date"
	FieldTypeBoolean          FieldType = "boolean"
	FieldTypeSingleSelect     FieldType = "singleSelect"
	FieldTypeMultiSelect      FieldType = "multiSelect"
	FieldTypeAttachment       FieldType = "attachment"
	FieldTypeEmail            FieldType = "email"
	FieldTypeURL              FieldType = "url"
	FieldTypePhoneNumber      FieldType = "phoneNumber"
	FieldTypeFormula          FieldType = "formula"
	FieldTypeLookup           FieldType = "lookup"
	FieldTypeCount            FieldType = "count"
	FieldTypeRollup           FieldType = "rollup"
	FieldTypeUser             FieldType = "user"
	FieldTypeCreatedTime      FieldType = "createdTime"
	FieldTypeLastModifiedTime FieldType = "lastModifiedTime"
	FieldTypeAutoNumber       FieldType = "autoNumber"
	FieldTypeLinkToRecord     FieldType = "linkToRecord"
)

var fieldTypes = map[FieldType]struct{}{
	FieldTypeText: {}, FieldTypeNumber: {}, FieldTypeDate: {}, FieldTypeBoolean: {},
	FieldTypeSingleSelect: {}, FieldTypeMultiSelect: {}, FieldTypeAttachment: {},
	FieldTypeEmail: {}, FieldTypeURL: {}, FieldTypePhoneNumber: {}, FieldTypeFormula: {},
	FieldTypeLookup: {}, FieldTypeCount: {}, FieldTypeRollup: {}, FieldTypeUser: {},
	FieldTypeCreatedTime: {}, FieldTypeLastModifiedTime: {}, FieldTypeAutoNumber: {},
	FieldTypeLinkToRecord: {},
}

// ErrUnknownFieldType indicates a type string outside the closed set.
var ErrUnknownFieldType = errors.New("schema: unknown field type")

// ParseFieldType validates raw input against the closed type set.
func ParseFieldType(raw string) (FieldType, error) {
	candidate := FieldType(strings.TrimSpace(raw))
	if _, ok := fieldTypes[candidate]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFieldType, raw)
	}
	return candidate, nil
}

// IsDateBacked reports whether values of this type live in the datetime slot.
func (t FieldType) IsDateBacked() bool {
	switch t {
	case FieldTypeDate, FieldTypeCreatedTime, FieldTypeLastModifiedTime:
		return true
	default:
		return false
	}
}

// Base is a workspace owned by one user.
type Base struct {
	ID      int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OwnerID int64  `gorm:"column:owner_id;not null;index" json:"owner_id"`
	Name    string `gorm:"column:name;not null" json:"name"`
}

// TableName provides the explicit table binding for GORM.
func (Base) TableName() string {
	return "bases"
}

// Table is a named collection of fields and records within a base.
type Table struct {
	ID      int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	BaseID  int64  `gorm:"column:base_id;not null;index" json:"base_id"`
	OwnerID int64  `gorm:"column:owner_id;not null;index" json:"owner_id"`
	Name    string `gorm:"column:name;not null" json:"name"`
}

// TableName provides the explicit table binding for GORM.
func (Table) TableName() string {
	return "tables"
}

// FieldOptions carries the type-specific configuration of a field.
type FieldOptions struct {
	Choices       []string `json:"choices,omitempty"`
	LinkedTableID *int64   `json:"linked_table_id,omitempty"`
	FormulaString string   `json:"formula_string,omitempty"`
}

// Field is a typed column definition within a table.
type Field struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TableID     int64     `gorm:"column:table_id;not null;index" json:"table_id"`
	OwnerID     int64     `gorm:"column:owner_id;not null;index" json:"owner_id"`
	Name        string    `gorm:"column:name;not null" json:"name"`
	Type        FieldType `gorm:"column:type;size:64;not null" json:"type"`
	OptionsJSON string    `gorm:"column:options_json;type:text;not null;default:''" json:"options_json"`
}

// TableName provides the explicit table binding for GORM.
func (Field) TableName() string {
	return "fields"
}

// Options decodes the stored options blob. A missing blob decodes to the
// zero options.
func (f Field) Options() (FieldOptions, error) {
	if strings.TrimSpace(f.OptionsJSON) == "" {
		return FieldOptions{}, nil
	}
	var opts FieldOptions
	if err := json.Unmarshal([]byte(f.OptionsJSON), &opts); err != nil {
		return FieldOptions{}, fmt.Errorf("schema: decode field options: %w", err)
	}
	return opts, nil
}

// ValidateOptions checks that options satisfy the type's schema.
func ValidateOptions(fieldType FieldType, opts FieldOptions) error {
	switch fieldType {
	case FieldTypeSingleSelect, FieldTypeMultiSelect:
		if len(opts.Choices) == 0 {
			return fmt.Errorf("schema: %s fields require a non-empty choices list", fieldType)
		}
		for _, choice := range opts.Choices {
			if strings.TrimSpace(choice) == "" {
				return fmt.Errorf("schema: %s choices must be non-empty strings", fieldType)
			}
		}
	case FieldTypeLinkToRecord:
		if opts.LinkedTableID == nil || *opts.LinkedTableID <= 0 {
			return errors.New("schema: linkToRecord fields require a linked_table_id")
		}
	case FieldTypeFormula:
		if strings.TrimSpace(opts.FormulaString) == "" {
			return errors.New("schema: formula fields require a non-empty formula_string")
		}
	}
	return nil
}
