package records

import "time"

// Record is a row within a table. Values live in RecordValue rows, one per
// field.
type Record struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TableID   int64     `gorm:"column:table_id;not null;index" json:"table_id"`
	OwnerID   int64     `gorm:"column:owner_id;not null;index" json:"owner_id"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "records"
}

// RecordValue is the stored value of one field for one record. Exactly one
// slot is populated; which one is decided by the owning field's type, never
// by the content. Synthetic formula values returned on reads use the negated
// field id as their id and are never persisted.
type RecordValue struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RecordID      int64      `gorm:"column:record_id;not null;index:idx_values_record_field,unique,priority:1" json:"record_id"`
	FieldID       int64      `gorm:"column:field_id;not null;index:idx_values_record_field,unique,priority:2" json:"field_id"`
	ValueText     *string    `gorm:"column:value_text;type:text" json:"value_text,omitempty"`
	ValueNumber   *float64   `gorm:"column:value_number" json:"value_number,omitempty"`
	ValueBoolean  *bool      `gorm:"column:value_boolean" json:"value_boolean,omitempty"`
	ValueDatetime *time.Time `gorm:"column:value_datetime" json:"value_datetime,omitempty"`
	ValueJSON     *string    `gorm:"column:value_json;type:text" json:"value_json,omitempty"`
}

// TableName provides the explicit table binding for GORM.
func (RecordValue) TableName() string {
	return "record_values"
}

// RecordLink is a directed edge created by a linkToRecord field. The triple
// is unique; the set of edges for a (source record, source field) pair
// mirrors the id list stored in that field's RecordValue.
type RecordLink struct {
	ID             int64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	SourceRecordID int64 `gorm:"column:source_record_id;not null;index:idx_links_triple,unique,priority:1;index" json:"source_record_id"`
	SourceFieldID  int64 `gorm:"column:source_field_id;not null;index:idx_links_triple,unique,priority:2" json:"source_field_id"`
	LinkedRecordID int64 `gorm:"column:linked_record_id;not null;index:idx_links_triple,unique,priority:3;index" json:"linked_record_id"`
}

// TableName provides the explicit table binding for GORM.
func (RecordLink) TableName() string {
	return "record_links"
}

// RecordData is a fully materialized record: stored values plus computed
// formula values.
type RecordData struct {
	Record
	Values []RecordValue `json:"values"`
}
