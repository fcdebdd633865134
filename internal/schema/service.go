package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gridstonehq/gridstone/backend/internal/core"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingName     = errors.New("name is required")
	noOpLogger         = zap.NewNop()
)

const (
	opServiceNew  = "schema.service.new"
	opCreateBase  = "schema.create_base"
	opListBases   = "schema.list_bases"
	opGetBase     = "schema.get_base"
	opRenameBase  = "schema.rename_base"
	opDeleteBase  = "schema.delete_base"
	opCreateTable = "schema.create_table"
	opListTables  = "schema.list_tables"
	opGetTable    = "schema.get_table"
	opRenameTable = "schema.rename_table"
	opDeleteTable = "schema.delete_table"
	opCreateField = "schema.create_field"
	opListFields  = "schema.list_fields"
	opGetField    = "schema.get_field"
	opUpdateField = "schema.update_field"
	opDeleteField = "schema.delete_field"
)

// ServiceConfig describes the dependencies for the schema service.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service owns the lifecycle of bases, tables, and fields. Mutations are
// owner-gated; cascading deletes run inside one transaction.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService constructs the schema service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, core.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, logger: logger}, nil
}

// CreateBase creates a workspace owned by ownerID.
func (s *Service) CreateBase(ctx context.Context, ownerID int64, name string) (Base, error) {
	if strings.TrimSpace(name) == "" {
		return Base{}, core.Validation(opCreateBase, "missing_name", errMissingName)
	}
	base := Base{OwnerID: ownerID, Name: strings.TrimSpace(name)}
	if err := s.db.WithContext(ctx).Create(&base).Error; err != nil {
		s.logError(opCreateBase, "insert_failed", err, zap.Int64("owner_id", ownerID))
		return Base{}, core.Internal(opCreateBase, "insert_failed", err)
	}
	return base, nil
}

// ListBases returns the bases owned by ownerID.
func (s *Service) ListBases(ctx context.Context, ownerID int64, skip, limit int) ([]Base, error) {
	if limit <= 0 {
		limit = 100
	}
	var bases []Base
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("id").
		Offset(skip).Limit(limit).
		Find(&bases).Error; err != nil {
		s.logError(opListBases, "query_failed", err, zap.Int64("owner_id", ownerID))
		return nil, core.Internal(opListBases, "query_failed", err)
	}
	return bases, nil
}

// GetBase returns the base if it exists and is owned by actorID.
func (s *Service) GetBase(ctx context.Context, baseID, actorID int64) (Base, error) {
	var base Base
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", baseID, actorID).
		Take(&base).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Base{}, core.NotFound(opGetBase, "base_missing", err)
	}
	if err != nil {
		s.logError(opGetBase, "query_failed", err, zap.Int64("base_id", baseID))
		return Base{}, core.Internal(opGetBase, "query_failed", err)
	}
	return base, nil
}

// RenameBase updates the base name, owner only.
func (s *Service) RenameBase(ctx context.Context, baseID, actorID int64, name string) (Base, error) {
	if strings.TrimSpace(name) == "" {
		return Base{}, core.Validation(opRenameBase, "missing_name", errMissingName)
	}
	base, err := s.GetBase(ctx, baseID, actorID)
	if err != nil {
		return Base{}, err
	}
	base.Name = strings.TrimSpace(name)
	if err := s.db.WithContext(ctx).Save(&base).Error; err != nil {
		s.logError(opRenameBase, "update_failed", err, zap.Int64("base_id", baseID))
		return Base{}, core.Internal(opRenameBase, "update_failed", err)
	}
	return base, nil
}

// DeleteBase removes the base and every table within it, owner only.
func (s *Service) DeleteBase(ctx context.Context, baseID, actorID int64) error {
	if _, err := s.GetBase(ctx, baseID, actorID); err != nil {
		return err
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tables []Table
		if err := tx.Where("base_id = ?", baseID).Find(&tables).Error; err != nil {
			return err
		}
		for _, table := range tables {
			if err := cascadeDeleteTable(tx, table.ID); err != nil {
				return err
			}
		}
		return tx.Delete(&Base{}, baseID).Error
	})
	if txErr != nil {
		s.logError(opDeleteBase, "cascade_failed", txErr, zap.Int64("base_id", baseID))
		return core.Internal(opDeleteBase, "cascade_failed", txErr)
	}
	return nil
}

// CreateTable creates a table inside a base the actor owns.
func (s *Service) CreateTable(ctx context.Context, baseID, actorID int64, name string) (Table, error) {
	if strings.TrimSpace(name) == "" {
		return Table{}, core.Validation(opCreateTable, "missing_name", errMissingName)
	}
	if _, err := s.GetBase(ctx, baseID, actorID); err != nil {
		return Table{}, core.NotFound(opCreateTable, "base_missing", err)
	}
	table := Table{BaseID: baseID, OwnerID: actorID, Name: strings.TrimSpace(name)}
	if err := s.db.WithContext(ctx).Create(&table).Error; err != nil {
		s.logError(opCreateTable, "insert_failed", err, zap.Int64("base_id", baseID))
		return Table{}, core.Internal(opCreateTable, "insert_failed", err)
	}
	return table, nil
}

// ListTables returns the tables of a base the actor owns.
func (s *Service) ListTables(ctx context.Context, baseID, actorID int64) ([]Table, error) {
	if _, err := s.GetBase(ctx, baseID, actorID); err != nil {
		return nil, core.NotFound(opListTables, "base_missing", err)
	}
	var tables []Table
	if err := s.db.WithContext(ctx).
		Where("base_id = ?", baseID).
		Order("id").
		Find(&tables).Error; err != nil {
		s.logError(opListTables, "query_failed", err, zap.Int64("base_id", baseID))
		return nil, core.Internal(opListTables, "query_failed", err)
	}
	return tables, nil
}

// GetTable returns a table the actor owns.
func (s *Service) GetTable(ctx context.Context, tableID, actorID int64) (Table, error) {
	var table Table
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", tableID, actorID).
		Take(&table).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Table{}, core.NotFound(opGetTable, "table_missing", err)
	}
	if err != nil {
		s.logError(opGetTable, "query_failed", err, zap.Int64("table_id", tableID))
		return Table{}, core.Internal(opGetTable, "query_failed", err)
	}
	return table, nil
}

// RenameTable updates the table name, owner only.
func (s *Service) RenameTable(ctx context.Context, tableID, actorID int64, name string) (Table, error) {
	if strings.TrimSpace(name) == "" {
		return Table{}, core.Validation(opRenameTable, "missing_name", errMissingName)
	}
	table, err := s.GetTable(ctx, tableID, actorID)
	if err != nil {
		return Table{}, err
	}
	table.Name = strings.TrimSpace(name)
	if err := s.db.WithContext(ctx).Save(&table).Error; err != nil {
		s.logError(opRenameTable, "update_failed", err, zap.Int64("table_id", tableID))
		return Table{}, core.Internal(opRenameTable, "update_failed", err)
	}
	return table, nil
}

// DeleteTable removes the table and cascades to its fields, records, record
// values, record links, views, and permissions in one transaction.
func (s *Service) DeleteTable(ctx context.Context, tableID, actorID int64) error {
	if _, err := s.GetTable(ctx, tableID, actorID); err != nil {
		return err
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return cascadeDeleteTable(tx, tableID)
	})
	if txErr != nil {
		s.logError(opDeleteTable, "cascade_failed", txErr, zap.Int64("table_id", tableID))
		return core.Internal(opDeleteTable, "cascade_failed", txErr)
	}
	return nil
}

// cascadeDeleteTable removes a table's children bottom-up. Link edges are
// removed in both directions: edges sourced in the table and edges pointing
// at its records from other tables.
func cascadeDeleteTable(tx *gorm.DB, tableID int64) error {
	statements := []string{
		"DELETE FROM record_links WHERE source_record_id IN (SELECT id FROM records WHERE table_id = ?)",
		"DELETE FROM record_links WHERE linked_record_id IN (SELECT id FROM records WHERE table_id = ?)",
		"DELETE FROM record_values WHERE record_id IN (SELECT id FROM records WHERE table_id = ?)",
		"DELETE FROM records WHERE table_id = ?",
		"DELETE FROM fields WHERE table_id = ?",
		"DELETE FROM views WHERE table_id = ?",
		"DELETE FROM table_permissions WHERE table_id = ?",
	}
	for _, statement := range statements {
		if err := tx.Exec(statement, tableID).Error; err != nil {
			return err
		}
	}
	return tx.Delete(&Table{}, tableID).Error
}

// CreateField adds a typed column to a table the actor owns. Options must
// satisfy the type's schema; linkToRecord targets must exist.
func (s *Service) CreateField(ctx context.Context, tableID, actorID int64, name string, fieldType FieldType, opts FieldOptions) (Field, error) {
	if strings.TrimSpace(name) == "" {
		return Field{}, core.Validation(opCreateField, "missing_name", errMissingName)
	}
	if _, err := ParseFieldType(string(fieldType)); err != nil {
		return Field{}, core.Validation(opCreateField, "unknown_type", err)
	}
	if err := ValidateOptions(fieldType, opts); err != nil {
		return Field{}, core.Validation(opCreateField, "invalid_options", err)
	}
	if _, err := s.GetTable(ctx, tableID, actorID); err != nil {
		return Field{}, err
	}
	if fieldType == FieldTypeLinkToRecord {
		if err := s.checkLinkedTable(ctx, *opts.LinkedTableID); err != nil {
			return Field{}, err
		}
	}
	encoded, err := encodeOptions(opts)
	if err != nil {
		return Field{}, core.Internal(opCreateField, "encode_options_failed", err)
	}
	field := Field{
		TableID:     tableID,
		OwnerID:     actorID,
		Name:        strings.TrimSpace(name),
		Type:        fieldType,
		OptionsJSON: encoded,
	}
	if err := s.db.WithContext(ctx).Create(&field).Error; err != nil {
		s.logError(opCreateField, "insert_failed", err, zap.Int64("table_id", tableID))
		return Field{}, core.Internal(opCreateField, "insert_failed", err)
	}
	return field, nil
}

// ListFields returns a table's fields ordered by id.
func (s *Service) ListFields(ctx context.Context, tableID, actorID int64) ([]Field, error) {
	if _, err := s.GetTable(ctx, tableID, actorID); err != nil {
		return nil, err
	}
	var fields []Field
	if err := s.db.WithContext(ctx).
		Where("table_id = ?", tableID).
		Order("id").
		Find(&fields).Error; err != nil {
		s.logError(opListFields, "query_failed", err, zap.Int64("table_id", tableID))
		return nil, core.Internal(opListFields, "query_failed", err)
	}
	return fields, nil
}

// GetField returns a field the actor owns.
func (s *Service) GetField(ctx context.Context, fieldID, actorID int64) (Field, error) {
	var field Field
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", fieldID, actorID).
		Take(&field).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Field{}, core.NotFound(opGetField, "field_missing", err)
	}
	if err != nil {
		s.logError(opGetField, "query_failed", err, zap.Int64("field_id", fieldID))
		return Field{}, core.Internal(opGetField, "query_failed", err)
	}
	return field, nil
}

// UpdateField renames a field or replaces its options. The type is fixed at
// creation; changing it would orphan stored values in the wrong slot.
func (s *Service) UpdateField(ctx context.Context, fieldID, actorID int64, name string, opts *FieldOptions) (Field, error) {
	field, err := s.GetField(ctx, fieldID, actorID)
	if err != nil {
		return Field{}, err
	}
	if strings.TrimSpace(name) != "" {
		field.Name = strings.TrimSpace(name)
	}
	if opts != nil {
		if err := ValidateOptions(field.Type, *opts); err != nil {
			return Field{}, core.Validation(opUpdateField, "invalid_options", err)
		}
		if field.Type == FieldTypeLinkToRecord {
			if err := s.checkLinkedTable(ctx, *opts.LinkedTableID); err != nil {
				return Field{}, err
			}
		}
		encoded, err := encodeOptions(*opts)
		if err != nil {
			return Field{}, core.Internal(opUpdateField, "encode_options_failed", err)
		}
		field.OptionsJSON = encoded
	}
	if err := s.db.WithContext(ctx).Save(&field).Error; err != nil {
		s.logError(opUpdateField, "update_failed", err, zap.Int64("field_id", fieldID))
		return Field{}, core.Internal(opUpdateField, "update_failed", err)
	}
	return field, nil
}

// DeleteField removes the field together with its stored values and, for
// linkToRecord fields, its edges.
func (s *Service) DeleteField(ctx context.Context, fieldID, actorID int64) error {
	if _, err := s.GetField(ctx, fieldID, actorID); err != nil {
		return err
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM record_links WHERE source_field_id = ?", fieldID).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM record_values WHERE field_id = ?", fieldID).Error; err != nil {
			return err
		}
		return tx.Delete(&Field{}, fieldID).Error
	})
	if txErr != nil {
		s.logError(opDeleteField, "cascade_failed", txErr, zap.Int64("field_id", fieldID))
		return core.Internal(opDeleteField, "cascade_failed", txErr)
	}
	return nil
}

func (s *Service) checkLinkedTable(ctx context.Context, linkedTableID int64) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Table{}).
		Where("id = ?", linkedTableID).
		Count(&count).Error; err != nil {
		return core.Internal(opCreateField, "linked_table_lookup_failed", err)
	}
	if count == 0 {
		return core.Validation(opCreateField, "linked_table_missing",
			fmt.Errorf("schema: linked table %d does not exist", linkedTableID))
	}
	return nil
}

func encodeOptions(opts FieldOptions) (string, error) {
	encoded, err := json.Marshal(opts)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("schema service error", attrs...)
}
