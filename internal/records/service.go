package records

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gridstonehq/gridstone/backend/internal/access"
	"github.com/gridstonehq/gridstone/backend/internal/core"
	"github.com/gridstonehq/gridstone/backend/internal/formula"
	"github.com/gridstonehq/gridstone/backend/internal/schema"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// EventRecordCreated is broadcast to the table room after a create commits.
	EventRecordCreated = "record_created"
	// EventRecordUpdated is broadcast to the table room after an update commits.
	EventRecordUpdated = "record_updated"
	// EventRecordDeleted is broadcast to the table room after a delete commits.
	EventRecordDeleted = "record_deleted"
)

// TableRoom is the realtime room identifier for a table.
func TableRoom(tableID int64) string {
	return fmt.Sprintf("table_%d", tableID)
}

// ViewerScope decides which records a plain viewer sees. The original system
// kept the "own records only" path disabled; it is surfaced here as
// configuration.
type ViewerScope string

const (
	// ViewerScopeAll lets viewers read every record in the table.
	ViewerScopeAll ViewerScope = "all"
	// ViewerScopeOwn restricts viewers to records they created.
	ViewerScopeOwn ViewerScope = "own"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingAccess   = errors.New("access service is required")
	noOpLogger         = zap.NewNop()
)

const (
	opServiceNew = "records.service.new"
	opCreate     = "records.create"
	opRead       = "records.read"
	opList       = "records.list"
	opUpdate     = "records.update"
	opDelete     = "records.delete"
	opBacklinks  = "records.backlinks"
)

// Publisher receives mutation events for a room. Broadcast is fire and
// forget; delivery is best effort with no ordering guarantee relative to the
// commit that produced the event.
type Publisher interface {
	Publish(event string, payload any, room string)
}

type noOpPublisher struct{}

func (noOpPublisher) Publish(string, any, string) {}

// ServiceConfig describes the dependencies for the record store.
type ServiceConfig struct {
	Database    *gorm.DB
	Access      *access.Service
	Publisher   Publisher
	Clock       func() time.Time
	Logger      *zap.Logger
	ViewerScope ViewerScope
}

// Service owns record, value, and link lifecycle. Each mutation is one
// transaction: value replacement and link mirroring commit together or not
// at all. Concurrent updates to the same record are a last-write-wins race;
// no per-record locking is attempted.
type Service struct {
	db          *gorm.DB
	access      *access.Service
	publisher   Publisher
	clock       func() time.Time
	logger      *zap.Logger
	viewerScope ViewerScope
}

// NewService constructs the record store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, core.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Access == nil {
		return nil, core.Internal(opServiceNew, "missing_access", errMissingAccess)
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = noOpPublisher{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	scope := cfg.ViewerScope
	if scope == "" {
		scope = ViewerScopeAll
	}
	return &Service{
		db:          cfg.Database,
		access:      cfg.Access,
		publisher:   publisher,
		clock:       clock,
		logger:      logger,
		viewerScope: scope,
	}, nil
}

// Create inserts a record with the supplied field values. Unknown fields and
// formula fields are skipped silently; linkToRecord values additionally
// materialize one edge per linked id. Requires editor access.
func (s *Service) Create(ctx context.Context, tableID, actorID int64, values map[int64]any) (RecordData, error) {
	if _, err := s.access.Require(ctx, tableID, actorID, access.LevelEditor); err != nil {
		return RecordData{}, err
	}
	fields, err := s.tableFields(ctx, opCreate, tableID)
	if err != nil {
		return RecordData{}, err
	}

	now := s.clock().UTC()
	record := Record{TableID: tableID, OwnerID: actorID, CreatedAt: now, UpdatedAt: now}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return core.Internal(opCreate, "record_insert_failed", err)
		}
		return writeValues(tx, opCreate, record.ID, fields, values)
	})
	if txErr != nil {
		s.logError(opCreate, "transaction_failed", txErr, zap.Int64("table_id", tableID))
		return RecordData{}, txErr
	}

	data, err := s.materialize(ctx, opCreate, record, fields)
	if err != nil {
		return RecordData{}, err
	}
	s.publisher.Publish(EventRecordCreated, data, TableRoom(tableID))
	return data, nil
}

// Read returns the fully materialized record, formula fields included.
// Requires viewer access on the record's table.
func (s *Service) Read(ctx context.Context, recordID, actorID int64) (RecordData, error) {
	record, err := s.loadRecord(ctx, opRead, recordID)
	if err != nil {
		return RecordData{}, err
	}
	if err := s.requireReadable(ctx, opRead, record, actorID); err != nil {
		return RecordData{}, err
	}
	fields, err := s.tableFields(ctx, opRead, record.TableID)
	if err != nil {
		return RecordData{}, err
	}
	return s.materialize(ctx, opRead, record, fields)
}

// SortSpec orders the listing by one field's value.
type SortSpec struct {
	FieldID    int64
	Descending bool
}

// FilterSpec narrows the listing by one field: exact equality when Equals is
// set, substring match when Contains is set.
type FilterSpec struct {
	FieldID  int64
	Equals   *string
	Contains *string
}

// ListOptions paginate, sort, and filter a table listing.
type ListOptions struct {
	Skip   int
	Limit  int
	Sort   *SortSpec
	Filter *FilterSpec
}

// List returns the table's records decorated with computed formula values.
// Sort and filter operate on the referenced field's display value; paging is
// offset based. Requires viewer access.
func (s *Service) List(ctx context.Context, tableID, actorID int64, opts ListOptions) ([]RecordData, error) {
	level, err := s.access.Require(ctx, tableID, actorID, access.LevelViewer)
	if err != nil {
		return nil, err
	}
	fields, err := s.tableFields(ctx, opList, tableID)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Where("table_id = ?", tableID)
	if s.viewerScope == ViewerScopeOwn && level == access.LevelViewer {
		query = query.Where("owner_id = ?", actorID)
	}
	var recordRows []Record
	if err := query.Order("id").Find(&recordRows).Error; err != nil {
		s.logError(opList, "query_failed", err, zap.Int64("table_id", tableID))
		return nil, core.Internal(opList, "query_failed", err)
	}

	materialized := make([]RecordData, 0, len(recordRows))
	for _, record := range recordRows {
		data, err := s.materialize(ctx, opList, record, fields)
		if err != nil {
			return nil, err
		}
		materialized = append(materialized, data)
	}

	if opts.Filter != nil {
		materialized = applyFilter(materialized, fields, *opts.Filter)
	}
	if opts.Sort != nil {
		applySort(materialized, fields, *opts.Sort)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	skip := opts.Skip
	if skip < 0 {
		skip = 0
	}
	if skip >= len(materialized) {
		return []RecordData{}, nil
	}
	end := skip + limit
	if end > len(materialized) {
		end = len(materialized)
	}
	return materialized[skip:end], nil
}

// Update replaces the record's values wholesale: existing values are deleted
// and the supplied map is inserted, with link edges rebuilt to mirror the
// new link lists. The delete and reinsert commit as one transaction so
// readers never observe a partial state. Requires editor access.
func (s *Service) Update(ctx context.Context, recordID, actorID int64, values map[int64]any) (RecordData, error) {
	record, err := s.loadRecord(ctx, opUpdate, recordID)
	if err != nil {
		return RecordData{}, err
	}
	if _, err := s.access.Require(ctx, record.TableID, actorID, access.LevelEditor); err != nil {
		return RecordData{}, err
	}
	fields, err := s.tableFields(ctx, opUpdate, record.TableID)
	if err != nil {
		return RecordData{}, err
	}

	record.UpdatedAt = s.clock().UTC()
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("record_id = ?", recordID).Delete(&RecordValue{}).Error; err != nil {
			return core.Internal(opUpdate, "value_delete_failed", err)
		}
		if err := tx.Where("source_record_id = ?", recordID).Delete(&RecordLink{}).Error; err != nil {
			return core.Internal(opUpdate, "link_delete_failed", err)
		}
		if err := writeValues(tx, opUpdate, recordID, fields, values); err != nil {
			return err
		}
		if err := tx.Model(&Record{}).Where("id = ?", recordID).
			Update("updated_at", record.UpdatedAt).Error; err != nil {
			return core.Internal(opUpdate, "timestamp_update_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opUpdate, "transaction_failed", txErr, zap.Int64("record_id", recordID))
		return RecordData{}, txErr
	}

	data, err := s.materialize(ctx, opUpdate, record, fields)
	if err != nil {
		return RecordData{}, err
	}
	s.publisher.Publish(EventRecordUpdated, data, TableRoom(record.TableID))
	return data, nil
}

// Delete removes the record, its values, and the edges it sources. Edges
// pointing at the record from other tables stay, mirroring their source
// records' stored id lists. Requires editor access.
func (s *Service) Delete(ctx context.Context, recordID, actorID int64) error {
	record, err := s.loadRecord(ctx, opDelete, recordID)
	if err != nil {
		return err
	}
	if _, err := s.access.Require(ctx, record.TableID, actorID, access.LevelEditor); err != nil {
		return err
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("source_record_id = ?", recordID).Delete(&RecordLink{}).Error; err != nil {
			return err
		}
		if err := tx.Where("record_id = ?", recordID).Delete(&RecordValue{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Record{}, recordID).Error
	})
	if txErr != nil {
		s.logError(opDelete, "transaction_failed", txErr, zap.Int64("record_id", recordID))
		return core.Internal(opDelete, "transaction_failed", txErr)
	}

	s.publisher.Publish(EventRecordDeleted, map[string]int64{
		"record_id": recordID,
		"table_id":  record.TableID,
	}, TableRoom(record.TableID))
	return nil
}

// writeValues encodes and inserts the supplied field values for a record.
// Fields that do not belong to the table and formula fields are skipped
// silently; codec rejections abort the transaction.
func writeValues(tx *gorm.DB, operation string, recordID int64, fields map[int64]schema.Field, values map[int64]any) error {
	fieldIDs := make([]int64, 0, len(values))
	for fieldID := range values {
		fieldIDs = append(fieldIDs, fieldID)
	}
	sort.Slice(fieldIDs, func(i, j int) bool { return fieldIDs[i] < fieldIDs[j] })

	for _, fieldID := range fieldIDs {
		field, ok := fields[fieldID]
		if !ok || field.Type == schema.FieldTypeFormula {
			continue
		}
		variant, err := Encode(field.Type, values[fieldID])
		if err != nil {
			return core.Validation(operation, "codec_rejected", err)
		}
		value := RecordValue{RecordID: recordID, FieldID: fieldID}
		variant.apply(&value)
		if err := tx.Create(&value).Error; err != nil {
			return core.Internal(operation, "value_insert_failed", err)
		}
		if field.Type == schema.FieldTypeLinkToRecord {
			ids, err := linkedIDs(value)
			if err != nil {
				return core.Validation(operation, "linked_ids_invalid", err)
			}
			if err := replaceLinks(tx, recordID, fieldID, ids); err != nil {
				return core.Internal(operation, "link_replace_failed", err)
			}
		}
	}
	return nil
}

func (s *Service) loadRecord(ctx context.Context, operation string, recordID int64) (Record, error) {
	var record Record
	err := s.db.WithContext(ctx).Where("id = ?", recordID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, core.NotFound(operation, "record_missing", err)
	}
	if err != nil {
		s.logError(operation, "record_lookup_failed", err, zap.Int64("record_id", recordID))
		return Record{}, core.Internal(operation, "record_lookup_failed", err)
	}
	return record, nil
}

func (s *Service) requireReadable(ctx context.Context, operation string, record Record, actorID int64) error {
	level, err := s.access.Require(ctx, record.TableID, actorID, access.LevelViewer)
	if err != nil {
		return err
	}
	if s.viewerScope == ViewerScopeOwn && level == access.LevelViewer && record.OwnerID != actorID {
		return core.NotFound(operation, "record_missing",
			fmt.Errorf("records: record %d not visible to user %d", record.ID, actorID))
	}
	return nil
}

func (s *Service) tableFields(ctx context.Context, operation string, tableID int64) (map[int64]schema.Field, error) {
	var fieldRows []schema.Field
	if err := s.db.WithContext(ctx).Where("table_id = ?", tableID).Find(&fieldRows).Error; err != nil {
		s.logError(operation, "field_query_failed", err, zap.Int64("table_id", tableID))
		return nil, core.Internal(operation, "field_query_failed", err)
	}
	fields := make(map[int64]schema.Field, len(fieldRows))
	for _, field := range fieldRows {
		fields[field.ID] = field
	}
	return fields, nil
}

// materialize loads a record's stored values and appends computed formula
// values keyed by negated field ids. Formula failures surface as the value
// of the formula field, never as an aborted read.
func (s *Service) materialize(ctx context.Context, operation string, record Record, fields map[int64]schema.Field) (RecordData, error) {
	var stored []RecordValue
	if err := s.db.WithContext(ctx).
		Where("record_id = ?", record.ID).
		Order("field_id").
		Find(&stored).Error; err != nil {
		s.logError(operation, "value_query_failed", err, zap.Int64("record_id", record.ID))
		return RecordData{}, core.Internal(operation, "value_query_failed", err)
	}

	byField := make(map[int64]RecordValue, len(stored))
	for _, value := range stored {
		byField[value.FieldID] = value
	}

	data := RecordData{Record: record, Values: stored}
	operands := formulaOperands(byField, fields)

	formulaFieldIDs := make([]int64, 0)
	for id, field := range fields {
		if field.Type == schema.FieldTypeFormula {
			formulaFieldIDs = append(formulaFieldIDs, id)
		}
	}
	sort.Slice(formulaFieldIDs, func(i, j int) bool { return formulaFieldIDs[i] < formulaFieldIDs[j] })

	for _, fieldID := range formulaFieldIDs {
		field := fields[fieldID]
		opts, err := field.Options()
		if err != nil {
			return RecordData{}, core.Internal(operation, "field_options_corrupt", err)
		}
		synthetic := RecordValue{ID: -fieldID, RecordID: record.ID, FieldID: fieldID}
		result, evalErr := formula.Evaluate(opts.FormulaString, operands)
		if evalErr != nil {
			message := formula.Describe(evalErr)
			synthetic.ValueText = &message
		} else {
			synthetic.ValueNumber = &result
		}
		data.Values = append(data.Values, synthetic)
	}
	return data, nil
}

// formulaOperands resolves stored values into formula operands: numeric
// slots pass through as numbers, booleans become 0/1, everything else is
// stringified. Fields without a stored value are absent from the map, which
// makes referencing them a hard evaluation error.
func formulaOperands(values map[int64]RecordValue, fields map[int64]schema.Field) map[int64]formula.Operand {
	operands := make(map[int64]formula.Operand, len(values))
	for fieldID, value := range values {
		field, ok := fields[fieldID]
		if !ok {
			continue
		}
		switch field.Type {
		case schema.FieldTypeNumber, schema.FieldTypeCount:
			if value.ValueNumber != nil {
				operands[fieldID] = formula.NumberOperand(*value.ValueNumber)
			}
		case schema.FieldTypeBoolean:
			if value.ValueBoolean != nil {
				number := 0.0
				if *value.ValueBoolean {
					number = 1.0
				}
				operands[fieldID] = formula.NumberOperand(number)
			}
		default:
			if text := displayString(field.Type, value); text != "" {
				operands[fieldID] = formula.TextOperand(text)
			}
		}
	}
	return operands
}

// displayString renders a stored value for filtering, sorting, and text
// operands.
func displayString(fieldType schema.FieldType, value RecordValue) string {
	decoded, err := Decode(fieldType, value)
	if err != nil || decoded == nil {
		return ""
	}
	switch v := decoded.(type) {
	case string:
		return v
	case float64:
		return stringify(v)
	case bool:
		return stringify(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	default:
		return stringify(v)
	}
}

func applyFilter(data []RecordData, fields map[int64]schema.Field, filter FilterSpec) []RecordData {
	field, ok := fields[filter.FieldID]
	if !ok {
		return data
	}
	kept := make([]RecordData, 0, len(data))
	for _, item := range data {
		display := ""
		for _, value := range item.Values {
			if value.FieldID == filter.FieldID {
				display = displayString(field.Type, value)
				break
			}
		}
		switch {
		case filter.Equals != nil:
			if display == *filter.Equals {
				kept = append(kept, item)
			}
		case filter.Contains != nil:
			if strings.Contains(display, *filter.Contains) {
				kept = append(kept, item)
			}
		default:
			kept = append(kept, item)
		}
	}
	return kept
}

func applySort(data []RecordData, fields map[int64]schema.Field, spec SortSpec) {
	field, ok := fields[spec.FieldID]
	if !ok {
		return
	}
	key := func(item RecordData) (float64, string, bool) {
		for _, value := range item.Values {
			if value.FieldID != spec.FieldID {
				continue
			}
			if value.ValueNumber != nil {
				return *value.ValueNumber, "", true
			}
			return 0, displayString(field.Type, value), false
		}
		return 0, "", false
	}
	sort.SliceStable(data, func(i, j int) bool {
		leftNumber, leftText, leftNumeric := key(data[i])
		rightNumber, rightText, rightNumeric := key(data[j])
		var less bool
		if leftNumeric && rightNumeric {
			less = leftNumber < rightNumber
		} else {
			less = leftText < rightText
		}
		if spec.Descending {
			return !less
		}
		return less
	})
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
	s.logger.Error("records service error", attrs...)
}
