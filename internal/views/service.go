package views

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gridstonehq/gridstone/backend/internal/access"
	"github.com/gridstonehq/gridstone/backend/internal/core"
	"github.com/gridstonehq/gridstone/backend/internal/schema"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingAccess   = errors.New("access service is required")
	errMissingName     = errors.New("view name is required")
	noOpLogger         = zap.NewNop()
)

const (
	opServiceNew = "views.service.new"
	opCreate     = "views.create"
	opListViews  = "views.list"
	opGet        = "views.get"
	opUpdate     = "views.update"
	opDelete     = "views.delete"
)

// ServiceConfig describes the dependencies for the view service.
type ServiceConfig struct {
	Database *gorm.DB
	Access   *access.Service
	Logger   *zap.Logger
}

// Service owns view lifecycle. Every persisted config has passed validation
// against the table's field set for its type.
type Service struct {
	db     *gorm.DB
	access *access.Service
	logger *zap.Logger
}

// NewService constructs the view service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, core.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Access == nil {
		return nil, core.Internal(opServiceNew, "missing_access", errMissingAccess)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, access: cfg.Access, logger: logger}, nil
}

// Create validates the config against the table's fields and persists the
// view. Requires editor access.
func (s *Service) Create(ctx context.Context, tableID, actorID int64, name string, viewType ViewType, config map[string]any) (View, error) {
	if strings.TrimSpace(name) == "" {
		return View{}, core.Validation(opCreate, "missing_name", errMissingName)
	}
	if _, err := ParseViewType(string(viewType)); err != nil {
		return View{}, core.Validation(opCreate, "unknown_type", err)
	}
	if _, err := s.access.Require(ctx, tableID, actorID, access.LevelEditor); err != nil {
		return View{}, err
	}
	fields, err := s.tableFields(ctx, opCreate, tableID)
	if err != nil {
		return View{}, err
	}
	if config == nil {
		config = map[string]any{}
	}
	if err := ValidateConfig(viewType, config, fields); err != nil {
		return View{}, core.Validation(opCreate, "invalid_config", err)
	}

	encoded, err := json.Marshal(config)
	if err != nil {
		return View{}, core.Internal(opCreate, "encode_config_failed", err)
	}
	view := View{
		TableID:    tableID,
		OwnerID:    actorID,
		Name:       strings.TrimSpace(name),
		Type:       viewType,
		ConfigJSON: string(encoded),
	}
	if err := s.db.WithContext(ctx).Create(&view).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.Int64("table_id", tableID))
		return View{}, core.Internal(opCreate, "insert_failed", err)
	}
	return view, nil
}

// List returns a table's views. Requires viewer access.
func (s *Service) List(ctx context.Context, tableID, actorID int64) ([]View, error) {
	if _, err := s.access.Require(ctx, tableID, actorID, access.LevelViewer); err != nil {
		return nil, err
	}
	var viewRows []View
	if err := s.db.WithContext(ctx).
		Where("table_id = ?", tableID).
		Order("id").
		Find(&viewRows).Error; err != nil {
		s.logError(opListViews, "query_failed", err, zap.Int64("table_id", tableID))
		return nil, core.Internal(opListViews, "query_failed", err)
	}
	return viewRows, nil
}

// Get returns one view. Requires viewer access on its table.
func (s *Service) Get(ctx context.Context, viewID, actorID int64) (View, error) {
	view, err := s.loadView(ctx, opGet, viewID)
	if err != nil {
		return View{}, err
	}
	if _, err := s.access.Require(ctx, view.TableID, actorID, access.LevelViewer); err != nil {
		return View{}, err
	}
	return view, nil
}

// UpdateRequest carries a partial view update. A nil Config leaves the
// stored config untouched; a non-nil Config is merged key-by-key onto it.
type UpdateRequest struct {
	Name   *string
	Type   *ViewType
	Config map[string]any
}

// Update applies a partial update: the supplied config fragment is merged
// onto the stored config and the merged result is re-validated against the
// view's (possibly updated) type. Requires editor access.
func (s *Service) Update(ctx context.Context, viewID, actorID int64, request UpdateRequest) (View, error) {
	view, err := s.loadView(ctx, opUpdate, viewID)
	if err != nil {
		return View{}, err
	}
	if _, err := s.access.Require(ctx, view.TableID, actorID, access.LevelEditor); err != nil {
		return View{}, err
	}

	if request.Name != nil {
		if strings.TrimSpace(*request.Name) == "" {
			return View{}, core.Validation(opUpdate, "missing_name", errMissingName)
		}
		view.Name = strings.TrimSpace(*request.Name)
	}
	if request.Type != nil {
		if _, err := ParseViewType(string(*request.Type)); err != nil {
			return View{}, core.Validation(opUpdate, "unknown_type", err)
		}
		view.Type = *request.Type
	}

	merged, err := decodeConfig(view.ConfigJSON)
	if err != nil {
		return View{}, core.Internal(opUpdate, "stored_config_corrupt", err)
	}
	for key, value := range request.Config {
		merged[key] = value
	}

	fields, err := s.tableFields(ctx, opUpdate, view.TableID)
	if err != nil {
		return View{}, err
	}
	if err := ValidateConfig(view.Type, merged, fields); err != nil {
		return View{}, core.Validation(opUpdate, "invalid_config", err)
	}

	encoded, err := json.Marshal(merged)
	if err != nil {
		return View{}, core.Internal(opUpdate, "encode_config_failed", err)
	}
	view.ConfigJSON = string(encoded)

	if err := s.db.WithContext(ctx).Save(&view).Error; err != nil {
		s.logError(opUpdate, "update_failed", err, zap.Int64("view_id", viewID))
		return View{}, core.Internal(opUpdate, "update_failed", err)
	}
	return view, nil
}

// Delete removes a view. Requires editor access on its table.
func (s *Service) Delete(ctx context.Context, viewID, actorID int64) error {
	view, err := s.loadView(ctx, opDelete, viewID)
	if err != nil {
		return err
	}
	if _, err := s.access.Require(ctx, view.TableID, actorID, access.LevelEditor); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&View{}, viewID).Error; err != nil {
		s.logError(opDelete, "delete_failed", err, zap.Int64("view_id", viewID))
		return core.Internal(opDelete, "delete_failed", err)
	}
	return nil
}

// Config decodes the stored config blob of a view.
func (v View) Config() (map[string]any, error) {
	return decodeConfig(v.ConfigJSON)
}

func decodeConfig(blob string) (map[string]any, error) {
	if strings.TrimSpace(blob) == "" {
		return map[string]any{}, nil
	}
	var config map[string]any
	if err := json.Unmarshal([]byte(blob), &config); err != nil {
		return nil, err
	}
	if config == nil {
		config = map[string]any{}
	}
	return config, nil
}

func (s *Service) loadView(ctx context.Context, operation string, viewID int64) (View, error) {
	var view View
	err := s.db.WithContext(ctx).Where("id = ?", viewID).Take(&view).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return View{}, core.NotFound(operation, "view_missing", err)
	}
	if err != nil {
		s.logError(operation, "view_lookup_failed", err, zap.Int64("view_id", viewID))
		return View{}, core.Internal(operation, "view_lookup_failed", err)
	}
	return view, nil
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

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("views service error", attrs...)
}
