package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/gridstonehq/gridstone/backend/internal/core"
	"github.com/gridstonehq/gridstone/backend/internal/schema"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase    = errors.New("database handle is required")
	errInsufficientLevel  = errors.New("permission level insufficient")
	errOwnerSelfGrant     = errors.New("base owner access cannot be granted or revoked")
	errGrantRequiresAdmin = errors.New("granting permissions requires admin access")
	noOpLogger            = zap.NewNop()
)

const (
	opServiceNew = "access.service.new"
	opResolve    = "access.resolve"
	opRequire    = "access.require"
	opGrant      = "access.grant"
	opRevoke     = "access.revoke"
	opList       = "access.list"
)

// ServiceConfig describes the dependencies for permission resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service resolves and administers per-table permission levels.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService constructs the permission service.
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

// Resolve returns the user's level for the table. Owning the base that
// contains the table grants admin unconditionally; otherwise the explicit
// permission row decides; absent both, the level is none.
func (s *Service) Resolve(ctx context.Context, tableID, userID int64) (Level, error) {
	owner, err := s.baseOwner(ctx, tableID)
	if err != nil {
		return LevelNone, err
	}
	if owner == userID {
		return LevelAdmin, nil
	}

	var permission TablePermission
	err = s.db.WithContext(ctx).
		Where("table_id = ? AND user_id = ?", tableID, userID).
		Take(&permission).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return LevelNone, nil
	}
	if err != nil {
		s.logError(opResolve, "permission_lookup_failed", err, zap.Int64("table_id", tableID))
		return LevelNone, core.Internal(opResolve, "permission_lookup_failed", err)
	}

	level, err := ParseLevel(permission.Grade)
	if err != nil {
		s.logError(opResolve, "corrupt_level", err, zap.Int64("table_id", tableID))
		return LevelNone, core.Internal(opResolve, "corrupt_level", err)
	}
	return level, nil
}

// Require fails with a forbidden error unless the user's resolved level
// satisfies the minimum.
func (s *Service) Require(ctx context.Context, tableID, userID int64, minimum Level) (Level, error) {
	level, err := s.Resolve(ctx, tableID, userID)
	if err != nil {
		return LevelNone, err
	}
	if !level.AtLeast(minimum) {
		return LevelNone, core.Forbidden(opRequire, "insufficient_level",
			fmt.Errorf("%w: have %s, need %s", errInsufficientLevel, level, minimum))
	}
	return level, nil
}

// Grant upserts a permission row for the target user. The actor must resolve
// to admin; the base owner's own access is implicit and cannot be granted.
func (s *Service) Grant(ctx context.Context, tableID, actorID, targetUserID int64, level Level) (TablePermission, error) {
	if level == LevelNone {
		return TablePermission{}, core.Validation(opGrant, "invalid_level",
			fmt.Errorf("access: cannot grant level %s", level))
	}
	if _, err := s.Require(ctx, tableID, actorID, LevelAdmin); err != nil {
		if core.IsForbidden(err) {
			return TablePermission{}, core.Forbidden(opGrant, "actor_not_admin", errGrantRequiresAdmin)
		}
		return TablePermission{}, err
	}
	owner, err := s.baseOwner(ctx, tableID)
	if err != nil {
		return TablePermission{}, err
	}
	if targetUserID == owner {
		return TablePermission{}, core.Validation(opGrant, "owner_grant", errOwnerSelfGrant)
	}

	permission := TablePermission{TableID: tableID, UserID: targetUserID, Grade: level.String()}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "table_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"permission_level"}),
		}).
		Create(&permission).Error
	if err != nil {
		s.logError(opGrant, "upsert_failed", err,
			zap.Int64("table_id", tableID), zap.Int64("target_user_id", targetUserID))
		return TablePermission{}, core.Internal(opGrant, "upsert_failed", err)
	}
	return permission, nil
}

// Revoke deletes the target user's permission row. Revoking an absent grant
// is a not-found failure; the base owner's access cannot be revoked.
func (s *Service) Revoke(ctx context.Context, tableID, actorID, targetUserID int64) error {
	if _, err := s.Require(ctx, tableID, actorID, LevelAdmin); err != nil {
		if core.IsForbidden(err) {
			return core.Forbidden(opRevoke, "actor_not_admin", errGrantRequiresAdmin)
		}
		return err
	}
	owner, err := s.baseOwner(ctx, tableID)
	if err != nil {
		return err
	}
	if targetUserID == owner {
		return core.Validation(opRevoke, "owner_revoke", errOwnerSelfGrant)
	}

	result := s.db.WithContext(ctx).
		Where("table_id = ? AND user_id = ?", tableID, targetUserID).
		Delete(&TablePermission{})
	if result.Error != nil {
		s.logError(opRevoke, "delete_failed", result.Error, zap.Int64("table_id", tableID))
		return core.Internal(opRevoke, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return core.NotFound(opRevoke, "grant_missing",
			fmt.Errorf("access: no grant for user %d on table %d", targetUserID, tableID))
	}
	return nil
}

// List returns the explicit permission rows for a table, admin only.
func (s *Service) List(ctx context.Context, tableID, actorID int64) ([]TablePermission, error) {
	if _, err := s.Require(ctx, tableID, actorID, LevelAdmin); err != nil {
		return nil, err
	}
	var permissions []TablePermission
	if err := s.db.WithContext(ctx).
		Where("table_id = ?", tableID).
		Order("user_id").
		Find(&permissions).Error; err != nil {
		s.logError(opList, "query_failed", err, zap.Int64("table_id", tableID))
		return nil, core.Internal(opList, "query_failed", err)
	}
	return permissions, nil
}

// baseOwner walks table -> base -> owner; a missing table is not found.
func (s *Service) baseOwner(ctx context.Context, tableID int64) (int64, error) {
	var table schema.Table
	err := s.db.WithContext(ctx).Where("id = ?", tableID).Take(&table).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, core.NotFound(opResolve, "table_missing", err)
	}
	if err != nil {
		s.logError(opResolve, "table_lookup_failed", err, zap.Int64("table_id", tableID))
		return 0, core.Internal(opResolve, "table_lookup_failed", err)
	}

	var base schema.Base
	err = s.db.WithContext(ctx).Where("id = ?", table.BaseID).Take(&base).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, core.NotFound(opResolve, "base_missing", err)
	}
	if err != nil {
		s.logError(opResolve, "base_lookup_failed", err, zap.Int64("base_id", table.BaseID))
		return 0, core.Internal(opResolve, "base_lookup_failed", err)
	}
	return base.OwnerID, nil
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
	s.logger.Error("access service error", attrs...)
}
