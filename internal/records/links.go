package records

import (
	"context"

	"github.com/gridstonehq/gridstone/backend/internal/access"
	"github.com/gridstonehq/gridstone/backend/internal/core"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// replaceLinks rebuilds the edge set for one (source record, source field)
// pair so it mirrors the id list just written to that field's value. Runs
// inside the caller's transaction.
func replaceLinks(tx *gorm.DB, sourceRecordID, sourceFieldID int64, linkedIDs []int64) error {
	if err := tx.
		Where("source_record_id = ? AND source_field_id = ?", sourceRecordID, sourceFieldID).
		Delete(&RecordLink{}).Error; err != nil {
		return err
	}
	for _, linkedID := range linkedIDs {
		edge := RecordLink{
			SourceRecordID: sourceRecordID,
			SourceFieldID:  sourceFieldID,
			LinkedRecordID: linkedID,
		}
		if err := tx.Create(&edge).Error; err != nil {
			return err
		}
	}
	return nil
}

// Backlinks returns the edges pointing at a record, the reverse "linked by"
// lookup. Requires viewer access on the record's table.
func (s *Service) Backlinks(ctx context.Context, recordID, actorID int64) ([]RecordLink, error) {
	record, err := s.loadRecord(ctx, opBacklinks, recordID)
	if err != nil {
		return nil, err
	}
	if _, err := s.access.Require(ctx, record.TableID, actorID, access.LevelViewer); err != nil {
		return nil, err
	}

	var edges []RecordLink
	if err := s.db.WithContext(ctx).
		Where("linked_record_id = ?", recordID).
		Order("id").
		Find(&edges).Error; err != nil {
		s.logError(opBacklinks, "query_failed", err, zap.Int64("record_id", recordID))
		return nil, core.Internal(opBacklinks, "query_failed", err)
	}
	return edges, nil
}

// Links returns the edges a record sources, ordered by field then target.
func (s *Service) Links(ctx context.Context, recordID, actorID int64) ([]RecordLink, error) {
	record, err := s.loadRecord(ctx, opBacklinks, recordID)
	if err != nil {
		return nil, err
	}
	if _, err := s.access.Require(ctx, record.TableID, actorID, access.LevelViewer); err != nil {
		return nil, err
	}

	var edges []RecordLink
	if err := s.db.WithContext(ctx).
		Where("source_record_id = ?", recordID).
		Order("source_field_id, linked_record_id").
		Find(&edges).Error; err != nil {
		s.logError(opBacklinks, "query_failed", err, zap.Int64("record_id", recordID))
		return nil, core.Internal(opBacklinks, "query_failed", err)
	}
	return edges, nil
}
