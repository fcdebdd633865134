package access

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gridstonehq/gridstone/backend/internal/core"
	"github.com/gridstonehq/gridstone/backend/internal/schema"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const (
	ownerID    = int64(1)
	granteeID  = int64(2)
	strangerID = int64(3)
)

func newTestService(t *testing.T) (*Service, schema.Table) {
	t.Helper()
	dsn := fmt.Sprintf("file:access_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access database: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&schema.Base{}, &schema.Table{}, &TablePermission{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	base := schema.Base{OwnerID: ownerID, Name: "Projects"}
	if err := db.Create(&base).Error; err != nil {
		t.Fatalf("failed to seed base: %v", err)
	}
	table := schema.Table{BaseID: base.ID, OwnerID: ownerID, Name: "Tasks"}
	if err := db.Create(&table).Error; err != nil {
		t.Fatalf("failed to seed table: %v", err)
	}

	service, err := NewService(ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service, table
}

func TestLevelOrdering(t *testing.T) {
	if !LevelAdmin.AtLeast(LevelEditor) || !LevelEditor.AtLeast(LevelViewer) || !LevelViewer.AtLeast(LevelNone) {
		t.Fatalf("level ordering broken")
	}
	if LevelViewer.AtLeast(LevelEditor) {
		t.Fatalf("viewer must not satisfy editor")
	}
}

func TestParseLevelRoundTrip(t *testing.T) {
	for _, level := range []Level{LevelViewer, LevelEditor, LevelAdmin} {
		parsed, err := ParseLevel(level.String())
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", level, err)
		}
		if parsed != level {
			t.Fatalf("expected %v, got %v", level, parsed)
		}
	}
	if _, err := ParseLevel("none"); err == nil {
		t.Fatalf("expected error parsing none")
	}
}

func TestResolveBaseOwnerIsAlwaysAdmin(t *testing.T) {
	service, table := newTestService(t)

	level, err := service.Resolve(context.Background(), table.ID, ownerID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if level != LevelAdmin {
		t.Fatalf("expected admin for base owner, got %v", level)
	}
}

func TestResolveUnknownUserHasNoAccess(t *testing.T) {
	service, table := newTestService(t)

	level, err := service.Resolve(context.Background(), table.ID, strangerID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if level != LevelNone {
		t.Fatalf("expected none, got %v", level)
	}
}

func TestResolveMissingTableIsNotFound(t *testing.T) {
	service, _ := newTestService(t)

	if _, err := service.Resolve(context.Background(), 999, ownerID); !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGrantThenResolve(t *testing.T) {
	service, table := newTestService(t)
	ctx := context.Background()

	permission, err := service.Grant(ctx, table.ID, ownerID, granteeID, LevelEditor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if permission.Grade != "editor" {
		t.Fatalf("unexpected stored grade: %s", permission.Grade)
	}

	level, err := service.Resolve(ctx, table.ID, granteeID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if level != LevelEditor {
		t.Fatalf("expected editor, got %v", level)
	}
}

func TestGrantUpsertsExistingRow(t *testing.T) {
	service, table := newTestService(t)
	ctx := context.Background()

	if _, err := service.Grant(ctx, table.ID, ownerID, granteeID, LevelViewer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.Grant(ctx, table.ID, ownerID, granteeID, LevelAdmin); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := service.List(ctx, table.ID, ownerID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Grade != "admin" {
		t.Fatalf("expected a single upgraded row, got %+v", rows)
	}
}

func TestGrantRequiresAdminActor(t *testing.T) {
	service, table := newTestService(t)
	ctx := context.Background()

	if _, err := service.Grant(ctx, table.ID, ownerID, granteeID, LevelEditor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// An editor cannot grant.
	if _, err := service.Grant(ctx, table.ID, granteeID, strangerID, LevelViewer); !core.IsForbidden(err) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	// A granted admin can.
	if _, err := service.Grant(ctx, table.ID, ownerID, granteeID, LevelAdmin); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.Grant(ctx, table.ID, granteeID, strangerID, LevelViewer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGrantToOwnerIsRejected(t *testing.T) {
	service, table := newTestService(t)

	if _, err := service.Grant(context.Background(), table.ID, ownerID, ownerID, LevelViewer); !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGrantLevelNoneIsRejected(t *testing.T) {
	service, table := newTestService(t)

	if _, err := service.Grant(context.Background(), table.ID, ownerID, granteeID, LevelNone); !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRevokeRemovesAccess(t *testing.T) {
	service, table := newTestService(t)
	ctx := context.Background()

	if _, err := service.Grant(ctx, table.ID, ownerID, granteeID, LevelViewer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := service.Revoke(ctx, table.ID, ownerID, granteeID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	level, err := service.Resolve(ctx, table.ID, granteeID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if level != LevelNone {
		t.Fatalf("expected none after revoke, got %v", level)
	}
}

func TestRevokeMissingGrantIsNotFound(t *testing.T) {
	service, table := newTestService(t)

	if err := service.Revoke(context.Background(), table.ID, ownerID, granteeID); !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRevokeOwnerIsRejected(t *testing.T) {
	service, table := newTestService(t)

	if err := service.Revoke(context.Background(), table.ID, ownerID, ownerID); !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRequireEnforcesMinimum(t *testing.T) {
	service, table := newTestService(t)
	ctx := context.Background()

	if _, err := service.Grant(ctx, table.ID, ownerID, granteeID, LevelViewer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.Require(ctx, table.ID, granteeID, LevelViewer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.Require(ctx, table.ID, granteeID, LevelEditor); !core.IsForbidden(err) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestListRequiresAdmin(t *testing.T) {
	service, table := newTestService(t)
	ctx := context.Background()

	if _, err := service.Grant(ctx, table.ID, ownerID, granteeID, LevelViewer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.List(ctx, table.ID, granteeID); !core.IsForbidden(err) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
