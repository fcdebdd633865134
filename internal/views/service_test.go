package views

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gridstonehq/gridstone/backend/internal/access"
	"github.com/gridstonehq/gridstone/backend/internal/core"
	"github.com/gridstonehq/gridstone/backend/internal/schema"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const (
	ownerID  = int64(1)
	viewerID = int64(2)
)

type fixture struct {
	service *Service
	table   schema.Table
	status  schema.Field
	due     schema.Field
	title   schema.Field
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:views_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

	if err := db.AutoMigrate(&schema.Base{}, &schema.Table{}, &schema.Field{}, &View{}, &access.TablePermission{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	schemaService, err := schema.NewService(schema.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build schema service: %v", err)
	}
	accessService, err := access.NewService(access.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build access service: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db, Access: accessService})
	if err != nil {
		t.Fatalf("failed to build views service: %v", err)
	}

	ctx := context.Background()
	base, err := schemaService.CreateBase(ctx, ownerID, "Projects")
	if err != nil {
		t.Fatalf("failed to seed base: %v", err)
	}
	table, err := schemaService.CreateTable(ctx, base.ID, ownerID, "Tasks")
	if err != nil {
		t.Fatalf("failed to seed table: %v", err)
	}
	if _, err := accessService.Grant(ctx, table.ID, ownerID, viewerID, access.LevelViewer); err != nil {
		t.Fatalf("failed to grant viewer: %v", err)
	}

	title, err := schemaService.CreateField(ctx, table.ID, ownerID, "Title", schema.FieldTypeText, schema.FieldOptions{})
	if err != nil {
		t.Fatalf("failed to seed field: %v", err)
	}
	status, err := schemaService.CreateField(ctx, table.ID, ownerID, "Status", schema.FieldTypeSingleSelect,
		schema.FieldOptions{Choices: []string{"todo", "done"}})
	if err != nil {
		t.Fatalf("failed to seed field: %v", err)
	}
	due, err := schemaService.CreateField(ctx, table.ID, ownerID, "Due", schema.FieldTypeDate, schema.FieldOptions{})
	if err != nil {
		t.Fatalf("failed to seed field: %v", err)
	}

	return &fixture{service: service, table: table, status: status, due: due, title: title}
}

func TestCreateGridView(t *testing.T) {
	f := newFixture(t)

	view, err := f.service.Create(context.Background(), f.table.ID, ownerID, "All tasks", ViewTypeGrid, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Type != ViewTypeGrid || view.Name != "All tasks" {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestCreateValidatesConfigAgainstFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, f.table.ID, ownerID, "Board", ViewTypeKanban, map[string]any{
		"stack_by_field_id": float64(f.due.ID),
	})
	if !core.IsValidation(err) {
		t.Fatalf("expected validation error for date stack field, got %v", err)
	}

	view, err := f.service.Create(ctx, f.table.ID, ownerID, "Board", ViewTypeKanban, map[string]any{
		"stack_by_field_id": float64(f.status.ID),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	config, err := view.Config()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config["stack_by_field_id"] != float64(f.status.ID) {
		t.Fatalf("unexpected stored config: %v", config)
	}
}

func TestCreateRejectsUnknownType(t *testing.T) {
	f := newFixture(t)
	if _, err := f.service.Create(context.Background(), f.table.ID, ownerID, "X", "timeline", nil); !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateRequiresEditor(t *testing.T) {
	f := newFixture(t)
	if _, err := f.service.Create(context.Background(), f.table.ID, viewerID, "X", ViewTypeGrid, nil); !core.IsForbidden(err) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestUpdateMergesConfigFragment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.service.Create(ctx, f.table.ID, ownerID, "Board", ViewTypeKanban, map[string]any{
		"stack_by_field_id": float64(f.status.ID),
		"card_fields":       []any{float64(f.title.ID)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The fragment touches one key; the stack field must survive the merge.
	updated, err := f.service.Update(ctx, view.ID, ownerID, UpdateRequest{
		Config: map[string]any{"card_fields": []any{float64(f.title.ID), float64(f.status.ID)}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	config, err := updated.Config()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config["stack_by_field_id"] != float64(f.status.ID) {
		t.Fatalf("merge dropped the stack field: %v", config)
	}
	cards, ok := config["card_fields"].([]any)
	if !ok || len(cards) != 2 {
		t.Fatalf("unexpected card fields after merge: %v", config["card_fields"])
	}
}

func TestUpdateRevalidatesAgainstNewType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.service.Create(ctx, f.table.ID, ownerID, "Grid", ViewTypeGrid, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Switching to kanban without a stack field must fail validation.
	kanban := ViewTypeKanban
	if _, err := f.service.Update(ctx, view.ID, ownerID, UpdateRequest{Type: &kanban}); !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	// Supplying the stack field in the same update succeeds.
	updated, err := f.service.Update(ctx, view.ID, ownerID, UpdateRequest{
		Type:   &kanban,
		Config: map[string]any{"stack_by_field_id": float64(f.status.ID)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Type != ViewTypeKanban {
		t.Fatalf("unexpected type: %s", updated.Type)
	}
}

func TestUpdateRename(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, _ := f.service.Create(ctx, f.table.ID, ownerID, "Grid", ViewTypeGrid, nil)
	name := "Everything"
	updated, err := f.service.Update(ctx, view.ID, ownerID, UpdateRequest{Name: &name})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Name != "Everything" {
		t.Fatalf("unexpected name: %s", updated.Name)
	}
}

func TestListAndGetRequireViewer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, _ := f.service.Create(ctx, f.table.ID, ownerID, "Grid", ViewTypeGrid, nil)

	listed, err := f.service.List(ctx, f.table.ID, viewerID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected one view, got %d", len(listed))
	}
	if _, err := f.service.Get(ctx, view.ID, viewerID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.service.Get(ctx, view.ID, int64(99)); !core.IsForbidden(err) {
		t.Fatalf("expected forbidden for stranger, got %v", err)
	}
}

func TestDeleteView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, _ := f.service.Create(ctx, f.table.ID, ownerID, "Grid", ViewTypeGrid, nil)
	if err := f.service.Delete(ctx, view.ID, viewerID); !core.IsForbidden(err) {
		t.Fatalf("expected forbidden for viewer, got %v", err)
	}
	if err := f.service.Delete(ctx, view.ID, ownerID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.service.Get(ctx, view.ID, ownerID); !core.IsNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
