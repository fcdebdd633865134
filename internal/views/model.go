package views

import (
	"fmt"
	"strings"
)

// ViewType enumerates the presentation types a table view can take.
type ViewType string

const (
	ViewTypeGrid     ViewType = "grid"
	ViewTypeForm     ViewType = "form"
	ViewTypeKanban   ViewType = "kanban"
	ViewTypeCalendar ViewType = "calendar"
	ViewTypeGallery  ViewType = "gallery"
)

// ParseViewType validates raw input against the closed view type set.
func ParseViewType(raw string) (ViewType, error) {
	switch ViewType(strings.TrimSpace(raw)) {
	case ViewTypeGrid:
		return ViewTypeGrid, nil
	case ViewTypeForm:
		return ViewTypeForm, nil
	case ViewTypeKanban:
		return ViewTypeKanban, nil
	case ViewTypeCalendar:
		return ViewTypeCalendar, nil
	case ViewTypeGallery:
		return ViewTypeGallery, nil
	default:
		return "", fmt.Errorf("views: unknown view type %q", raw)
	}
}

// View is a named, typed presentation configuration over a table. The config
// blob's required shape depends on the type.
type View struct {
	ID         int64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TableID    int64    `gorm:"column:table_id;not null;index" json:"table_id"`
	OwnerID    int64    `gorm:"column:owner_id;not null;index" json:"owner_id"`
	Name       string   `gorm:"column:name;not null" json:"name"`
	Type       ViewType `gorm:"column:type;size:32;not null" json:"type"`
	ConfigJSON string   `gorm:"column:config_json;type:text;not null;default:''" json:"config_json"`
}

// TableName provides the explicit table binding for GORM.
func (View) TableName() string {
	return "views"
}
