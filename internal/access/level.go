package access

import (
	"fmt"
	"strings"
)

// Level is a table permission grade. The zero value means no access.
type Level int

const (
	LevelNone Level = iota
	LevelViewer
	LevelEditor
	LevelAdmin
)

// ParseLevel maps a stored or user-supplied level name.
func ParseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "viewer":
		return LevelViewer, nil
	case "editor":
		return LevelEditor, nil
	case "admin":
		return LevelAdmin, nil
	default:
		return LevelNone, fmt.Errorf("access: unknown permission level %q", raw)
	}
}

func (l Level) String() string {
	switch l {
	case LevelViewer:
		return "viewer"
	case LevelEditor:
		return "editor"
	case LevelAdmin:
		return "admin"
	default:
		return "none"
	}
}

// AtLeast reports whether l satisfies the required minimum under the total
// order admin > editor > viewer > none.
func (l Level) AtLeast(minimum Level) bool {
	return l >= minimum
}

// TablePermission grants one level to a (table, user) pair.
type TablePermission struct {
	ID      int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TableID int64  `gorm:"column:table_id;not null;index:idx_permissions_table_user,unique,priority:1" json:"table_id"`
	UserID  int64  `gorm:"column:user_id;not null;index:idx_permissions_table_user,unique,priority:2" json:"user_id"`
	Grade   string `gorm:"column:permission_level;size:32;not null" json:"permission_level"`
}

// TableName provides the explicit table binding for GORM.
func (TablePermission) TableName() string {
	return "table_permissions"
}
