package store

import (
	"context"
	"fmt"
	"log"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type reminderRow struct {
	Ref         int64  `gorm:"primaryKey;autoIncrement;column:ref"`
	RecordID    string `gorm:"column:record_id;uniqueIndex;not null"`
	Message     string `gorm:"column:message;type:text;not null"`
	ScheduledAt string `gorm:"column:scheduled_at;not null;default:''"`
	RecipientID string `gorm:"column:recipient_id;index;not null"`
	Status      string `gorm:"column:status;not null"`
	CreatedAt   string `gorm:"column:created_at;not null"`
}

func (reminderRow) TableName() string { return "reminders" }

// dbColumns maps header field names onto table columns, the database-side
// equivalent of the sheet's header row.
var dbColumns = map[string]string{
	ColID:          "record_id",
	ColMessage:     "message",
	ColScheduledAt: "scheduled_at",
	ColRecipientID: "recipient_id",
	ColStatus:      "status",
	ColCreatedAt:   "created_at",
}

// DatabaseStore implements the same row-store contract over GORM. It is used
// when no spreadsheet is configured.
type DatabaseStore struct {
	db *gorm.DB
}

var _ RowStore = (*DatabaseStore)(nil)

// NewDatabase creates a GORM-backed store.
// When databaseURL is provided PostgreSQL is used, otherwise SQLite is used.
func NewDatabase(databaseURL string) (*DatabaseStore, error) {
	var (
		db  *gorm.DB
		err error
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	if databaseURL != "" {
		db, err = gorm.Open(postgres.Open(databaseURL), gormConfig)
	} else {
		db, err = gorm.Open(sqlite.Open("reminders.db"), gormConfig)
	}
	if err != nil {
		return nil, err
	}

	logBackend(db)
	return NewDatabaseWithDB(db)
}

// NewDatabaseWithDB wraps an already opened connection.
func NewDatabaseWithDB(db *gorm.DB) (*DatabaseStore, error) {
	if err := db.AutoMigrate(&reminderRow{}); err != nil {
		return nil, err
	}
	return &DatabaseStore{db: db}, nil
}

func (s *DatabaseStore) Append(ctx context.Context, rec Record) error {
	row := reminderRow{
		RecordID:    rec.ID,
		Message:     rec.Message,
		ScheduledAt: rec.ScheduledAt,
		RecipientID: rec.RecipientID,
		Status:      rec.Status,
		CreatedAt:   rec.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("database append: %w", err)
	}
	return nil
}

func (s *DatabaseStore) ScanAll(ctx context.Context) (Snapshot, error) {
	var rows []reminderRow
	if err := s.db.WithContext(ctx).Order("ref asc").Find(&rows).Error; err != nil {
		return Snapshot{}, fmt.Errorf("database scan: %w", err)
	}

	snap := Snapshot{Columns: append([]string(nil), Columns...)}
	for _, row := range rows {
		snap.Rows = append(snap.Rows, Row{
			Ref: RowRef(row.Ref),
			Fields: map[string]string{
				ColID:          row.RecordID,
				ColMessage:     row.Message,
				ColScheduledAt: row.ScheduledAt,
				ColRecipientID: row.RecipientID,
				ColStatus:      row.Status,
				ColCreatedAt:   row.CreatedAt,
			},
		})
	}
	return snap, nil
}

func (s *DatabaseStore) UpdateCell(ctx context.Context, ref RowRef, field, value string) error {
	column, ok := dbColumns[field]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	res := s.db.WithContext(ctx).Model(&reminderRow{}).Where("ref = ?", int64(ref)).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("database update: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: row %d", ErrRowNotFound, ref)
	}
	return nil
}

func logBackend(db *gorm.DB) {
	dialector := db.Dialector.Name()
	switch strings.ToLower(dialector) {
	case "postgres":
		log.Printf("store: connected to PostgreSQL")
	case "sqlite":
		log.Printf("store: using SQLite reminders.db")
	default:
		log.Printf("store: connected via %s", dialector)
	}
}
