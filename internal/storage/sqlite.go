package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/NoahNelson/Pipes/internal/fingerprint"
	"github.com/NoahNelson/Pipes/internal/model"
)

const DefaultDBFile = "pipes.sqlite"

const sqliteBatchSize = 500

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

type Recording struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"uniqueIndex:idx_recording_name;not null"`
	CreatedAt time.Time
}

// Fingerprint rows keep the legacy column names (hash, offset, songId) so
// existing corpus files stay readable.
type Fingerprint struct {
	Hash        uint32 `gorm:"column:hash;primaryKey;autoIncrement:false;index:idx_hash"`
	Offset      int64  `gorm:"column:offset;primaryKey;autoIncrement:false"`
	RecordingID int64  `gorm:"column:songId;primaryKey;autoIncrement:false;index:idx_recording"`
}

func (Fingerprint) TableName() string {
	return "fingerprints"
}

// NewDBClient opens the SQLite corpus named by PIPES_DB_PATH, or
// DefaultDBFile, creating it if needed.
func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("PIPES_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

// OpenDBClient opens an existing SQLite corpus. Matching against a corpus
// that was never ingested is an error rather than an empty result.
func OpenDBClient(dbPath string) (*DBClient, error) {
	if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", dbPath, ErrCorpusNotFound)
		}
		return nil, fmt.Errorf("stat sqlite db: %w", err)
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_pragma=busy_timeout(5000)"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(8)
	sqlDB.SetMaxIdleConns(4)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Recording{}, &Fingerprint{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *DBClient) RegisterRecording(ctx context.Context, name string) (int64, error) {
	if c == nil || c.DB == nil {
		return 0, errClientNil
	}
	if strings.TrimSpace(name) == "" {
		return 0, ErrEmptyName
	}

	db := c.DB.WithContext(ctx)
	var rec Recording

	err := db.Where("name = ?", name).First(&rec).Error
	if err == nil {
		return rec.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("querying existing recording: %w", err)
	}

	rec = Recording{Name: name}
	if err := db.Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
			if fetchErr := db.Where("name = ?", name).First(&rec).Error; fetchErr != nil {
				return 0, fmt.Errorf("fetching recording after constraint violation: %w", fetchErr)
			}
			return rec.ID, nil
		}
		return 0, fmt.Errorf("creating recording: %w", err)
	}

	return rec.ID, nil
}

func (c *DBClient) StoreFingerprints(ctx context.Context, recordingID int64, records []fingerprint.Record) error {
	if c == nil || c.DB == nil {
		return errClientNil
	}
	if len(records) == 0 {
		return nil
	}

	rows := make([]Fingerprint, 0, len(records))
	for _, r := range records {
		rows = append(rows, Fingerprint{Hash: r.Hash, Offset: r.Offset, RecordingID: recordingID})
	}

	return c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, sqliteBatchSize).Error
		if err != nil {
			return fmt.Errorf("batch insert fingerprints: %w", err)
		}
		return nil
	})
}

func (c *DBClient) CouplesByHash(ctx context.Context, hash uint32) ([]model.Couple, error) {
	if c == nil || c.DB == nil {
		return nil, errClientNil
	}
	var rows []Fingerprint
	if err := c.DB.WithContext(ctx).Where("hash = ?", hash).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying fingerprints: %w", err)
	}
	out := make([]model.Couple, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Couple{CandidateID: r.RecordingID, Offset: r.Offset})
	}
	return out, nil
}

func (c *DBClient) ListRecordings(ctx context.Context) ([]model.Recording, error) {
	if c == nil || c.DB == nil {
		return nil, errClientNil
	}
	db := c.DB.WithContext(ctx)

	var recs []Recording
	if err := db.Order("id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing recordings: %w", err)
	}

	var counts []struct {
		RecordingID int64
		N           int
	}
	err := db.Model(&Fingerprint{}).
		Select("songId AS recording_id, COUNT(*) AS n").
		Group("songId").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("counting fingerprints: %w", err)
	}
	byID := make(map[int64]int, len(counts))
	for _, row := range counts {
		byID[row.RecordingID] = row.N
	}

	out := make([]model.Recording, 0, len(recs))
	for _, r := range recs {
		out = append(out, model.Recording{
			ID:           r.ID,
			Name:         r.Name,
			Fingerprints: byID[r.ID],
			CreatedAt:    r.CreatedAt,
		})
	}
	return out, nil
}

func (c *DBClient) DeleteRecording(ctx context.Context, id int64) error {
	if c == nil || c.DB == nil {
		return errClientNil
	}
	return c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("songId = ?", id).Delete(&Fingerprint{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&Recording{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("recording %d: %w", id, ErrNotFound)
		}
		return nil
	})
}
