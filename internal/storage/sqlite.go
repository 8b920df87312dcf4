// Package storage persists computed analysis timelines in SQLite so a
// restart does not force re-acquisition of already-analyzed sources.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/onesong-app/pulse/internal/analysis"
)

const DefaultDBFile = "pulse.sqlite3"

const errClientNil = "db client is nil"

// TimelineRecord is the persisted form of one analyzed source. The payload
// is the JSON-encoded timeline; the scalar columns exist for inspection
// and cheap counting.
type TimelineRecord struct {
	SourceID   string `gorm:"primaryKey;type:varchar(16)"`
	Payload    []byte `json:"payload"`
	Synthetic  bool   `json:"synthetic"`
	DurationMs int    `json:"duration_ms"`
	CreatedAt  time.Time
}

// Client wraps the gorm handle together with the underlying pool.
type Client struct {
	DB *gorm.DB
	db *sql.DB
}

// Open opens (creating if needed) the timeline database at dbPath.
func Open(dbPath string) (*Client, error) {
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil && !os.IsExist(err) {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&TimelineRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &Client{DB: db, db: sqlDB}, nil
}

func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Save upserts the timeline for a source id.
func (c *Client) Save(id string, tl *analysis.Timeline) error {
	if c == nil || c.DB == nil {
		return errors.New(errClientNil)
	}

	payload, err := json.Marshal(tl)
	if err != nil {
		return fmt.Errorf("encoding timeline: %w", err)
	}

	rec := TimelineRecord{
		SourceID:   id,
		Payload:    payload,
		Synthetic:  tl.Synthetic,
		DurationMs: int(tl.Duration * 1000),
	}

	return c.DB.Save(&rec).Error
}

// Load returns the timeline for a source id, or (nil, nil) when no record
// exists.
func (c *Client) Load(id string) (*analysis.Timeline, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errClientNil)
	}

	var rec TimelineRecord
	err := c.DB.Where("source_id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying timeline: %w", err)
	}

	var tl analysis.Timeline
	if err := json.Unmarshal(rec.Payload, &tl); err != nil {
		return nil, fmt.Errorf("decoding timeline for %s: %w", id, err)
	}
	return &tl, nil
}

// Count reports the number of persisted timelines.
func (c *Client) Count() (int64, error) {
	if c == nil || c.DB == nil {
		return 0, errors.New(errClientNil)
	}
	var n int64
	if err := c.DB.Model(&TimelineRecord{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// Delete removes a persisted timeline. Deleting a missing id is not an
// error.
func (c *Client) Delete(id string) error {
	if c == nil || c.DB == nil {
		return errors.New(errClientNil)
	}
	return c.DB.Where("source_id = ?", id).Delete(&TimelineRecord{}).Error
}
