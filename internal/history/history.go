// Package history keeps the run journal: one row per completed sync
// run plus one row per failed file, in a SQLite database next to the
// content index.
package history

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Run is one journal row per completed sync run.
type Run struct {
	gorm.Model
	Src          string `gorm:"not null"`
	Dst          string `gorm:"not null"`
	Mode         string `gorm:"not null"`
	DryRun       bool
	Status       string `gorm:"not null"`
	ErrMsg       string
	FilesCopied  int64
	BytesCopied  int64
	FilesSkipped int64
	Duplicates   int64
	FilesMoved   int64
	FilesFailed  int64
	Adopted      int
	Healed       int
	Duration     time.Duration
	StartedAt    time.Time   `gorm:"not null"`
	FileErrors   []FileError `gorm:"constraint:OnDelete:CASCADE"`
}

// FileError is one file that could not be settled during its run.
type FileError struct {
	gorm.Model
	RunID uint `gorm:"index;not null"`
	Path  string
	Err   string
}

// Stats aggregates the journal for the status command.
type Stats struct {
	Total     int64
	Succeeded int64
	Failed    int64
}

// Journal is an open run journal.
type Journal struct {
	db *gorm.DB
}

// Open opens or creates the journal database and migrates its schema.
func Open(path string) (*Journal, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.AutoMigrate(&Run{}, &FileError{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Append records a finished run.
func (j *Journal) Append(run *Run) error {
	return j.db.Create(run).Error
}

// Recent returns the newest runs, most recent first, without their
// file error rows.
func (j *Journal) Recent(limit int) ([]Run, error) {
	var runs []Run
	err := j.db.Order("id desc").Limit(limit).Find(&runs).Error
	return runs, err
}

// ByID returns one run with its file errors loaded.
func (j *Journal) ByID(id uint) (Run, error) {
	var run Run
	err := j.db.Preload("FileErrors").First(&run, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return run, fmt.Errorf("run %d not found", id)
	}
	return run, err
}

// Last returns the most recent run, or ok=false on an empty journal.
func (j *Journal) Last() (Run, bool, error) {
	var run Run
	err := j.db.Order("id desc").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return run, false, nil
	}
	return run, err == nil, err
}

// TotalStats counts runs by outcome.
func (j *Journal) TotalStats() (Stats, error) {
	var s Stats
	if err := j.db.Model(&Run{}).Count(&s.Total).Error; err != nil {
		return s, err
	}
	if err := j.db.Model(&Run{}).
		Where("status = ?", StatusSuccess).
		Count(&s.Succeeded).Error; err != nil {
		return s, err
	}
	s.Failed = s.Total - s.Succeeded
	return s, nil
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
