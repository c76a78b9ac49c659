package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"soundmark/internal/model"
)

const DefaultDBFile = "soundmark.sqlite3"

// insertBatchSize bounds the number of rows per INSERT statement during
// bulk fingerprint writes.
const insertBatchSize = 500

type songRow struct {
	ID     uint32 `gorm:"primaryKey;autoIncrement"`
	Title  string `gorm:"not null;index:idx_song_meta,priority:1"`
	Artist string `gorm:"not null;index:idx_song_meta,priority:2"`
	Album  string
	Year   int
	Genre  string
}

func (songRow) TableName() string { return "songs" }

type fingerprintRow struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	SongID   uint32 `gorm:"not null;index:idx_fp_song"`
	Hash     uint32 `gorm:"not null;index:idx_fp_hash"`
	AnchorMs int32  `gorm:"not null"`
}

func (fingerprintRow) TableName() string { return "fingerprints" }

// SQLiteStore is the reference catalog backend: a single-file SQLite
// database in WAL mode, so one writer and many readers can coexist.
type SQLiteStore struct {
	orm *gorm.DB
	db  *sql.DB
}

// OpenSQLite opens or creates the catalog at dbPath and migrates the schema.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	orm, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	db, err := orm.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	// WAL keeps readers unblocked while a register is committing.
	if err := orm.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}

	if err := orm.AutoMigrate(&songRow{}, &fingerprintRow{}); err != nil {
		db.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &SQLiteStore{orm: orm, db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// normalizeMeta trims the string fields and rejects metadata without a
// title or artist.
func normalizeMeta(meta model.SongMeta) (model.SongMeta, error) {
	meta.Title = strings.TrimSpace(meta.Title)
	meta.Artist = strings.TrimSpace(meta.Artist)
	meta.Album = strings.TrimSpace(meta.Album)
	meta.Genre = strings.TrimSpace(meta.Genre)
	if meta.Title == "" || meta.Artist == "" || meta.Year < 0 {
		return meta, model.ErrInvalidMeta
	}
	return meta, nil
}

// InsertSong stores a new song row and returns its generated id.
func (s *SQLiteStore) InsertSong(meta model.SongMeta) (uint32, error) {
	meta, err := normalizeMeta(meta)
	if err != nil {
		return 0, err
	}

	row := songRow{
		Title:  meta.Title,
		Artist: meta.Artist,
		Album:  meta.Album,
		Year:   meta.Year,
		Genre:  meta.Genre,
	}
	if err := s.orm.Create(&row).Error; err != nil {
		return 0, fmt.Errorf("creating song: %w", err)
	}
	return row.ID, nil
}

// InsertFingerprints bulk-inserts postings for an existing song inside a
// single write transaction. On any failure no rows are inserted.
func (s *SQLiteStore) InsertFingerprints(songID uint32, fps []model.Fingerprint) error {
	return s.orm.Transaction(func(tx *gorm.DB) error {
		return insertFingerprintsTx(tx, songID, fps)
	})
}

func insertFingerprintsTx(tx *gorm.DB, songID uint32, fps []model.Fingerprint) error {
	var song songRow
	if err := tx.First(&song, songID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.ErrUnknownSong
		}
		return fmt.Errorf("checking song %d: %w", songID, err)
	}

	if len(fps) == 0 {
		return nil
	}

	rows := make([]fingerprintRow, len(fps))
	for i, fp := range fps {
		rows[i] = fingerprintRow{SongID: songID, Hash: fp.Hash, AnchorMs: fp.AnchorMs}
	}
	if err := tx.CreateInBatches(rows, insertBatchSize).Error; err != nil {
		return fmt.Errorf("batch insert fingerprints: %w", err)
	}
	return nil
}

// RegisterSong inserts the song row and all of its postings in one write
// transaction, so a failed registration leaves no trace in the catalog.
func (s *SQLiteStore) RegisterSong(meta model.SongMeta, fps []model.Fingerprint) (uint32, error) {
	meta, err := normalizeMeta(meta)
	if err != nil {
		return 0, err
	}

	var id uint32
	err = s.orm.Transaction(func(tx *gorm.DB) error {
		row := songRow{
			Title:  meta.Title,
			Artist: meta.Artist,
			Album:  meta.Album,
			Year:   meta.Year,
			Genre:  meta.Genre,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("creating song: %w", err)
		}
		id = row.ID
		return insertFingerprintsTx(tx, row.ID, fps)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Lookup returns the posting list for one hash. A missing hash yields an
// empty list, not an error.
func (s *SQLiteStore) Lookup(hash uint32) ([]model.Posting, error) {
	var rows []fingerprintRow
	if err := s.orm.Where("hash = ?", hash).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying fingerprints: %w", err)
	}
	out := make([]model.Posting, len(rows))
	for i, r := range rows {
		out[i] = model.Posting{SongID: r.SongID, AnchorMs: r.AnchorMs}
	}
	return out, nil
}

// GetSong fetches one catalog entry by id.
func (s *SQLiteStore) GetSong(id uint32) (*model.Song, error) {
	var row songRow
	if err := s.orm.First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrSongNotFound
		}
		return nil, fmt.Errorf("querying song %d: %w", id, err)
	}
	return rowToSong(row), nil
}

func rowToSong(row songRow) *model.Song {
	return &model.Song{
		ID:     row.ID,
		Title:  row.Title,
		Artist: row.Artist,
		Album:  row.Album,
		Year:   row.Year,
		Genre:  row.Genre,
	}
}

// ListSongs returns all catalog entries ordered by id.
func (s *SQLiteStore) ListSongs() ([]model.Song, error) {
	var rows []songRow
	if err := s.orm.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing songs: %w", err)
	}
	out := make([]model.Song, len(rows))
	for i, r := range rows {
		out[i] = *rowToSong(r)
	}
	return out, nil
}

// SongCount reports the number of catalog entries.
func (s *SQLiteStore) SongCount() (int, error) {
	var n int64
	if err := s.orm.Model(&songRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting songs: %w", err)
	}
	return int(n), nil
}

// DeleteSong removes a song and its postings in one transaction.
func (s *SQLiteStore) DeleteSong(id uint32) error {
	return s.orm.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("song_id = ?", id).Delete(&fingerprintRow{}).Error; err != nil {
			return fmt.Errorf("deleting fingerprints: %w", err)
		}
		if err := tx.Delete(&songRow{}, id).Error; err != nil {
			return fmt.Errorf("deleting song: %w", err)
		}
		return nil
	})
}
