package service

import (
	"context"
	"errors"
	"fmt"

	"soundmark/internal/fingerprint"
	"soundmark/internal/matcher"
	"soundmark/internal/model"
	"soundmark/internal/storage"
	"soundmark/pkg/logger"
)

// Store is the persistence contract the service depends on. Both
// storage.SQLiteStore and storage.BadgerStore satisfy it.
type Store interface {
	InsertSong(meta model.SongMeta) (uint32, error)
	InsertFingerprints(songID uint32, fps []model.Fingerprint) error
	RegisterSong(meta model.SongMeta, fps []model.Fingerprint) (uint32, error)
	Lookup(hash uint32) ([]model.Posting, error)
	GetSong(id uint32) (*model.Song, error)
	ListSongs() ([]model.Song, error)
	SongCount() (int, error)
	DeleteSong(id uint32) error
	Close() error
}

// ErrInvalidSampleRate rejects non-positive rates before the pipeline runs.
var ErrInvalidSampleRate = errors.New("sample rate must be positive")

// Service wires the fingerprint pipeline, the matcher and a Store into the
// two top-level operations: Register and Recognize.
type Service struct {
	store  Store
	match  *matcher.Matcher
	log    *logger.Logger
	engine fingerprint.SpectrumEngine
	ownsDB bool
}

func New(opts ...Option) (*Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Service{log: cfg.Logger, engine: cfg.Engine}
	if cfg.Store != nil {
		s.store = cfg.Store
	} else {
		db, err := storage.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		s.store = db
		s.ownsDB = true
	}
	s.match = matcher.New(s.store)
	return s, nil
}

// Register fingerprints pcm and stores it under meta, returning the new
// song id. The song row and all postings commit in one transaction; on any
// failure the catalog is unchanged.
func (s *Service) Register(ctx context.Context, pcm []int16, sr int, meta model.SongMeta) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if sr <= 0 {
		return 0, ErrInvalidSampleRate
	}

	fps := fingerprint.Compute(pcm, sr, s.engine)
	s.log.Debugf("computed %d fingerprints for %q", len(fps), meta.Title)

	id, err := s.store.RegisterSong(meta, fps)
	if err != nil {
		return 0, fmt.Errorf("registering %q: %w", meta.Title, err)
	}
	s.log.Infof("registered song %d: %s — %s (%d hashes)", id, meta.Artist, meta.Title, len(fps))
	return id, nil
}

// Recognize fingerprints pcm and matches it against the catalog. ok=false
// with a nil error means no catalog song shares a hash with the query.
func (s *Service) Recognize(ctx context.Context, pcm []int16, sr int) (*model.Match, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if sr <= 0 {
		return nil, false, ErrInvalidSampleRate
	}

	query := fingerprint.Compute(pcm, sr, s.engine)
	s.log.Debugf("query has %d fingerprints", len(query))
	if len(query) == 0 {
		return nil, false, nil
	}

	match, ok, err := s.match.BestMatch(query)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		s.log.Infof("no match for query (%d hashes)", len(query))
		return nil, false, nil
	}
	s.log.Infof("matched song %d: %s — %s (%d votes)", match.Song.ID, match.Song.Artist, match.Song.Title, match.Votes)
	return match, true, nil
}

// Song fetches one catalog entry.
func (s *Service) Song(id uint32) (*model.Song, error) {
	return s.store.GetSong(id)
}

// ListSongs returns the whole catalog.
func (s *Service) ListSongs() ([]model.Song, error) {
	return s.store.ListSongs()
}

// DeleteSong removes a song and its postings.
func (s *Service) DeleteSong(id uint32) error {
	return s.store.DeleteSong(id)
}

// Close releases the store if the service opened it.
func (s *Service) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.store.Close()
}
