package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"

	"soundmark/internal/model"
)

// Key layout:
//
//	song:<id BE32>  -> JSON-encoded model.Song
//	fp:<hash BE32>  -> concatenated 8-byte postings (songID LE32, anchorMs LE32)
//
// Posting lists are append-only per write transaction; Badger's MVCC gives
// readers the last committed view while a register commits.
const (
	songPrefix    = "song:"
	postingPrefix = "fp:"
	postingSize   = 8
)

// BadgerStore is an embedded key-value catalog backend with the same
// contract as SQLiteStore.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

// OpenBadger opens or creates a Badger-backed catalog at dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}
	seq, err := db.GetSequence([]byte("song_ids"), 64)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening id sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

func (s *BadgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if s.seq != nil {
		s.seq.Release()
	}
	return s.db.Close()
}

func songKey(id uint32) []byte {
	key := make([]byte, len(songPrefix)+4)
	copy(key, songPrefix)
	binary.BigEndian.PutUint32(key[len(songPrefix):], id)
	return key
}

func postingKey(hash uint32) []byte {
	key := make([]byte, len(postingPrefix)+4)
	copy(key, postingPrefix)
	binary.BigEndian.PutUint32(key[len(postingPrefix):], hash)
	return key
}

func encodePostings(dst []byte, songID uint32, fps []model.Fingerprint) []byte {
	var rec [postingSize]byte
	for _, fp := range fps {
		binary.LittleEndian.PutUint32(rec[:4], songID)
		binary.LittleEndian.PutUint32(rec[4:], uint32(fp.AnchorMs))
		dst = append(dst, rec[:]...)
	}
	return dst
}

func decodePostings(val []byte) []model.Posting {
	out := make([]model.Posting, 0, len(val)/postingSize)
	for i := 0; i+postingSize <= len(val); i += postingSize {
		out = append(out, model.Posting{
			SongID:   binary.LittleEndian.Uint32(val[i : i+4]),
			AnchorMs: int32(binary.LittleEndian.Uint32(val[i+4 : i+postingSize])),
		})
	}
	return out
}

// nextID returns a fresh positive song id. Sequence values start at zero,
// so ids are offset by one.
func (s *BadgerStore) nextID() (uint32, error) {
	n, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("allocating song id: %w", err)
	}
	return uint32(n) + 1, nil
}

func putSong(txn *badger.Txn, song model.Song) error {
	val, err := json.Marshal(song)
	if err != nil {
		return fmt.Errorf("encoding song: %w", err)
	}
	return txn.Set(songKey(song.ID), val)
}

// appendPostings groups fps by hash and appends them to the stored posting
// lists within txn.
func appendPostings(txn *badger.Txn, songID uint32, fps []model.Fingerprint) error {
	byHash := make(map[uint32][]model.Fingerprint)
	for _, fp := range fps {
		byHash[fp.Hash] = append(byHash[fp.Hash], fp)
	}

	for hash, group := range byHash {
		key := postingKey(hash)
		var val []byte
		item, err := txn.Get(key)
		switch {
		case err == nil:
			if val, err = item.ValueCopy(nil); err != nil {
				return fmt.Errorf("reading posting list: %w", err)
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			// first posting for this hash
		default:
			return fmt.Errorf("reading posting list: %w", err)
		}
		if err := txn.Set(key, encodePostings(val, songID, group)); err != nil {
			return fmt.Errorf("writing posting list: %w", err)
		}
	}
	return nil
}

func (s *BadgerStore) InsertSong(meta model.SongMeta) (uint32, error) {
	meta, err := normalizeMeta(meta)
	if err != nil {
		return 0, err
	}
	id, err := s.nextID()
	if err != nil {
		return 0, err
	}
	song := model.Song{ID: id, Title: meta.Title, Artist: meta.Artist, Album: meta.Album, Year: meta.Year, Genre: meta.Genre}
	err = s.db.Update(func(txn *badger.Txn) error {
		return putSong(txn, song)
	})
	if err != nil {
		return 0, fmt.Errorf("creating song: %w", err)
	}
	return id, nil
}

func (s *BadgerStore) InsertFingerprints(songID uint32, fps []model.Fingerprint) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(songKey(songID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return model.ErrUnknownSong
			}
			return fmt.Errorf("checking song %d: %w", songID, err)
		}
		return appendPostings(txn, songID, fps)
	})
}

func (s *BadgerStore) RegisterSong(meta model.SongMeta, fps []model.Fingerprint) (uint32, error) {
	meta, err := normalizeMeta(meta)
	if err != nil {
		return 0, err
	}
	id, err := s.nextID()
	if err != nil {
		return 0, err
	}
	song := model.Song{ID: id, Title: meta.Title, Artist: meta.Artist, Album: meta.Album, Year: meta.Year, Genre: meta.Genre}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := putSong(txn, song); err != nil {
			return err
		}
		return appendPostings(txn, id, fps)
	})
	if err != nil {
		return 0, fmt.Errorf("registering song: %w", err)
	}
	return id, nil
}

func (s *BadgerStore) Lookup(hash uint32) ([]model.Posting, error) {
	var out []model.Posting
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(postingKey(hash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = decodePostings(val)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("querying postings: %w", err)
	}
	return out, nil
}

func (s *BadgerStore) GetSong(id uint32) (*model.Song, error) {
	var song model.Song
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(songKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return model.ErrSongNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &song)
		})
	})
	if err != nil {
		if errors.Is(err, model.ErrSongNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("querying song %d: %w", id, err)
	}
	return &song, nil
}

func (s *BadgerStore) ListSongs() ([]model.Song, error) {
	var out []model.Song
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(songPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var song model.Song
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &song)
			})
			if err != nil {
				return err
			}
			out = append(out, song)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing songs: %w", err)
	}
	return out, nil
}

func (s *BadgerStore) SongCount() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(songPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("counting songs: %w", err)
	}
	return count, nil
}

// DeleteSong drops the song row and rewrites every posting list without its
// entries. Posting-list filtering walks the whole index, so deletion is a
// maintenance operation, not a hot path.
func (s *BadgerStore) DeleteSong(id uint32) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(songKey(id)); err != nil {
			return err
		}

		// Collect rewrites with the iterator closed before any Set, as
		// writes are not allowed while an iterator is active.
		type rewrite struct {
			key []byte
			val []byte
		}
		var rewrites []rewrite

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		prefix := []byte(postingPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				it.Close()
				return err
			}
			kept := make([]byte, 0, len(val))
			for i := 0; i+postingSize <= len(val); i += postingSize {
				if binary.LittleEndian.Uint32(val[i:i+4]) == id {
					continue
				}
				kept = append(kept, val[i:i+postingSize]...)
			}
			if len(kept) != len(val) {
				rewrites = append(rewrites, rewrite{key: item.KeyCopy(nil), val: kept})
			}
		}
		it.Close()

		for _, rw := range rewrites {
			if len(rw.val) == 0 {
				if err := txn.Delete(rw.key); err != nil {
					return err
				}
				continue
			}
			if err := txn.Set(rw.key, rw.val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting song %d: %w", id, err)
	}
	return nil
}
