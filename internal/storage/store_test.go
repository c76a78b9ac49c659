package storage

import (
	"errors"
	"testing"

	"soundmark/internal/model"
)

// catalog is the surface shared by both backends, exercised by the common
// suite below.
type catalog interface {
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

func testMeta() model.SongMeta {
	return model.SongMeta{Title: "Test Song", Artist: "Test Artist", Album: "Test Album", Year: 2004, Genre: "Electronic"}
}

func testFingerprints() []model.Fingerprint {
	return []model.Fingerprint{
		{Hash: 0xDEADBEEF, AnchorMs: 0},
		{Hash: 0xDEADBEEF, AnchorMs: 23},
		{Hash: 0x12345678, AnchorMs: 46},
	}
}

func suiteInsertSong(t *testing.T, s catalog) {
	id1, err := s.InsertSong(testMeta())
	if err != nil {
		t.Fatalf("InsertSong: %v", err)
	}
	if id1 == 0 {
		t.Fatal("expected a positive song id")
	}

	id2, err := s.InsertSong(model.SongMeta{Title: "Second", Artist: "Someone"})
	if err != nil {
		t.Fatalf("InsertSong: %v", err)
	}
	if id2 <= id1 {
		t.Errorf("ids not increasing: %d then %d", id1, id2)
	}

	song, err := s.GetSong(id1)
	if err != nil {
		t.Fatalf("GetSong: %v", err)
	}
	want := testMeta()
	if song.Title != want.Title || song.Artist != want.Artist ||
		song.Album != want.Album || song.Year != want.Year || song.Genre != want.Genre {
		t.Errorf("stored song %+v does not match %+v", song, want)
	}
}

func suiteInsertSongValidation(t *testing.T, s catalog) {
	before, err := s.SongCount()
	if err != nil {
		t.Fatalf("SongCount: %v", err)
	}

	cases := []model.SongMeta{
		{Title: "", Artist: "Someone"},
		{Title: "Something", Artist: ""},
		{Title: "   ", Artist: "Someone"},
		{Title: "Something", Artist: "\t\n"},
	}
	for _, meta := range cases {
		if _, err := s.InsertSong(meta); !errors.Is(err, model.ErrInvalidMeta) {
			t.Errorf("InsertSong(%+v) = %v, want ErrInvalidMeta", meta, err)
		}
	}

	after, err := s.SongCount()
	if err != nil {
		t.Fatalf("SongCount: %v", err)
	}
	if after != before {
		t.Errorf("rejected inserts changed song count: %d -> %d", before, after)
	}
}

func suiteInsertSongTrims(t *testing.T, s catalog) {
	id, err := s.InsertSong(model.SongMeta{Title: "  Padded  ", Artist: " Artist "})
	if err != nil {
		t.Fatalf("InsertSong: %v", err)
	}
	song, err := s.GetSong(id)
	if err != nil {
		t.Fatalf("GetSong: %v", err)
	}
	if song.Title != "Padded" || song.Artist != "Artist" {
		t.Errorf("metadata not trimmed: %q by %q", song.Title, song.Artist)
	}
}

func suiteFingerprints(t *testing.T, s catalog) {
	id, err := s.InsertSong(testMeta())
	if err != nil {
		t.Fatalf("InsertSong: %v", err)
	}

	fps := testFingerprints()
	if err := s.InsertFingerprints(id, fps); err != nil {
		t.Fatalf("InsertFingerprints: %v", err)
	}

	postings, err := s.Lookup(0xDEADBEEF)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(postings) != 2 {
		t.Fatalf("got %d postings, want 2 (duplicates must be kept)", len(postings))
	}
	for _, p := range postings {
		if p.SongID != id {
			t.Errorf("posting references song %d, want %d", p.SongID, id)
		}
	}

	anchors := map[int32]bool{postings[0].AnchorMs: true, postings[1].AnchorMs: true}
	if !anchors[0] || !anchors[23] {
		t.Errorf("unexpected anchors: %+v", postings)
	}

	empty, err := s.Lookup(0xCAFEBABE)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("lookup of an absent hash returned %d postings", len(empty))
	}
}

func suiteFingerprintsUnknownSong(t *testing.T, s catalog) {
	fps := testFingerprints()
	err := s.InsertFingerprints(9999, fps)
	if !errors.Is(err, model.ErrUnknownSong) {
		t.Fatalf("InsertFingerprints(9999) = %v, want ErrUnknownSong", err)
	}

	// All-or-nothing: nothing may have been inserted.
	for _, fp := range fps {
		postings, err := s.Lookup(fp.Hash)
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if len(postings) != 0 {
			t.Errorf("hash %#x has %d postings after failed insert", fp.Hash, len(postings))
		}
	}
}

func suiteRegisterSong(t *testing.T, s catalog) {
	fps := testFingerprints()
	id, err := s.RegisterSong(testMeta(), fps)
	if err != nil {
		t.Fatalf("RegisterSong: %v", err)
	}

	postings, err := s.Lookup(0x12345678)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(postings) != 1 || postings[0].SongID != id || postings[0].AnchorMs != 46 {
		t.Errorf("unexpected postings after register: %+v", postings)
	}

	// Invalid metadata must leave no trace.
	before, _ := s.SongCount()
	if _, err := s.RegisterSong(model.SongMeta{Artist: "No Title"}, fps); !errors.Is(err, model.ErrInvalidMeta) {
		t.Fatalf("RegisterSong without title = %v, want ErrInvalidMeta", err)
	}
	after, _ := s.SongCount()
	if after != before {
		t.Errorf("failed register changed song count: %d -> %d", before, after)
	}
}

func suiteGetSongNotFound(t *testing.T, s catalog) {
	if _, err := s.GetSong(123456); !errors.Is(err, model.ErrSongNotFound) {
		t.Errorf("GetSong(123456) = %v, want ErrSongNotFound", err)
	}
}

func suiteListSongs(t *testing.T, s catalog) {
	id1, _ := s.InsertSong(model.SongMeta{Title: "One", Artist: "A"})
	id2, _ := s.InsertSong(model.SongMeta{Title: "Two", Artist: "B"})

	songs, err := s.ListSongs()
	if err != nil {
		t.Fatalf("ListSongs: %v", err)
	}
	if len(songs) != 2 {
		t.Fatalf("got %d songs, want 2", len(songs))
	}
	if songs[0].ID != id1 || songs[1].ID != id2 {
		t.Errorf("songs not ordered by id: %d, %d", songs[0].ID, songs[1].ID)
	}
}

func suiteDeleteSong(t *testing.T, s catalog) {
	fps := testFingerprints()
	id, err := s.RegisterSong(testMeta(), fps)
	if err != nil {
		t.Fatalf("RegisterSong: %v", err)
	}
	keep, err := s.RegisterSong(model.SongMeta{Title: "Keeper", Artist: "B"}, []model.Fingerprint{{Hash: 0xDEADBEEF, AnchorMs: 99}})
	if err != nil {
		t.Fatalf("RegisterSong: %v", err)
	}

	if err := s.DeleteSong(id); err != nil {
		t.Fatalf("DeleteSong: %v", err)
	}

	if _, err := s.GetSong(id); !errors.Is(err, model.ErrSongNotFound) {
		t.Errorf("deleted song still present: %v", err)
	}

	postings, err := s.Lookup(0xDEADBEEF)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(postings) != 1 || postings[0].SongID != keep {
		t.Errorf("postings after delete: %+v, want only song %d", postings, keep)
	}
}

// runCatalogSuite runs every shared test against a fresh store.
func runCatalogSuite(t *testing.T, open func(t *testing.T) catalog) {
	tests := []struct {
		name string
		fn   func(*testing.T, catalog)
	}{
		{"InsertSong", suiteInsertSong},
		{"InsertSongValidation", suiteInsertSongValidation},
		{"InsertSongTrims", suiteInsertSongTrims},
		{"Fingerprints", suiteFingerprints},
		{"FingerprintsUnknownSong", suiteFingerprintsUnknownSong},
		{"RegisterSong", suiteRegisterSong},
		{"GetSongNotFound", suiteGetSongNotFound},
		{"ListSongs", suiteListSongs},
		{"DeleteSong", suiteDeleteSong},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { s.Close() })
			tc.fn(t, s)
		})
	}
}
