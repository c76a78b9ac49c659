package matcher

import (
	"fmt"

	"soundmark/internal/model"
)

// Index is the slice of the catalog the matcher needs: per-hash posting
// lookup and song metadata retrieval.
type Index interface {
	Lookup(hash uint32) ([]model.Posting, error)
	GetSong(id uint32) (*model.Song, error)
}

type voteKey struct {
	songID  uint32
	deltaMs int32
}

// Matcher ranks catalog songs against a query hash set by histogram voting
// over (song, Δt) pairs, where Δt is the catalog anchor time minus the query
// anchor time in milliseconds. A genuine match concentrates its votes at a
// single Δt; unrelated songs scatter theirs.
type Matcher struct {
	index Index
}

func New(index Index) *Matcher {
	return &Matcher{index: index}
}

// BestMatch returns the winning song with its raw vote count, or ok=false
// when nothing in the catalog shares a single hash with the query.
// Ties are broken toward the lowest song id, then the lowest Δt, so results
// are deterministic regardless of map iteration order.
func (m *Matcher) BestMatch(query []model.Fingerprint) (*model.Match, bool, error) {
	votes := make(map[voteKey]int)

	for _, q := range query {
		postings, err := m.index.Lookup(q.Hash)
		if err != nil {
			return nil, false, fmt.Errorf("looking up hash %#x: %w", q.Hash, err)
		}
		for _, p := range postings {
			votes[voteKey{songID: p.SongID, deltaMs: p.AnchorMs - q.AnchorMs}]++
		}
	}

	var best voteKey
	bestCount := 0
	for key, count := range votes {
		if count > bestCount {
			best, bestCount = key, count
			continue
		}
		if count == bestCount && bestCount > 0 {
			if key.songID < best.songID ||
				(key.songID == best.songID && key.deltaMs < best.deltaMs) {
				best = key
			}
		}
	}

	if bestCount == 0 {
		return nil, false, nil
	}

	song, err := m.index.GetSong(best.songID)
	if err != nil {
		return nil, false, fmt.Errorf("fetching matched song %d: %w", best.songID, err)
	}

	match := &model.Match{
		Song:     *song,
		Votes:    bestCount,
		OffsetMs: best.deltaMs,
	}
	if len(query) > 0 {
		match.Confidence = float64(bestCount) / float64(len(query)) * 100
	}
	return match, true, nil
}
