package session

import (
	"context"
	"sort"
	"strings"
	"time"

	"lootforge/internal/editor"
	"lootforge/internal/linker"
)

// FormatVersion is written into every snapshot.
const FormatVersion = 1

// Snapshot is everything a session persists: the operation logs, the bookmarked
// documents and the author's link overrides. Edited structures are never stored;
// they are rebuilt from the logs.
type Snapshot struct {
	Version       int              `json:"version"`
	SavedAt       time.Time        `json:"saved_at"`
	Edits         []editor.EditLog `json:"edits"`
	Bookmarks     []string         `json:"bookmarks"`
	LinkOverrides linker.Overrides `json:"link_overrides"`
}

// Store loads and saves a session. Loading a session that was never saved
// yields an empty snapshot, not an error.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// New builds a snapshot from the editor's edit map.
func New(edits map[string]editor.EditLog, bookmarks []string, ov linker.Overrides) Snapshot {
	s := Snapshot{Bookmarks: bookmarks, LinkOverrides: ov}
	for _, log := range edits {
		s.Edits = append(s.Edits, log)
	}
	return Normalize(s)
}

// EditMap is the inverse of New for the edit logs.
func (s Snapshot) EditMap() map[string]editor.EditLog {
	out := make(map[string]editor.EditLog, len(s.Edits))
	for _, log := range s.Edits {
		if log.DocumentID != "" {
			out[log.DocumentID] = log
		}
	}
	return out
}

// Normalize orders edits by document, deduplicates bookmarks and fills the version.
// Stores apply it on save so equal sessions serialise identically.
func Normalize(s Snapshot) Snapshot {
	if s.Version == 0 {
		s.Version = FormatVersion
	}
	edits := make([]editor.EditLog, 0, len(s.Edits))
	for _, log := range s.Edits {
		if strings.TrimSpace(log.DocumentID) == "" {
			continue
		}
		edits = append(edits, log)
	}
	sort.SliceStable(edits, func(i, j int) bool { return edits[i].DocumentID < edits[j].DocumentID })
	s.Edits = edits

	seen := map[string]bool{}
	bookmarks := make([]string, 0, len(s.Bookmarks))
	for _, b := range s.Bookmarks {
		b = strings.TrimSpace(b)
		if b == "" || seen[b] {
			continue
		}
		seen[b] = true
		bookmarks = append(bookmarks, b)
	}
	sort.Strings(bookmarks)
	s.Bookmarks = bookmarks
	return s
}
