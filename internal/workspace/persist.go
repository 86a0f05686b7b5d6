package workspace

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lootforge/internal/loot"
	"lootforge/internal/lootjson"
	"lootforge/internal/registry"
	"lootforge/internal/session"
	"lootforge/internal/util/jsonutil"
)

// LinksFile is the name of the link report written next to exported tables.
const LinksFile = "links.json"

// Snapshot captures the persistable state: edit logs, bookmarks and link overrides.
func (w *Workspace) Snapshot() session.Snapshot {
	snap := session.New(w.editor.GetAllEdits(), w.Bookmarks(), w.linker.Overrides())
	snap.SavedAt = time.Now().UTC()
	return snap
}

// SaveSession writes the snapshot to the session store. Failures are logged and
// reported as false; in-memory state is never touched.
func (w *Workspace) SaveSession(ctx context.Context) bool {
	if w.sessions == nil {
		w.logger.Warn("save session: no session store configured")
		return false
	}
	snap := w.Snapshot()
	err := w.sessions.Save(ctx, snap)
	w.metrics.ObserveSession("save", err)
	if err != nil {
		w.logger.Error("save session", "error", err)
		return false
	}
	w.logger.Info("session saved", "documents", len(snap.Edits), "bookmarks", len(snap.Bookmarks))
	return true
}

// LoadSession merges the stored edit logs into the editor, replaces bookmarks and
// link overrides, and rebuilds the index. On failure nothing changes.
func (w *Workspace) LoadSession(ctx context.Context) bool {
	if w.sessions == nil {
		w.logger.Warn("load session: no session store configured")
		return false
	}
	snap, err := w.sessions.Load(ctx)
	w.metrics.ObserveSession("load", err)
	if err != nil {
		w.logger.Error("load session", "error", err)
		return false
	}
	w.editor.LoadEdits(snap.EditMap())

	w.bookmarksMu.Lock()
	w.bookmarks = make(map[string]bool, len(snap.Bookmarks))
	for _, id := range snap.Bookmarks {
		if id = normalize(id); id != "" {
			w.bookmarks[id] = true
		}
	}
	w.bookmarksMu.Unlock()

	if err := w.linker.SetOverrides(ctx, snap.LinkOverrides); err != nil {
		w.logger.Warn("apply link overrides", "error", err)
	}
	if err := w.Reindex(ctx); err != nil {
		w.logger.Warn("reindex after session load", "error", err)
	}
	w.logger.Info("session loaded", "documents", len(snap.Edits), "bookmarks", len(snap.Bookmarks))
	return true
}

// Export writes every loot table (the edited view in preview mode, the original
// otherwise) as <namespace>/<path>.json plus the link report, under a fresh export id.
func (w *Workspace) Export(ctx context.Context) (string, bool) {
	if w.exports == nil {
		w.logger.Warn("export: no export store configured")
		return "", false
	}
	exportID := uuid.NewString()
	written := 0
	for _, id := range w.reg.ListIDs(registry.KindLootTable) {
		if err := ctx.Err(); err != nil {
			w.logger.Error("export cancelled", "export", exportID, "error", err)
			return exportID, false
		}
		s, ok := w.editor.View(id)
		if !ok {
			continue
		}
		raw, err := lootjson.Marshal(s)
		if err != nil {
			w.logger.Error("encode loot table", "doc", id, "error", err)
			return exportID, false
		}
		if err := w.exports.Put(ctx, exportID, exportPath(id), raw); err != nil {
			w.logger.Error("export loot table", "doc", id, "error", err)
			return exportID, false
		}
		written++
	}
	links, err := jsonutil.MarshalNoEscapeIndent(w.linker.Index())
	if err == nil {
		err = w.exports.Put(ctx, exportID, LinksFile, links)
	}
	if err != nil {
		w.logger.Error("export links", "export", exportID, "error", err)
		return exportID, false
	}
	w.metrics.ExportedDocuments(written)
	w.logger.Info("export written", "export", exportID, "documents", written)
	return exportID, true
}

func exportPath(id string) string {
	ns, path := loot.SplitID(id)
	return fmt.Sprintf("%s/%s.json", ns, path)
}
