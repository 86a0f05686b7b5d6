// Package workspace ties the registry, editor, linker and search index into the
// process-wide service the CLI drives.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"lootforge/internal/common/delta"
	"lootforge/internal/droprate"
	"lootforge/internal/edit"
	"lootforge/internal/editor"
	"lootforge/internal/export"
	"lootforge/internal/itemidx"
	"lootforge/internal/linker"
	"lootforge/internal/loot"
	"lootforge/internal/lootjson"
	"lootforge/internal/metrics"
	"lootforge/internal/registry"
	"lootforge/internal/session"
)

const defaultParseCache = 512

type options struct {
	logger     *slog.Logger
	sessions   session.Store
	exports    export.Store
	metrics    *metrics.Collector
	rules      *linker.Rules
	parseCache int
	auditCap   int
	workers    int
	preview    bool
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithSessionStore(s session.Store) Option {
	return func(o *options) { o.sessions = s }
}

func WithExportStore(s export.Store) Option {
	return func(o *options) { o.exports = s }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

func WithRules(r linker.Rules) Option {
	return func(o *options) { o.rules = &r }
}

// WithParseCache bounds how many parsed originals are kept in memory.
func WithParseCache(n int) Option {
	return func(o *options) { o.parseCache = n }
}

func WithAuditCap(n int) Option {
	return func(o *options) { o.auditCap = n }
}

// WithWorkers bounds corpus loading and indexing concurrency.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

func WithPreview(on bool) Option {
	return func(o *options) { o.preview = on }
}

type Workspace struct {
	reg      registry.Registry
	logger   *slog.Logger
	sessions session.Store
	exports  export.Store
	metrics  *metrics.Collector
	workers  int

	originals *lru.Cache[string, loot.Structure]
	editor    *editor.Manager
	linker    *linker.Linker
	index     atomic.Pointer[itemidx.Index]

	bookmarksMu sync.Mutex
	bookmarks   map[string]bool
}

// New builds a workspace over reg. Documents are parsed on first use.
func New(reg registry.Registry, opts ...Option) (*Workspace, error) {
	if reg == nil {
		return nil, errors.New("registry is required")
	}
	o := options{logger: slog.Default(), parseCache: defaultParseCache}
	for _, opt := range opts {
		opt(&o)
	}
	if o.parseCache <= 0 {
		o.parseCache = defaultParseCache
	}
	if o.workers <= 0 {
		o.workers = runtime.GOMAXPROCS(0)
	}
	cache, err := lru.New[string, loot.Structure](o.parseCache)
	if err != nil {
		return nil, fmt.Errorf("parse cache: %w", err)
	}
	rules := linker.DefaultRules()
	if o.rules != nil {
		rules = *o.rules
	}

	w := &Workspace{
		reg:       reg,
		logger:    o.logger,
		sessions:  o.sessions,
		exports:   o.exports,
		metrics:   o.metrics,
		workers:   o.workers,
		originals: cache,
		bookmarks: make(map[string]bool),
	}
	editorOpts := []editor.Option{
		editor.WithLoader(editor.LoaderFunc(w.loadOriginal)),
		editor.WithAuditCap(o.auditCap),
	}
	linkerOpts := []linker.Option{linker.WithLogger(o.logger)}
	if o.metrics != nil {
		editorOpts = append(editorOpts, editor.WithObserver(o.metrics))
		linkerOpts = append(linkerOpts, linker.WithObserver(o.metrics))
	}
	w.editor = editor.New(editorOpts...)
	w.editor.SetPreviewMode(o.preview)
	w.linker = linker.New(rules, linkerOpts...)
	w.index.Store(itemidx.Build(nil))
	return w, nil
}

func (w *Workspace) Editor() *editor.Manager { return w.editor }

func (w *Workspace) Linker() *linker.Linker { return w.linker }

func (w *Workspace) Index() *itemidx.Index { return w.index.Load() }

func (w *Workspace) Registry() registry.Registry { return w.reg }

// loadOriginal parses id from the registry, memoising the result. Parse failures are
// logged and treated as absent so one broken file does not stop the session.
func (w *Workspace) loadOriginal(id string) (loot.Structure, bool) {
	id = normalize(id)
	if s, ok := w.originals.Get(id); ok {
		return s, true
	}
	s, ok, err := lootjson.Load(w.reg, id)
	if err != nil {
		w.logger.Warn("parse loot table", "doc", id, "error", err)
		w.metrics.ParseFailed()
		return loot.Structure{}, false
	}
	if !ok {
		return loot.Structure{}, false
	}
	w.originals.Add(id, s)
	return s, true
}

// LoadCorpus parses every loot table, then rebuilds links and the search index.
// Individual parse failures are logged and skipped.
func (w *Workspace) LoadCorpus(ctx context.Context) error {
	ids := w.reg.ListIDs(registry.KindLootTable)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers)
	var loaded atomic.Int64
	for _, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if _, ok := w.editor.Original(id); ok {
				loaded.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}
	w.logger.Info("corpus loaded", "tables", len(ids), "parsed", loaded.Load())

	if err := w.Relink(ctx); err != nil {
		return err
	}
	return w.Reindex(ctx)
}

// Relink recomputes structure links from the registry's current id lists.
func (w *Workspace) Relink(ctx context.Context) error {
	structures := w.reg.ListIDs(registry.KindStructure)
	tables := w.reg.ListIDs(registry.KindLootTable)
	if err := w.linker.Rebuild(ctx, structures, tables); err != nil {
		return fmt.Errorf("relink: %w", err)
	}
	return nil
}

// Reindex rebuilds the search index over the current views and swaps it in.
func (w *Workspace) Reindex(ctx context.Context) error {
	ids := w.reg.ListIDs(registry.KindLootTable)
	loader := itemidx.LoaderFunc(func(_ context.Context, id string) (loot.Structure, bool, error) {
		s, ok := w.editor.View(id)
		return s, ok, nil
	})
	idx := itemidx.StartFromLoader(ctx, loader, ids, w.workers)
	if err := idx.Wait(ctx); err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	w.index.Store(idx)
	return nil
}

// Apply records op against id. It reports false when the editor rejects the call.
func (w *Workspace) Apply(id string, op edit.Operation) bool {
	return w.editor.ApplyOperation(normalize(id), op)
}

// ApplyLog replays a recorded edit log and rebuilds the item index so searches
// see the result. It returns how many operations were accepted.
func (w *Workspace) ApplyLog(ctx context.Context, log editor.EditLog) (int, error) {
	applied := 0
	for _, op := range log.Operations {
		if w.Apply(log.DocumentID, op) {
			applied++
		}
	}
	if applied == 0 {
		return 0, nil
	}
	return applied, w.Reindex(ctx)
}

func (w *Workspace) Undo(id string) bool { return w.editor.Undo(normalize(id)) }

func (w *Workspace) Redo(id string) bool { return w.editor.Redo(normalize(id)) }

// View returns what the author currently sees for id.
func (w *Workspace) View(id string) (loot.Structure, bool) {
	return w.editor.View(normalize(id))
}

// DropRates reports rates for the edited view of id.
func (w *Workspace) DropRates(id string) (droprate.Report, bool) {
	s, ok := w.editor.EditedView(normalize(id))
	if !ok {
		return droprate.Report{}, false
	}
	return droprate.ForStructure(s), true
}

// Simulate rolls the edited view of id, resolving table references through the editor.
func (w *Workspace) Simulate(id string, opts droprate.SimOptions) (droprate.SimResult, bool) {
	s, ok := w.editor.EditedView(normalize(id))
	if !ok {
		return droprate.SimResult{}, false
	}
	if opts.Resolve == nil {
		opts.Resolve = func(ref string) (loot.Structure, bool) {
			return w.editor.EditedView(normalize(ref))
		}
	}
	return droprate.Simulate(s, opts), true
}

// Diff compares the original of id with its edited view.
func (w *Workspace) Diff(id string) (delta.Delta, bool) {
	id = normalize(id)
	orig, ok := w.editor.Original(id)
	if !ok {
		return delta.Delta{}, false
	}
	view, ok := w.editor.EditedView(id)
	if !ok {
		return delta.Delta{}, false
	}
	return delta.Compare(orig, view), true
}

func (w *Workspace) Search(ctx context.Context, query string) []itemidx.Hit {
	return w.Index().Search(ctx, query)
}

func (w *Workspace) Bookmark(id string) {
	id = normalize(id)
	if id == "" {
		return
	}
	w.bookmarksMu.Lock()
	w.bookmarks[id] = true
	w.bookmarksMu.Unlock()
}

func (w *Workspace) Unbookmark(id string) {
	w.bookmarksMu.Lock()
	delete(w.bookmarks, normalize(id))
	w.bookmarksMu.Unlock()
}

func (w *Workspace) Bookmarks() []string {
	w.bookmarksMu.Lock()
	defer w.bookmarksMu.Unlock()
	out := make([]string, 0, len(w.bookmarks))
	for id := range w.bookmarks {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Reload reacts to registry changes: cached originals are dropped, edited documents are
// re-based onto the new text, and links and the index are rebuilt.
func (w *Workspace) Reload(ctx context.Context, changes []registry.Change) {
	tablesChanged := false
	for _, ch := range changes {
		if ch.Kind != registry.KindLootTable {
			continue
		}
		tablesChanged = true
		id := normalize(ch.ID)
		w.originals.Remove(id)
		if ch.Op == registry.ChangeRemoved {
			continue
		}
		if s, ok := w.loadOriginal(id); ok {
			w.editor.ReloadOriginal(id, s)
		}
	}
	if err := w.Relink(ctx); err != nil {
		w.logger.Warn("relink after reload", "error", err)
	}
	if tablesChanged {
		if err := w.Reindex(ctx); err != nil {
			w.logger.Warn("reindex after reload", "error", err)
		}
	}
}

// Watch follows src until ctx is done, invalidating cache (when set) before reloading.
func (w *Workspace) Watch(ctx context.Context, src *registry.DirRegistry, cache *registry.CachedRegistry) error {
	return src.Watch(ctx, func(changes []registry.Change) {
		w.logger.Info("datapack changed", "changes", len(changes))
		if cache != nil {
			cache.Invalidate(changes)
		}
		w.Reload(ctx, changes)
	})
}

// normalize namespaces a document id, keeping blank ids blank so callers reject them.
func normalize(id string) string {
	if strings.TrimSpace(id) == "" {
		return ""
	}
	return loot.NormalizeID(id)
}
