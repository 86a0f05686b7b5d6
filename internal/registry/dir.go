package registry

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"lootforge/internal/loot"
	"lootforge/internal/safeio"
)

// kindDirs are the datapack folders, below data/<namespace>/, holding each corpus.
var kindDirs = map[Kind][]string{
	KindLootTable: {"loot_table", "loot_tables"},
	KindStructure: {"worldgen/structure"},
}

// ChangeOp classifies a document change seen by Watch.
type ChangeOp string

const (
	ChangeAdded    ChangeOp = "added"
	ChangeModified ChangeOp = "modified"
	ChangeRemoved  ChangeOp = "removed"
)

type Change struct {
	Kind Kind
	ID   string
	Op   ChangeOp
}

// DirRegistry serves a datapack-style tree:
//
//	<root>/data/<ns>/loot_table/<path>.json        (loot_tables/ also accepted)
//	<root>/data/<ns>/worldgen/structure/<path>.json
//
// A root without a data/ folder is treated as the data folder itself.
type DirRegistry struct {
	fs       *safeio.SafeFS
	dataDir  string
	logger   *slog.Logger
	debounce time.Duration

	mu    sync.RWMutex
	files map[Kind]map[string]string // kind -> id -> root-relative path
}

type DirOption func(*DirRegistry)

func WithLogger(l *slog.Logger) DirOption {
	return func(d *DirRegistry) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithDebounce sets how long Watch waits for a burst of file events to settle.
func WithDebounce(window time.Duration) DirOption {
	return func(d *DirRegistry) {
		if window > 0 {
			d.debounce = window
		}
	}
}

// OpenDir scans root and returns a registry over it.
func OpenDir(root string, opts ...DirOption) (*DirRegistry, error) {
	fsys, err := safeio.NewSafeFS(root)
	if err != nil {
		return nil, fmt.Errorf("open datapack %s: %w", root, err)
	}
	d := &DirRegistry{
		fs:       fsys,
		dataDir:  ".",
		logger:   slog.Default(),
		debounce: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	if info, err := fsys.SafeStat("data"); err == nil && info.IsDir() {
		d.dataDir = "data"
	}
	if err := d.Rescan(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DirRegistry) Root() string { return d.fs.Root() }

func (d *DirRegistry) ListIDs(kind Kind) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sortedKeys(d.files[kind])
}

func (d *DirRegistry) RawJSON(id string) ([]byte, bool) {
	d.mu.RLock()
	rel, ok := d.files[KindLootTable][loot.NormalizeID(id)]
	d.mu.RUnlock()
	if !ok {
		return nil, false
	}
	raw, err := d.fs.SafeReadFile(rel)
	if err != nil {
		d.logger.Warn("read loot table", "doc", id, "error", err)
		return nil, false
	}
	return raw, true
}

// Rescan rebuilds the id maps from disk.
func (d *DirRegistry) Rescan() error {
	_, err := d.rescan()
	return err
}

func (d *DirRegistry) rescan() (map[Kind]map[string]string, error) {
	files := map[Kind]map[string]string{
		KindLootTable: {},
		KindStructure: {},
	}
	err := d.fs.WalkFiles(d.dataDir, func(rel string) error {
		if kind, id, ok := d.classify(rel); ok {
			files[kind][id] = rel
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan datapack: %w", err)
	}
	d.mu.Lock()
	prev := d.files
	d.files = files
	d.mu.Unlock()
	d.logger.Debug("datapack scanned", "root", d.fs.Root(),
		"loot_tables", len(files[KindLootTable]), "structures", len(files[KindStructure]))
	return prev, nil
}

// classify maps a root-relative file path to its corpus and id.
func (d *DirRegistry) classify(rel string) (Kind, string, bool) {
	if !strings.EqualFold(path.Ext(rel), ".json") {
		return "", "", false
	}
	if d.dataDir != "." {
		rel = strings.TrimPrefix(rel, d.dataDir+"/")
	}
	ns, rest, ok := strings.Cut(rel, "/")
	if !ok || ns == "" {
		return "", "", false
	}
	for _, kind := range []Kind{KindLootTable, KindStructure} {
		for _, dir := range kindDirs[kind] {
			if p, found := strings.CutPrefix(rest, dir+"/"); found && p != "" {
				return kind, ns + ":" + strings.TrimSuffix(p, path.Ext(p)), true
			}
		}
	}
	return "", "", false
}

// Watch follows the tree until ctx is done, rescanning after each burst of file
// events and reporting which documents appeared, changed or disappeared.
func (d *DirRegistry) Watch(ctx context.Context, onChange func([]Change)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch datapack: %w", err)
	}
	defer w.Close()
	if err := d.addRecursive(w, d.fs.Root()); err != nil {
		return fmt.Errorf("watch datapack: %w", err)
	}

	touched := map[string]bool{}
	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := d.addRecursive(w, ev.Name); err != nil {
						d.logger.Warn("watch new directory", "path", ev.Name, "error", err)
					}
				}
			}
			if rel, err := filepath.Rel(d.fs.Root(), ev.Name); err == nil {
				touched[filepath.ToSlash(rel)] = true
			}
			if timer == nil {
				timer = time.NewTimer(d.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(d.debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			d.logger.Warn("datapack watcher", "error", err)
		case <-timerC:
			timer, timerC = nil, nil
			changes, err := d.refresh(touched)
			touched = map[string]bool{}
			if err != nil {
				d.logger.Warn("datapack rescan", "error", err)
				continue
			}
			if len(changes) > 0 && onChange != nil {
				onChange(changes)
			}
		}
	}
}

func (d *DirRegistry) refresh(touched map[string]bool) ([]Change, error) {
	prev, err := d.rescan()
	if err != nil {
		return nil, err
	}
	d.mu.RLock()
	cur := d.files
	d.mu.RUnlock()

	var changes []Change
	for _, kind := range []Kind{KindLootTable, KindStructure} {
		for _, id := range sortedKeys(cur[kind]) {
			rel := cur[kind][id]
			if _, existed := prev[kind][id]; !existed {
				changes = append(changes, Change{Kind: kind, ID: id, Op: ChangeAdded})
			} else if touched[rel] {
				changes = append(changes, Change{Kind: kind, ID: id, Op: ChangeModified})
			}
		}
		for _, id := range sortedKeys(prev[kind]) {
			if _, still := cur[kind][id]; !still {
				changes = append(changes, Change{Kind: kind, ID: id, Op: ChangeRemoved})
			}
		}
	}
	return changes, nil
}

func (d *DirRegistry) addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if strings.HasPrefix(entry.Name(), ".") && p != root {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
