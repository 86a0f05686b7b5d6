package itemidx

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"runtime"
	"sort"
	"strings"
	"sync"

	"lootforge/internal/loot"
)

/*
Package itemidx is an inverted index from referenced identifiers to the
entries that reference them.

Rules:
- Every entry carrying an identifier (item, tag, table reference) is indexed.
- Identifiers nested inside composite entries are attributed to their top-level entry.
- Buckets are keyed by an fnv hash of the normalised identifier.
- The aggregate index builds asynchronously; Search and Find block until completion.
*/

// Hit locates one top-level entry that references an identifier.
type Hit struct {
	DocumentID string `json:"document_id"`
	Pool       int    `json:"pool"`
	Entry      int    `json:"entry"`
	Identifier string `json:"identifier"`
	Context    string `json:"context"`
}

func (h Hit) key() hitKey { return hitKey{h.DocumentID, h.Pool, h.Entry} }

type hitKey struct {
	doc         string
	pool, entry int
}

// Loader supplies the structure to index for a document id.
type Loader interface {
	LoadStructure(ctx context.Context, id string) (loot.Structure, bool, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, id string) (loot.Structure, bool, error)

func (f LoaderFunc) LoadStructure(ctx context.Context, id string) (loot.Structure, bool, error) {
	return f(ctx, id)
}

// Index aggregates hits across documents.
type Index struct {
	mu     sync.RWMutex
	byHash map[uint64][]Hit
	// ids holds every distinct identifier for substring search.
	ids map[string]bool
	// docs counts indexed documents.
	docs int

	doneOnce sync.Once
	doneCh   chan struct{}

	errMu    sync.Mutex
	firstErr error
}

func newIndex() *Index {
	return &Index{
		byHash: make(map[uint64][]Hit),
		ids:    make(map[string]bool),
		doneCh: make(chan struct{}),
	}
}

// Build indexes the given documents synchronously.
func Build(docs map[string]loot.Structure) *Index {
	x := newIndex()
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		x.addDocument(id, docs[id])
	}
	x.finish()
	return x
}

// StartFromLoader indexes the listed documents with a worker pool. It returns
// immediately; Wait, Search and Find synchronise on completion. A document the
// loader reports absent is skipped; the first load error is kept for Wait.
func StartFromLoader(ctx context.Context, l Loader, ids []string, workers int) *Index {
	x := newIndex()
	if l == nil {
		x.setErr(errors.New("itemidx: loader is nil"))
		x.finish()
		return x
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
		if workers <= 0 {
			workers = 1
		}
	}
	tasks := make(chan string, len(ids))
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id, ok := <-tasks:
					if !ok {
						return
					}
					x.indexOne(ctx, l, id)
				}
			}
		}()
	}
	go func() {
		defer func() {
			close(tasks)
			wg.Wait()
			if err := ctx.Err(); err != nil {
				x.setErr(err)
			}
			x.finish()
		}()
		for _, id := range ids {
			if id == "" {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case tasks <- id:
			}
		}
	}()
	return x
}

// Wait blocks until indexing is completed or ctx is canceled.
func (x *Index) Wait(ctx context.Context) error {
	select {
	case <-x.doneCh:
		return x.getErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Search matches query case-insensitively as a substring of either the full
// identifier or its local name. Hits are unique per (document, pool, entry) and
// ordered by document, pool, then entry. An empty query matches nothing.
func (x *Index) Search(ctx context.Context, query string) []Hit {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	if err := x.Wait(ctx); err != nil && ctx.Err() != nil {
		return nil
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	seen := map[hitKey]bool{}
	var out []Hit
	for id := range x.ids {
		full := strings.ToLower(id)
		if !strings.Contains(full, q) && !strings.Contains(strings.ToLower(loot.LocalName(id)), q) {
			continue
		}
		for _, h := range x.bucket(id) {
			if seen[h.key()] {
				continue
			}
			seen[h.key()] = true
			out = append(out, h)
		}
	}
	sortHits(out)
	return out
}

// Find returns the exact bucket for id.
func (x *Index) Find(ctx context.Context, id string) []Hit {
	if err := x.Wait(ctx); err != nil && ctx.Err() != nil {
		return nil
	}
	id = loot.NormalizeID(id)
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := append([]Hit(nil), x.bucket(id)...)
	sortHits(out)
	return out
}

// FindDocumentsForIdentifier lists the documents referencing id, sorted.
func (x *Index) FindDocumentsForIdentifier(ctx context.Context, id string) []string {
	seen := map[string]bool{}
	var out []string
	for _, h := range x.Find(ctx, id) {
		if !seen[h.DocumentID] {
			seen[h.DocumentID] = true
			out = append(out, h.DocumentID)
		}
	}
	sort.Strings(out)
	return out
}

// Identifiers lists every indexed identifier, sorted.
func (x *Index) Identifiers(ctx context.Context) []string {
	_ = x.Wait(ctx)
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]string, 0, len(x.ids))
	for id := range x.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Documents is the number of documents indexed so far.
func (x *Index) Documents() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.docs
}

/* -------- internal helpers -------- */

func (x *Index) indexOne(ctx context.Context, l Loader, id string) {
	s, ok, err := l.LoadStructure(ctx, id)
	if err != nil {
		x.setErr(fmt.Errorf("itemidx: load %s: %w", id, err))
		return
	}
	if !ok {
		return
	}
	x.addDocument(id, s)
}

func (x *Index) addDocument(docID string, s loot.Structure) {
	var hits []Hit
	for pi, p := range s.Pools {
		for ei, e := range p.Entries {
			for _, id := range identifiers(e, nil) {
				hits = append(hits, Hit{
					DocumentID: docID,
					Pool:       pi,
					Entry:      ei,
					Identifier: id,
					Context:    renderContext(pi, ei, p, e, id),
				})
			}
		}
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.docs++
	for _, h := range hits {
		key := hashID(h.Identifier)
		x.byHash[key] = append(x.byHash[key], h)
		x.ids[h.Identifier] = true
	}
}

// bucket filters hash collisions out of a posting list; callers hold mu.
func (x *Index) bucket(id string) []Hit {
	var out []Hit
	for _, h := range x.byHash[hashID(id)] {
		if h.Identifier == id {
			out = append(out, h)
		}
	}
	return out
}

func (x *Index) finish() {
	x.doneOnce.Do(func() { close(x.doneCh) })
}

func (x *Index) setErr(err error) {
	if err == nil {
		return
	}
	x.errMu.Lock()
	if x.firstErr == nil {
		x.firstErr = err
	}
	x.errMu.Unlock()
}

func (x *Index) getErr() error {
	x.errMu.Lock()
	defer x.errMu.Unlock()
	return x.firstErr
}

// identifiers collects the distinct identifiers of e and its descendants.
func identifiers(e loot.Entry, acc []string) []string {
	if e.Kind.HasIdentifier() && strings.TrimSpace(e.Identifier) != "" {
		id := loot.NormalizeID(e.Identifier)
		dup := false
		for _, have := range acc {
			if have == id {
				dup = true
				break
			}
		}
		if !dup {
			acc = append(acc, id)
		}
	}
	for _, c := range e.Children {
		acc = identifiers(c, acc)
	}
	return acc
}

func renderContext(pi, ei int, p loot.Pool, e loot.Entry, id string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "pool %d entry %d: %s %s", pi, ei, e.Kind, id)
	if e.Kind.IsComposite() {
		b.WriteString(" (nested)")
	}
	if total := p.TotalWeight(); total > 0 && e.Weight > 0 {
		fmt.Fprintf(&b, " weight %d/%d", e.Weight, total)
	} else {
		fmt.Fprintf(&b, " weight %d", e.Weight)
	}
	if count, ok := e.Count(); ok {
		fmt.Fprintf(&b, " count %s", loot.RangeString(count))
	}
	return b.String()
}

func hashID(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}

func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		if a.Pool != b.Pool {
			return a.Pool < b.Pool
		}
		if a.Entry != b.Entry {
			return a.Entry < b.Entry
		}
		return a.Identifier < b.Identifier
	})
}
