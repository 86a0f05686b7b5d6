package linker

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Observer is told how long each successful rebuild took.
type Observer interface {
	ObserveRebuild(d time.Duration, links int)
}

// Linker serves the current link index and rebuilds it from the registry corpora. A
// rebuild never blocks readers: they keep the previous index until the new one is swapped in.
type Linker struct {
	rules    Rules
	logger   *slog.Logger
	observer Observer

	current atomic.Pointer[Index]

	// mu serialises rebuilds and guards the inputs below.
	mu         sync.Mutex
	structures []string
	tables     []string
	overrides  Overrides
}

type Option func(*Linker)

func WithLogger(l *slog.Logger) Option {
	return func(k *Linker) {
		if l != nil {
			k.logger = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(k *Linker) { k.observer = o }
}

func WithOverrides(ov Overrides) Option {
	return func(k *Linker) { k.overrides = ov }
}

func New(rules Rules, opts ...Option) *Linker {
	l := &Linker{rules: rules, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	l.current.Store(emptyIndex())
	return l
}

// Index returns the index currently served. It is never nil.
func (l *Linker) Index() *Index {
	return l.current.Load()
}

// Rebuild recomputes every link from the given corpora and swaps the result in.
// On error (including cancellation) the served index is left as it was.
func (l *Linker) Rebuild(ctx context.Context, structures, tables []string) error {
	structures = append([]string(nil), structures...)
	tables = append([]string(nil), tables...)
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.compute(ctx, structures, tables, l.overrides); err != nil {
		return err
	}
	l.structures, l.tables = structures, tables
	return nil
}

// RebuildAsync runs Rebuild on its own goroutine. The channel yields its result once.
func (l *Linker) RebuildAsync(ctx context.Context, structures, tables []string) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- l.Rebuild(ctx, structures, tables)
	}()
	return done
}

func (l *Linker) compute(ctx context.Context, structures, tables []string, ov Overrides) error {
	start := time.Now()
	idx, err := Compute(ctx, structures, tables, l.rules, ov)
	if err != nil {
		l.logger.Warn("link rebuild aborted", "error", err)
		return err
	}
	l.current.Store(idx)
	elapsed := time.Since(start)
	links := len(idx.Links())
	l.logger.Debug("links rebuilt", "structures", len(idx.structures), "links", links, "elapsed", elapsed)
	if l.observer != nil {
		l.observer.ObserveRebuild(elapsed, links)
	}
	return nil
}

// AddLink records an author-added link and relinks with the last corpora.
func (l *Linker) AddLink(ctx context.Context, structureID, tableID string) error {
	p, ok := pair(structureID, tableID)
	if !ok {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides.Removed = without(l.overrides.Removed, p)
	l.overrides.Added = append(without(l.overrides.Added, p), p)
	return l.compute(ctx, l.structures, l.tables, l.overrides)
}

// RemoveLink suppresses a link whichever tier produced it and relinks.
func (l *Linker) RemoveLink(ctx context.Context, structureID, tableID string) error {
	p, ok := pair(structureID, tableID)
	if !ok {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides.Added = without(l.overrides.Added, p)
	l.overrides.Removed = append(without(l.overrides.Removed, p), p)
	return l.compute(ctx, l.structures, l.tables, l.overrides)
}

// ClearOverride forgets any author decision about the pair.
func (l *Linker) ClearOverride(ctx context.Context, structureID, tableID string) error {
	p, ok := pair(structureID, tableID)
	if !ok {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides.Added = without(l.overrides.Added, p)
	l.overrides.Removed = without(l.overrides.Removed, p)
	return l.compute(ctx, l.structures, l.tables, l.overrides)
}

// SetOverrides replaces all author decisions, e.g. when a session is loaded.
func (l *Linker) SetOverrides(ctx context.Context, ov Overrides) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides = Overrides{
		Added:   append([]Pair(nil), ov.Added...),
		Removed: append([]Pair(nil), ov.Removed...),
	}
	return l.compute(ctx, l.structures, l.tables, l.overrides)
}

func (l *Linker) Overrides() Overrides {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Overrides{
		Added:   append([]Pair(nil), l.overrides.Added...),
		Removed: append([]Pair(nil), l.overrides.Removed...),
	}
}

func pair(structureID, tableID string) (Pair, bool) {
	p := Pair{StructureID: strings.TrimSpace(structureID), DocumentID: strings.TrimSpace(tableID)}
	return p, p.StructureID != "" && p.DocumentID != ""
}

func without(pairs []Pair, p Pair) []Pair {
	var out []Pair
	for _, q := range pairs {
		if q != p {
			out = append(out, q)
		}
	}
	return out
}
