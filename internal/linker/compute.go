package linker

import (
	"context"
	"sort"
	"strings"

	"lootforge/internal/loot"
)

type Source string

const (
	SourceManual    Source = "manual"
	SourceExact     Source = "exact_match"
	SourceHeuristic Source = "heuristic"
	SourceNone      Source = "none"
)

const (
	ConfidenceManual   = 1.0
	ConfidenceExact    = 0.9
	ConfidenceCategory = 0.3
	maxTokenConfidence = 0.85
)

// TokenConfidence scores a token-overlap candidate; it stays below ConfidenceExact.
func TokenConfidence(overlap int) float64 {
	if overlap <= 0 {
		return 0
	}
	c := 0.5 + 0.1*float64(overlap-1)
	if c > maxTokenConfidence {
		return maxTokenConfidence
	}
	return c
}

// Link associates a structure with a loot table. A None link has no DocumentID and
// records that nothing matched.
type Link struct {
	StructureID string  `json:"structure_id"`
	DocumentID  string  `json:"document_id,omitempty"`
	Confidence  float64 `json:"confidence"`
	Source      Source  `json:"source"`
}

type Pair struct {
	StructureID string `json:"structure_id" yaml:"structure_id"`
	DocumentID  string `json:"document_id" yaml:"document_id"`
}

// Overrides are author decisions applied on top of the computed links.
type Overrides struct {
	Added   []Pair `json:"added" yaml:"added"`
	Removed []Pair `json:"removed" yaml:"removed"`
}

func (o Overrides) sets() (added, removed map[Pair]bool) {
	added = make(map[Pair]bool, len(o.Added))
	removed = make(map[Pair]bool, len(o.Removed))
	for _, p := range o.Added {
		added[p] = true
	}
	for _, p := range o.Removed {
		removed[p] = true
	}
	return added, removed
}

type table struct {
	id       string
	path     string
	stripped string
	tokens   map[string]bool
}

type matcher struct {
	rules     Rules
	stopwords map[string]bool
	tables    []table
	keywords  []string
}

// Compute links every structure to the tables it most plausibly uses. Tiers are tried in
// order (manual, exact, token overlap, category) and the first one with candidates wins.
// Inputs are sorted and deduplicated first, so the result does not depend on their order.
func Compute(ctx context.Context, structures, tables []string, rules Rules, ov Overrides) (*Index, error) {
	m := newMatcher(rules, sortedUnique(tables))
	added, removed := ov.sets()

	byStructure := make(map[string][]Link)
	ids := sortedUnique(structures)
	for _, p := range ov.Added {
		ids = append(ids, p.StructureID)
	}
	ids = sortedUnique(ids)

	for _, sid := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		best := map[string]Link{}
		keep := func(l Link) {
			if removed[Pair{StructureID: l.StructureID, DocumentID: l.DocumentID}] {
				return
			}
			if cur, ok := best[l.DocumentID]; ok && cur.Confidence >= l.Confidence {
				return
			}
			best[l.DocumentID] = l
		}
		for _, l := range m.candidates(sid) {
			keep(l)
		}
		for p := range added {
			if p.StructureID == sid {
				keep(Link{StructureID: sid, DocumentID: p.DocumentID, Confidence: ConfidenceManual, Source: SourceManual})
			}
		}
		links := make([]Link, 0, len(best))
		for _, l := range best {
			links = append(links, l)
		}
		sortLinks(links)
		if len(links) == 0 {
			links = []Link{{StructureID: sid, Source: SourceNone}}
		}
		byStructure[sid] = links
	}
	return newIndex(byStructure), nil
}

func newMatcher(rules Rules, tableIDs []string) *matcher {
	m := &matcher{
		rules:     rules,
		stopwords: rules.stopwordSet(),
	}
	for _, id := range tableIDs {
		path := strings.ToLower(loot.LocalName(id))
		t := table{id: id, path: path, stripped: stripPrefix(path, rules.Prefixes)}
		t.tokens = m.tokens(path)
		m.tables = append(m.tables, t)
	}
	for kw := range rules.Manual {
		m.keywords = append(m.keywords, kw)
	}
	sort.Strings(m.keywords)
	return m
}

func (m *matcher) candidates(structureID string) []Link {
	path := strings.ToLower(loot.LocalName(structureID))
	tiers := []func(string, string) []Link{m.manual, m.exact, m.overlap, m.category}
	for _, tier := range tiers {
		if links := tier(structureID, path); len(links) > 0 {
			return links
		}
	}
	return nil
}

func (m *matcher) manual(sid, path string) []Link {
	var out []Link
	for _, kw := range m.keywords {
		if !strings.Contains(path, strings.ToLower(kw)) {
			continue
		}
		for _, suffix := range m.rules.Manual[kw] {
			suffix = strings.ToLower(strings.Trim(suffix, "/"))
			for _, t := range m.tables {
				if t.path == suffix || strings.HasSuffix(t.path, "/"+suffix) {
					out = append(out, Link{StructureID: sid, DocumentID: t.id, Confidence: ConfidenceManual, Source: SourceManual})
				}
			}
		}
	}
	return out
}

func (m *matcher) exact(sid, path string) []Link {
	targets := []string{path}
	if alias, ok := m.rules.Aliases[path]; ok {
		targets = append(targets, strings.ToLower(alias))
	}
	var out []Link
	for _, t := range m.tables {
		for _, target := range targets {
			if t.path == target || t.stripped == target {
				out = append(out, Link{StructureID: sid, DocumentID: t.id, Confidence: ConfidenceExact, Source: SourceExact})
				break
			}
		}
	}
	return out
}

func (m *matcher) overlap(sid, path string) []Link {
	mine := m.tokens(path)
	if len(mine) == 0 {
		return nil
	}
	var out []Link
	for _, t := range m.tables {
		n := 0
		for tok := range mine {
			if t.tokens[tok] {
				n++
			}
		}
		if n > 0 {
			out = append(out, Link{StructureID: sid, DocumentID: t.id, Confidence: TokenConfidence(n), Source: SourceHeuristic})
		}
	}
	return out
}

func (m *matcher) category(sid, path string) []Link {
	var out []Link
	for _, c := range m.rules.Categories {
		family := strings.ToLower(c.Family)
		prefix := strings.ToLower(c.TablePrefix)
		if !strings.Contains(path, family) {
			continue
		}
		for _, t := range m.tables {
			if !strings.HasPrefix(t.path, prefix) {
				continue
			}
			rest := strings.TrimPrefix(t.path, prefix)
			if rest == "" {
				continue
			}
			if strings.Contains(rest, family) || strings.Contains(rest, path) || strings.Contains(path, rest) {
				out = append(out, Link{StructureID: sid, DocumentID: t.id, Confidence: ConfidenceCategory, Source: SourceHeuristic})
			}
		}
	}
	return out
}

func (m *matcher) tokens(path string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range strings.FieldsFunc(path, func(r rune) bool { return r == '_' || r == '/' }) {
		tok = strings.ToLower(tok)
		if len(tok) <= m.rules.MinTokenLength || m.stopwords[tok] {
			continue
		}
		out[tok] = true
	}
	return out
}

func stripPrefix(path string, prefixes []string) string {
	for _, p := range prefixes {
		p = strings.ToLower(p)
		if p != "" && strings.HasPrefix(path, p) {
			return strings.TrimPrefix(path, p)
		}
	}
	return path
}

// sortLinks orders by confidence (highest first), then document id.
func sortLinks(links []Link) {
	sort.Slice(links, func(i, j int) bool {
		if links[i].Confidence != links[j].Confidence {
			return links[i].Confidence > links[j].Confidence
		}
		if links[i].DocumentID != links[j].DocumentID {
			return links[i].DocumentID < links[j].DocumentID
		}
		return links[i].StructureID < links[j].StructureID
	})
}

func sortedUnique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
