package linker

import (
	"encoding/json"
	"sort"
)

// Index holds both directions of one link computation. It is immutable once built.
type Index struct {
	structures  []string
	byStructure map[string][]Link
	byDocument  map[string][]Link
}

func newIndex(byStructure map[string][]Link) *Index {
	idx := &Index{
		byStructure: byStructure,
		byDocument:  make(map[string][]Link),
	}
	for sid, links := range byStructure {
		idx.structures = append(idx.structures, sid)
		for _, l := range links {
			if l.Source == SourceNone {
				continue
			}
			idx.byDocument[l.DocumentID] = append(idx.byDocument[l.DocumentID], l)
		}
	}
	sort.Strings(idx.structures)
	for _, links := range idx.byDocument {
		sort.Slice(links, func(i, j int) bool {
			if links[i].Confidence != links[j].Confidence {
				return links[i].Confidence > links[j].Confidence
			}
			return links[i].StructureID < links[j].StructureID
		})
	}
	return idx
}

func emptyIndex() *Index {
	return newIndex(map[string][]Link{})
}

// ForStructure returns the links of a structure. A structure that matched nothing has a
// single SourceNone link; one that was never linked has none at all.
func (x *Index) ForStructure(id string) []Link {
	if x == nil {
		return nil
	}
	return append([]Link(nil), x.byStructure[id]...)
}

// ForDocument returns the structures linked to a table, best first.
func (x *Index) ForDocument(id string) []Link {
	if x == nil {
		return nil
	}
	return append([]Link(nil), x.byDocument[id]...)
}

// Linked reports whether the structure has been through a link computation.
func (x *Index) Linked(id string) bool {
	if x == nil {
		return false
	}
	_, ok := x.byStructure[id]
	return ok
}

func (x *Index) Structures() []string {
	if x == nil {
		return nil
	}
	return append([]string(nil), x.structures...)
}

// Links flattens the index in structure order.
func (x *Index) Links() []Link {
	if x == nil {
		return nil
	}
	var out []Link
	for _, sid := range x.structures {
		out = append(out, x.byStructure[sid]...)
	}
	return out
}

// Unlinked lists structures whose only link is SourceNone.
func (x *Index) Unlinked() []string {
	var out []string
	for _, sid := range x.Structures() {
		links := x.byStructure[sid]
		if len(links) == 1 && links[0].Source == SourceNone {
			out = append(out, sid)
		}
	}
	return out
}

type indexJSON struct {
	Structures []structureLinks `json:"structures"`
}

type structureLinks struct {
	StructureID string `json:"structure_id"`
	Links       []Link `json:"links"`
}

// MarshalJSON renders the export form; output order is fully determined by the contents.
func (x *Index) MarshalJSON() ([]byte, error) {
	out := indexJSON{Structures: []structureLinks{}}
	if x != nil {
		for _, sid := range x.structures {
			out.Structures = append(out.Structures, structureLinks{StructureID: sid, Links: x.byStructure[sid]})
		}
	}
	return json.Marshal(out)
}
