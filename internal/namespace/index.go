package namespace

import "sort"

// Index is an immutable snapshot of the unified namespace. A new Index is built and
// published wholesale on every rebuild (copy-on-write); readers never observe a partially
// updated view.
type Index struct {
	byPublic  map[key]*Entry
	bySession map[string][]*Entry // sessionName -> its entries, for fast eviction
}

func newIndex() *Index {
	return &Index{
		byPublic:  make(map[key]*Entry),
		bySession: make(map[string][]*Entry),
	}
}

func (idx *Index) add(e Entry) {
	entry := e
	idx.byPublic[key{kind: e.Kind, name: e.PublicName}] = &entry
	idx.bySession[e.SessionName] = append(idx.bySession[e.SessionName], &entry)
}

// Resolve looks up the session and original name behind a public name. ok is false if no
// such entry is published.
func (idx *Index) Resolve(publicName string, kind Kind) (sessionName, originalName string, ok bool) {
	entry, found := idx.byPublic[key{kind: kind, name: publicName}]
	if !found {
		return "", "", false
	}
	return entry.SessionName, entry.OriginalName, true
}

// ListAll returns every published entry of kind, in a deterministic order (sorted by public
// name) so that repeated calls against the same Index are byte-identical.
func (idx *Index) ListAll(kind Kind) []Entry {
	var out []Entry
	for k, e := range idx.byPublic {
		if k.kind == kind {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublicName < out[j].PublicName })
	return out
}

// EntriesForSession returns every entry currently published for sessionName, used to
// determine what to evict when a session is lost.
func (idx *Index) EntriesForSession(sessionName string) []Entry {
	entries := idx.bySession[sessionName]
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = *e
	}
	return out
}
