package namespace

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/mcp"

	"atrax/internal/config"
)

// Snapshot is the capability set one session contributes to the merge.
type Snapshot struct {
	SessionName string
	Tools       []mcp.Tool
	Resources   []mcp.Resource
	Prompts     []mcp.Prompt
}

// Conflict records one name collision the active ConflictStrategy resolved by omission,
// surfaced so the Registry can mark the losing session Degraded per the spec's Reject
// strategy (or simply logged for FirstWins, where shadowing is expected behavior).
type Conflict struct {
	Kind         Kind
	OriginalName string
	OwningSession string
	ShadowedSession string
}

// Merger holds one Snapshot per live session and rebuilds an immutable Index every time a
// session's snapshot is published or evicted. Rebuilds are idempotent: rebuilding twice from
// the same snapshots yields byte-identical Index contents, since entries are always produced
// in sorted session-name order.
type Merger struct {
	strategy config.ConflictStrategy

	mu        sync.Mutex
	snapshots map[string]Snapshot

	current atomic.Pointer[Index]
}

// NewMerger constructs a Merger with an initially empty Index published.
func NewMerger(strategy config.ConflictStrategy) *Merger {
	m := &Merger{
		strategy:  strategy,
		snapshots: make(map[string]Snapshot),
	}
	m.current.Store(newIndex())
	return m
}

// Current returns the most recently published Index. Safe to call concurrently with Publish
// and Evict; readers always see a complete, consistent snapshot.
func (m *Merger) Current() *Index {
	return m.current.Load()
}

// Publish replaces sessionName's contributed capability set and rebuilds the Index.
func (m *Merger) Publish(snap Snapshot) ([]Conflict, *Index) {
	m.mu.Lock()
	m.snapshots[snap.SessionName] = snap
	idx, conflicts := m.rebuildLocked()
	m.mu.Unlock()

	m.current.Store(idx)
	return conflicts, idx
}

// Evict removes sessionName's contributed capability set entirely and rebuilds the Index,
// allowing a FirstWins-shadowed entry from another session to be promoted.
func (m *Merger) Evict(sessionName string) *Index {
	m.mu.Lock()
	delete(m.snapshots, sessionName)
	idx, _ := m.rebuildLocked()
	m.mu.Unlock()

	m.current.Store(idx)
	return idx
}

func (m *Merger) rebuildLocked() (*Index, []Conflict) {
	names := make([]string, 0, len(m.snapshots))
	for name := range m.snapshots {
		names = append(names, name)
	}
	sort.Strings(names)

	idx := newIndex()
	var conflicts []Conflict

	claimed := map[key]string{} // kind+originalName -> owning session, for FirstWins/Reject

	for _, sessionName := range names {
		snap := m.snapshots[sessionName]

		for _, tool := range snap.Tools {
			m.place(idx, claimed, &conflicts, sessionName, KindTool, tool.Name)
		}
		for _, res := range snap.Resources {
			m.place(idx, claimed, &conflicts, sessionName, KindResource, res.URI)
		}
		for _, prompt := range snap.Prompts {
			m.place(idx, claimed, &conflicts, sessionName, KindPrompt, prompt.Name)
		}
	}

	return idx, conflicts
}

func (m *Merger) place(idx *Index, claimed map[key]string, conflicts *[]Conflict, sessionName string, kind Kind, originalName string) {
	switch m.strategy {
	case config.FirstWins:
		k := key{kind: kind, name: originalName}
		if owner, taken := claimed[k]; taken {
			*conflicts = append(*conflicts, Conflict{Kind: kind, OriginalName: originalName, OwningSession: owner, ShadowedSession: sessionName})
			return
		}
		claimed[k] = sessionName
		idx.add(Entry{PublicName: originalName, SessionName: sessionName, OriginalName: originalName, Kind: kind})

	case config.Reject:
		k := key{kind: kind, name: originalName}
		if owner, taken := claimed[k]; taken {
			*conflicts = append(*conflicts, Conflict{Kind: kind, OriginalName: originalName, OwningSession: owner, ShadowedSession: sessionName})
			return
		}
		claimed[k] = sessionName
		idx.add(Entry{PublicName: originalName, SessionName: sessionName, OriginalName: originalName, Kind: kind})

	default: // PrefixWithServerName
		publicName := originalName
		if kind == KindResource {
			publicName = prefixResourceURI(sessionName, originalName)
		} else {
			publicName = fmt.Sprintf("%s__%s", sessionName, originalName)
		}
		idx.add(Entry{PublicName: publicName, SessionName: sessionName, OriginalName: originalName, Kind: kind})
	}
}

// prefixResourceURI inserts sessionName as the first path segment after the scheme, e.g.
// "file:///x" with session "fs" becomes "file:///fs/x".
func prefixResourceURI(sessionName, uri string) string {
	idx := strings.Index(uri, "://")
	if idx < 0 {
		return fmt.Sprintf("%s/%s", sessionName, uri)
	}
	scheme := uri[:idx+3]
	rest := strings.TrimPrefix(uri[idx+3:], "/")
	return fmt.Sprintf("%s/%s/%s", scheme, sessionName, rest)
}
