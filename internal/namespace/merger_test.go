package namespace

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atrax/internal/config"
)

func TestMerger_PrefixWithServerName_AlwaysUnique(t *testing.T) {
	m := NewMerger(config.PrefixWithServerName)

	_, idx := m.Publish(Snapshot{SessionName: "serverA", Tools: []mcp.Tool{{Name: "search"}}})
	_, idx = m.Publish(Snapshot{SessionName: "serverB", Tools: []mcp.Tool{{Name: "search"}}})

	entries := idx.ListAll(KindTool)
	require.Len(t, entries, 2)
	assert.Equal(t, "serverA__search", entries[0].PublicName)
	assert.Equal(t, "serverB__search", entries[1].PublicName)

	session, original, ok := idx.Resolve("serverA__search", KindTool)
	require.True(t, ok)
	assert.Equal(t, "serverA", session)
	assert.Equal(t, "search", original)
}

func TestMerger_PrefixWithServerName_ResourceURIRewrite(t *testing.T) {
	m := NewMerger(config.PrefixWithServerName)
	_, idx := m.Publish(Snapshot{SessionName: "fs", Resources: []mcp.Resource{{URI: "file:///x"}}})

	entries := idx.ListAll(KindResource)
	require.Len(t, entries, 1)
	assert.Equal(t, "file:///fs/x", entries[0].PublicName)

	session, original, ok := idx.Resolve("file:///fs/x", KindResource)
	require.True(t, ok)
	assert.Equal(t, "fs", session)
	assert.Equal(t, "file:///x", original)
}

func TestMerger_FirstWins_SortedOrderOwnsConflict(t *testing.T) {
	m := NewMerger(config.FirstWins)

	m.Publish(Snapshot{SessionName: "serverB", Tools: []mcp.Tool{{Name: "search"}}})
	conflicts, idx := m.Publish(Snapshot{SessionName: "serverA", Tools: []mcp.Tool{{Name: "search"}}})

	require.Len(t, conflicts, 1)
	assert.Equal(t, "serverA", conflicts[0].OwningSession)
	assert.Equal(t, "serverB", conflicts[0].ShadowedSession)

	session, _, ok := idx.Resolve("search", KindTool)
	require.True(t, ok)
	assert.Equal(t, "serverA", session)
}

func TestMerger_FirstWins_PromotesShadowedEntryOnEviction(t *testing.T) {
	m := NewMerger(config.FirstWins)
	m.Publish(Snapshot{SessionName: "serverA", Tools: []mcp.Tool{{Name: "search"}}})
	m.Publish(Snapshot{SessionName: "serverB", Tools: []mcp.Tool{{Name: "search"}}})

	idx := m.Evict("serverA")

	session, _, ok := idx.Resolve("search", KindTool)
	require.True(t, ok)
	assert.Equal(t, "serverB", session)
}

func TestMerger_Reject_OmitsLaterConflictingEntry(t *testing.T) {
	m := NewMerger(config.Reject)
	m.Publish(Snapshot{SessionName: "serverA", Tools: []mcp.Tool{{Name: "search"}}})
	conflicts, idx := m.Publish(Snapshot{SessionName: "serverB", Tools: []mcp.Tool{{Name: "search"}}})

	require.Len(t, conflicts, 1)
	assert.Equal(t, "serverB", conflicts[0].ShadowedSession)

	entries := idx.ListAll(KindTool)
	require.Len(t, entries, 1)
	assert.Equal(t, "serverA", entries[0].SessionName)
}

func TestMerger_RebuildIsIdempotent(t *testing.T) {
	m := NewMerger(config.PrefixWithServerName)
	m.Publish(Snapshot{SessionName: "serverB", Tools: []mcp.Tool{{Name: "b_tool"}}})
	m.Publish(Snapshot{SessionName: "serverA", Tools: []mcp.Tool{{Name: "a_tool"}}})

	first := m.Current().ListAll(KindTool)
	_, second := m.Publish(Snapshot{SessionName: "serverA", Tools: []mcp.Tool{{Name: "a_tool"}}})

	assert.Equal(t, first, second.ListAll(KindTool))
}

func TestMerger_EvictRemovesAllEntriesForSession(t *testing.T) {
	m := NewMerger(config.PrefixWithServerName)
	m.Publish(Snapshot{SessionName: "fs", Tools: []mcp.Tool{{Name: "read"}, {Name: "write"}}})

	idx := m.Evict("fs")
	assert.Empty(t, idx.ListAll(KindTool))
	assert.Empty(t, idx.EntriesForSession("fs"))
}
