package leaderboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSort(t *testing.T) {
	entries := []Entry{
		{ID: "a", Score: 10},
		{ID: "b", Score: 30},
		{ID: "c", Score: 10},
		{ID: "d", Score: 20},
	}
	Sort(entries, 5)

	ids := make([]string, 0, len(entries))
	for i, e := range entries {
		ids = append(ids, e.ID)
		assert.Equal(t, 6+i, e.Rank)
	}
	assert.Equal(t, []string{"b", "d", "c", "a"}, ids)
}

func TestParseBoard(t *testing.T) {
	b, err := ParseBoard("")
	require.NoError(t, err)
	assert.Equal(t, BoardUsers, b)

	b, err = ParseBoard("clans")
	require.NoError(t, err)
	assert.Equal(t, BoardClans, b)

	_, err = ParseBoard("cohorts")
	assert.Error(t, err)
}

func TestPageHasMore(t *testing.T) {
	p := Page{Entries: make([]Entry, 10), Total: 25, Offset: 10}
	assert.True(t, p.HasMore())
	p.Offset = 15
	assert.False(t, p.HasMore())
}
