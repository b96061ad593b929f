// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package scoreboard_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dctf/server/scoreboard"
)

func TestRankEntriesScoreDescending(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	entries := []scoreboard.Entry{
		{SolverKey: "team:1", Score: 100, LastActive: base},
		{SolverKey: "team:2", Score: 300, LastActive: base},
		{SolverKey: "team:3", Score: 200, LastActive: base},
	}

	ranked := scoreboard.RankEntries(entries)
	require.Equal(t, "team:2", ranked[0].SolverKey)
	require.Equal(t, "team:3", ranked[1].SolverKey)
	require.Equal(t, "team:1", ranked[2].SolverKey)
	require.Equal(t, 1, ranked[0].Rank)
	require.Equal(t, 2, ranked[1].Rank)
	require.Equal(t, 3, ranked[2].Rank)
}

func TestRankEntriesTieBreakByLastActive(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	entries := []scoreboard.Entry{
		{SolverKey: "team:slow", Score: 500, LastActive: base.Add(2 * time.Hour)},
		{SolverKey: "team:fast", Score: 500, LastActive: base.Add(1 * time.Hour)},
	}

	// 同分时先达到该分数的排前面
	ranked := scoreboard.RankEntries(entries)
	require.Equal(t, "team:fast", ranked[0].SolverKey)
	require.Equal(t, "team:slow", ranked[1].SolverKey)
}

func TestRankEntriesNeverActiveSortsLast(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	entries := []scoreboard.Entry{
		{SolverKey: "team:idle", Score: 0},
		{SolverKey: "team:active", Score: 0, LastActive: base},
	}

	ranked := scoreboard.RankEntries(entries)
	require.Equal(t, "team:active", ranked[0].SolverKey)
	require.Equal(t, "team:idle", ranked[1].SolverKey)
}

func TestRankEntriesEmpty(t *testing.T) {
	ranked := scoreboard.RankEntries([]scoreboard.Entry{})
	require.Empty(t, ranked)
}
