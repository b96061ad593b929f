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

func TestBuildTimelineCarriesForwardAllSolvers(t *testing.T) {
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	now := start.Add(1 * time.Hour)
	solves := []scoreboard.SolvePoint{
		{SolverKey: "team:1", Points: 100, SolvedAt: start.Add(10 * time.Minute)},
		{SolverKey: "team:2", Points: 200, SolvedAt: start.Add(20 * time.Minute)},
		{SolverKey: "team:1", Points: 50, SolvedAt: start.Add(30 * time.Minute)},
	}
	keys := []string{"team:1", "team:2"}

	series := scoreboard.BuildTimeline(solves, keys, start, now, nil)

	// 每个时间点所有主体都有对应的点
	require.Len(t, series["team:1"], 3)
	require.Len(t, series["team:2"], 3)

	// team:1 的累计分：100 -> 100 -> 150
	require.Equal(t, 100, series["team:1"][0].Score)
	require.Equal(t, 100, series["team:1"][1].Score)
	require.Equal(t, 150, series["team:1"][2].Score)

	// team:2 在第一个时间点还没有得分
	require.Equal(t, 0, series["team:2"][0].Score)
	require.Equal(t, 200, series["team:2"][1].Score)
	require.Equal(t, 200, series["team:2"][2].Score)

	// 偏移量为赛事开始后的秒数
	require.Equal(t, int64(600), series["team:1"][0].Offset)
	require.Equal(t, int64(1200), series["team:1"][1].Offset)
	require.Equal(t, int64(1800), series["team:1"][2].Offset)
}

func TestBuildTimelineSynthesizesWhenTooFewPoints(t *testing.T) {
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	now := start.Add(2 * time.Hour)

	// 只解了一题的主体会被补成两个点：起点零分和当前实时分
	solves := []scoreboard.SolvePoint{
		{SolverKey: "team:1", Points: 300, SolvedAt: start.Add(5 * time.Minute)},
	}
	series := scoreboard.BuildTimeline(solves, []string{"team:1"}, start, now, map[string]int{"team:1": 300})

	require.Len(t, series["team:1"], 2)
	require.Equal(t, scoreboard.TimelinePoint{Offset: 0, Score: 0}, series["team:1"][0])
	require.Equal(t, scoreboard.TimelinePoint{Offset: 7200, Score: 300}, series["team:1"][1])
}

func TestBuildTimelineNoSolves(t *testing.T) {
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	now := start.Add(30 * time.Minute)

	series := scoreboard.BuildTimeline(nil, []string{"user:5"}, start, now, map[string]int{"user:5": 0})
	require.Len(t, series["user:5"], 2)
	require.Equal(t, int64(0), series["user:5"][0].Offset)
	require.Equal(t, int64(1800), series["user:5"][1].Offset)
}

func TestBuildTimelineClampsPreStartSolves(t *testing.T) {
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	now := start.Add(1 * time.Hour)

	// 开始前的解题记录偏移量按0处理
	solves := []scoreboard.SolvePoint{
		{SolverKey: "team:1", Points: 100, SolvedAt: start.Add(-5 * time.Minute)},
		{SolverKey: "team:1", Points: 100, SolvedAt: start.Add(5 * time.Minute)},
	}
	series := scoreboard.BuildTimeline(solves, []string{"team:1"}, start, now, nil)
	require.Equal(t, int64(0), series["team:1"][0].Offset)
}

func TestBuildTimelineIgnoresUntrackedSolvers(t *testing.T) {
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	now := start.Add(1 * time.Hour)

	solves := []scoreboard.SolvePoint{
		{SolverKey: "team:hidden", Points: 500, SolvedAt: start.Add(10 * time.Minute)},
		{SolverKey: "team:1", Points: 100, SolvedAt: start.Add(20 * time.Minute)},
		{SolverKey: "team:1", Points: 100, SolvedAt: start.Add(40 * time.Minute)},
	}
	series := scoreboard.BuildTimeline(solves, []string{"team:1"}, start, now, nil)

	require.NotContains(t, series, "team:hidden")
	require.Len(t, series["team:1"], 2)
	require.Equal(t, 100, series["team:1"][0].Score)
	require.Equal(t, 200, series["team:1"][1].Score)
}
