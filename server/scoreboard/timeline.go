// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package scoreboard

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// 趋势图展示的主体数量上限
const timelineTopN = 10

// SolvePoint 单次解题记录（构建趋势图的输入）
type SolvePoint struct {
	SolverKey string
	Points    int
	SolvedAt  time.Time
}

// TimelinePoint 趋势图上的一个点：赛事开始后的偏移秒数与当时累计分
type TimelinePoint struct {
	Offset int64 `json:"offset"`
	Score  int   `json:"score"`
}

// BuildTimeline 构建得分趋势
// solves 必须已按时间升序排列；keys 为需要展示的主体
// 每出现一个新的时间点，所有主体都补一个当前累计分的点，保证折线对齐；
// 不足两个点的主体补上起点零分和当前实时分两个点
func BuildTimeline(solves []SolvePoint, keys []string, start, now time.Time, liveScores map[string]int) map[string][]TimelinePoint {
	tracked := make(map[string]bool, len(keys))
	series := make(map[string][]TimelinePoint, len(keys))
	cumulative := make(map[string]int, len(keys))
	for _, k := range keys {
		tracked[k] = true
		series[k] = []TimelinePoint{}
	}

	nowOffset := int64(now.Sub(start).Seconds())
	if nowOffset < 0 {
		nowOffset = 0
	}

	appendAll := func(offset int64) {
		for _, k := range keys {
			series[k] = append(series[k], TimelinePoint{Offset: offset, Score: cumulative[k]})
		}
	}

	var lastOffset int64 = -1
	for _, s := range solves {
		if !tracked[s.SolverKey] {
			continue
		}
		offset := int64(s.SolvedAt.Sub(start).Seconds())
		if offset < 0 {
			offset = 0
		}
		if offset != lastOffset && lastOffset >= 0 {
			appendAll(lastOffset)
		}
		cumulative[s.SolverKey] += s.Points
		lastOffset = offset
	}
	if lastOffset >= 0 {
		appendAll(lastOffset)
	}

	// 点数不足时合成起点和当前点，前端至少能画一条线
	for _, k := range keys {
		if len(series[k]) < 2 {
			live := cumulative[k]
			if v, ok := liveScores[k]; ok {
				live = v
			}
			series[k] = []TimelinePoint{
				{Offset: 0, Score: 0},
				{Offset: nowOffset, Score: live},
			}
		}
	}
	return series
}

// HandleGetScoreTimeline 获取得分趋势图数据（前10名）
func HandleGetScoreTimeline(c *gin.Context, db *sql.DB) {
	eventID := c.Param("id")

	var startTime time.Time
	err := db.QueryRow(`SELECT start_time FROM events WHERE id = $1`, eventID).Scan(&startTime)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "EVENT_NOT_FOUND", "message": "赛事不存在"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}

	// 取排行榜前N名作为趋势图主体
	type topSolver struct {
		key   string
		name  string
		score int
	}
	var top []topSolver

	teamRows, _ := db.Query(`SELECT id, name, score FROM teams
		WHERE is_hidden = false AND is_banned = false ORDER BY score DESC, last_active ASC LIMIT $1`, timelineTopN)
	if teamRows != nil {
		for teamRows.Next() {
			var id int64
			var t topSolver
			if err := teamRows.Scan(&id, &t.name, &t.score); err == nil {
				t.key = solverKeyTeam(id)
				top = append(top, t)
			}
		}
		teamRows.Close()
	}
	userRows, _ := db.Query(`SELECT id, COALESCE(display_name, username), score FROM users
		WHERE team_id IS NULL AND role != 'admin' AND is_hidden = false AND is_banned = false
		ORDER BY score DESC, last_active ASC LIMIT $1`, timelineTopN)
	if userRows != nil {
		for userRows.Next() {
			var id int64
			var t topSolver
			if err := userRows.Scan(&id, &t.name, &t.score); err == nil {
				t.key = solverKeyUser(id)
				top = append(top, t)
			}
		}
		userRows.Close()
	}

	// 合并后重新取前N
	entries := make([]Entry, 0, len(top))
	for _, t := range top {
		entries = append(entries, Entry{SolverKey: t.key, Name: t.name, Score: t.score})
	}
	entries = RankEntries(entries)
	if len(entries) > timelineTopN {
		entries = entries[:timelineTopN]
	}

	keys := make([]string, 0, len(entries))
	names := make(map[string]string, len(entries))
	liveScores := make(map[string]int, len(entries))
	for _, e := range entries {
		keys = append(keys, e.SolverKey)
		names[e.SolverKey] = e.Name
		liveScores[e.SolverKey] = e.Score
	}

	rows, err := db.Query(`SELECT solver_key, points, solved_at FROM solves
		WHERE event_id = $1 ORDER BY solved_at ASC`, eventID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	defer rows.Close()

	var solves []SolvePoint
	for rows.Next() {
		var s SolvePoint
		if err := rows.Scan(&s.SolverKey, &s.Points, &s.SolvedAt); err != nil {
			continue
		}
		solves = append(solves, s)
	}

	series := BuildTimeline(solves, keys, startTime, time.Now(), liveScores)

	type seriesEntry struct {
		SolverKey string          `json:"solverKey"`
		Name      string          `json:"name"`
		Points    []TimelinePoint `json:"points"`
	}
	result := make([]seriesEntry, 0, len(keys))
	for _, k := range keys {
		result = append(result, seriesEntry{
			SolverKey: k,
			Name:      names[k],
			Points:    series[k],
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"timeline":  result,
		"startTime": startTime.Format("2006-01-02 15:04:05"),
	})
}
