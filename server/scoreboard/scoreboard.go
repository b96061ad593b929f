// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package scoreboard

import (
	"database/sql"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Entry 排行榜条目
type Entry struct {
	Rank          int       `json:"rank"`
	SolverKey     string    `json:"solverKey"`
	Name          string    `json:"name"`
	Score         int       `json:"score"`
	SolvedCount   int       `json:"solvedCount"`
	ScoreChange   int       `json:"scoreChange"`
	LastActive    time.Time `json:"-"`
	LastActiveStr string    `json:"lastActive,omitempty"`
}

// RankEntries 排行榜排序：分数降序，同分按最后活跃时间升序（先达到者靠前）
// 从未活跃的主体在同分时排在最后
func RankEntries(entries []Entry) []Entry {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		iZero, jZero := entries[i].LastActive.IsZero(), entries[j].LastActive.IsZero()
		if iZero != jZero {
			return jZero
		}
		return entries[i].LastActive.Before(entries[j].LastActive)
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// HandleGetScoreboard 获取排行榜
// 计分主体为队伍和无队伍的个人用户，隐藏/封禁的主体不上榜
func HandleGetScoreboard(c *gin.Context, db *sql.DB) {
	eventID := c.Param("id")

	var entries []Entry

	// 队伍主体
	teamRows, err := db.Query(`SELECT id, name, score, last_active FROM teams
		WHERE is_hidden = false AND is_banned = false`)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	defer teamRows.Close()
	type solverRef struct {
		key    string
		teamID int64
		userID int64
	}
	var refs []solverRef
	for teamRows.Next() {
		var id int64
		var e Entry
		var lastActive sql.NullTime
		if err := teamRows.Scan(&id, &e.Name, &e.Score, &lastActive); err != nil {
			continue
		}
		if lastActive.Valid {
			e.LastActive = lastActive.Time
		}
		e.SolverKey = solverKeyTeam(id)
		entries = append(entries, e)
		refs = append(refs, solverRef{key: e.SolverKey, teamID: id})
	}

	// 无队伍的个人主体
	userRows, err := db.Query(`SELECT id, COALESCE(display_name, username), score, last_active FROM users
		WHERE team_id IS NULL AND role != 'admin' AND is_hidden = false AND is_banned = false`)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	defer userRows.Close()
	for userRows.Next() {
		var id int64
		var e Entry
		var lastActive sql.NullTime
		if err := userRows.Scan(&id, &e.Name, &e.Score, &lastActive); err != nil {
			continue
		}
		if lastActive.Valid {
			e.LastActive = lastActive.Time
		}
		e.SolverKey = solverKeyUser(id)
		entries = append(entries, e)
		refs = append(refs, solverRef{key: e.SolverKey, userID: id})
	}

	// 解题数统计
	solvedCounts := make(map[string]int)
	countRows, _ := db.Query(`SELECT solver_key, COUNT(*) FROM solves WHERE event_id = $1 GROUP BY solver_key`, eventID)
	if countRows != nil {
		for countRows.Next() {
			var key string
			var count int
			if err := countRows.Scan(&key, &count); err == nil {
				solvedCounts[key] = count
			}
		}
		countRows.Close()
	}

	// 24小时内的得分变化
	changes := make(map[string]int)
	changeRows, _ := db.Query(`SELECT COALESCE(team_id, 0), COALESCE(user_id, 0), SUM(score) FROM score_history
		WHERE timestamp > NOW() - INTERVAL '24 hours' GROUP BY team_id, user_id`)
	if changeRows != nil {
		for changeRows.Next() {
			var teamID, userID int64
			var sum int
			if err := changeRows.Scan(&teamID, &userID, &sum); err != nil {
				continue
			}
			if teamID > 0 {
				changes[solverKeyTeam(teamID)] = sum
			} else if userID > 0 {
				changes[solverKeyUser(userID)] = sum
			}
		}
		changeRows.Close()
	}

	for i := range entries {
		entries[i].SolvedCount = solvedCounts[entries[i].SolverKey]
		entries[i].ScoreChange = changes[entries[i].SolverKey]
		if !entries[i].LastActive.IsZero() {
			entries[i].LastActiveStr = entries[i].LastActive.Format("2006-01-02 15:04:05")
		}
	}

	entries = RankEntries(entries)
	if entries == nil {
		entries = []Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"scoreboard": entries, "total": len(entries)})
}

func solverKeyTeam(id int64) string {
	return "team:" + strconv.FormatInt(id, 10)
}

func solverKeyUser(id int64) string {
	return "user:" + strconv.FormatInt(id, 10)
}
