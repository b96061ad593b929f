// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package scoreboard

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// HandleGetRecentSolves 获取最近解题动态（滚动展示用）
func HandleGetRecentSolves(c *gin.Context, db *sql.DB) {
	eventID := c.Param("id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	rows, err := db.Query(`SELECT COALESCE(t.name, COALESCE(u.display_name, u.username)), ch.name, s.points, s.solve_order, s.solved_at
		FROM solves s
		JOIN challenges ch ON s.challenge_id = ch.id
		LEFT JOIN teams t ON s.team_id = t.id
		LEFT JOIN users u ON s.user_id = u.id
		WHERE s.event_id = $1
		ORDER BY s.solved_at DESC LIMIT $2`, eventID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	defer rows.Close()

	type RecentSolve struct {
		SolverName    string `json:"solverName"`
		ChallengeName string `json:"challengeName"`
		Points        int    `json:"points"`
		FirstBlood    bool   `json:"firstBlood"`
		SolvedAt      string `json:"solvedAt"`
	}
	var recent []RecentSolve
	for rows.Next() {
		var r RecentSolve
		var solveOrder int
		var solvedAt time.Time
		if err := rows.Scan(&r.SolverName, &r.ChallengeName, &r.Points, &solveOrder, &solvedAt); err != nil {
			continue
		}
		r.FirstBlood = solveOrder == 1
		r.SolvedAt = solvedAt.Format("2006-01-02 15:04:05")
		recent = append(recent, r)
	}
	if recent == nil {
		recent = []RecentSolve{}
	}
	c.JSON(http.StatusOK, gin.H{"recent": recent})
}
