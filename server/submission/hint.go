// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package submission

import (
	"database/sql"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"dctf/server/logs"
)

// HandleUnlockHint 解锁提示（扣分，不写 score_history）
func HandleUnlockHint(c *gin.Context, db *sql.DB) {
	hintID := c.Param("hintId")
	userID := c.GetInt64("userID")
	clientIP := c.ClientIP()

	solver, err := ResolveSolver(db, userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "USER_NOT_FOUND", "message": "用户不存在"})
		return
	}

	var challengeID int64
	var cost int
	var content string
	err = db.QueryRow(`SELECT challenge_id, cost, content FROM hints WHERE id = $1`, hintID).
		Scan(&challengeID, &cost, &content)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "HINT_NOT_FOUND", "message": "提示不存在"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DATABASE_ERROR"})
		return
	}

	// 已解锁的提示直接返回内容，不重复扣分
	var unlocked bool
	db.QueryRow(`SELECT EXISTS(SELECT 1 FROM hint_unlocks WHERE hint_id = $1 AND solver_key = $2)`,
		hintID, solver.Key()).Scan(&unlocked)
	if unlocked {
		c.JSON(http.StatusOK, gin.H{"unlocked": true, "content": content, "cost": cost})
		return
	}

	if cost > solver.Score {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INSUFFICIENT_SCORE", "message": "当前分数不足以解锁该提示"})
		return
	}

	hintIDInt, _ := strconv.ParseInt(hintID, 10, 64)

	tx, err := db.Begin()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DATABASE_ERROR"})
		return
	}

	var teamID, solverUserID interface{}
	if solver.IsTeam() {
		teamID = *solver.TeamID
	} else {
		solverUserID = solver.UserID
	}
	res, err := tx.Exec(`INSERT INTO hint_unlocks (hint_id, challenge_id, solver_key, team_id, user_id, cost)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (hint_id, solver_key) DO NOTHING`,
		hintIDInt, challengeID, solver.Key(), teamID, solverUserID, cost)
	if err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DATABASE_ERROR"})
		return
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		tx.Rollback()
		c.JSON(http.StatusOK, gin.H{"unlocked": true, "content": content, "cost": cost})
		return
	}

	if solver.IsTeam() {
		_, err = tx.Exec(`UPDATE teams SET score = score - $1, updated_at = NOW() WHERE id = $2`, cost, *solver.TeamID)
	} else {
		_, err = tx.Exec(`UPDATE users SET score = score - $1, updated_at = NOW() WHERE id = $2`, cost, solver.UserID)
	}
	if err != nil {
		tx.Rollback()
		log.Printf("hint unlock deduct error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DATABASE_ERROR"})
		return
	}
	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DATABASE_ERROR"})
		return
	}

	var solverTeamID *int64
	if solver.IsTeam() {
		solverTeamID = solver.TeamID
	}
	logs.WriteLog(db, logs.TypeHintUnlock, logs.LevelInfo, &userID, solverTeamID, nil, &challengeID, clientIP,
		"["+solver.Name+"] 解锁了题目提示，消耗 "+strconv.Itoa(cost)+" 分", nil)

	c.JSON(http.StatusOK, gin.H{"unlocked": true, "content": content, "cost": cost})
}
