// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package challenge

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"
	"dctf/server/submission"
)

// Hint 题目提示
type Hint struct {
	ID          int64  `json:"id"`
	ChallengeID int64  `json:"challengeId"`
	Content     string `json:"content,omitempty"`
	Cost        int    `json:"cost"`
	Unlocked    bool   `json:"unlocked"`
}

// HandleListHints 获取题目提示列表（管理后台API，含内容）
func HandleListHints(c *gin.Context, db *sql.DB) {
	challengeID := c.Param("challengeId")

	rows, err := db.Query(`SELECT id, challenge_id, content, cost FROM hints WHERE challenge_id = $1 ORDER BY id`, challengeID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	defer rows.Close()

	var hints []Hint
	for rows.Next() {
		var h Hint
		if err := rows.Scan(&h.ID, &h.ChallengeID, &h.Content, &h.Cost); err != nil {
			continue
		}
		h.Unlocked = true
		hints = append(hints, h)
	}
	if hints == nil {
		hints = []Hint{}
	}
	c.JSON(http.StatusOK, hints)
}

// HandleListVisibleHints 获取题目提示列表（选手视角）
// 未解锁的提示只展示消耗分值，不展示内容
func HandleListVisibleHints(c *gin.Context, db *sql.DB) {
	challengeID := c.Param("challengeId")
	userID := c.GetInt64("userID")

	solver, err := submission.ResolveSolver(db, userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "USER_NOT_FOUND", "message": "用户不存在"})
		return
	}

	rows, err := db.Query(`
		SELECT h.id, h.challenge_id, h.content, h.cost,
			EXISTS(SELECT 1 FROM hint_unlocks hu WHERE hu.hint_id = h.id AND hu.solver_key = $2) as unlocked
		FROM hints h WHERE h.challenge_id = $1 ORDER BY h.id`, challengeID, solver.Key())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	defer rows.Close()

	var hints []Hint
	for rows.Next() {
		var h Hint
		if err := rows.Scan(&h.ID, &h.ChallengeID, &h.Content, &h.Cost, &h.Unlocked); err != nil {
			continue
		}
		if !h.Unlocked {
			h.Content = ""
		}
		hints = append(hints, h)
	}
	if hints == nil {
		hints = []Hint{}
	}
	c.JSON(http.StatusOK, hints)
}

// HandleCreateHint 为题目添加提示
func HandleCreateHint(c *gin.Context, db *sql.DB) {
	challengeID := c.Param("challengeId")

	var req struct {
		Content string `json:"content" binding:"required"`
		Cost    int    `json:"cost"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}
	if req.Cost < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_COST", "message": "提示消耗分值不能为负"})
		return
	}

	var exists bool
	db.QueryRow(`SELECT EXISTS(SELECT 1 FROM challenges WHERE id = $1)`, challengeID).Scan(&exists)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "CHALLENGE_NOT_FOUND", "message": "题目不存在"})
		return
	}

	var id int64
	err := db.QueryRow(`INSERT INTO hints (challenge_id, content, cost) VALUES ($1, $2, $3) RETURNING id`,
		challengeID, req.Content, req.Cost).Scan(&id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "message": "CREATED"})
}

// HandleUpdateHint 更新提示
func HandleUpdateHint(c *gin.Context, db *sql.DB) {
	hintID := c.Param("hintId")

	var req struct {
		Content string `json:"content"`
		Cost    *int   `json:"cost"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}
	if req.Cost != nil && *req.Cost < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_COST", "message": "提示消耗分值不能为负"})
		return
	}

	result, err := db.Exec(`UPDATE hints SET content = COALESCE(NULLIF($1, ''), content) WHERE id = $2`,
		req.Content, hintID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "HINT_NOT_FOUND"})
		return
	}
	if req.Cost != nil {
		db.Exec(`UPDATE hints SET cost = $1 WHERE id = $2`, *req.Cost, hintID)
	}
	c.JSON(http.StatusOK, gin.H{"message": "UPDATED"})
}

// HandleDeleteHint 删除提示
func HandleDeleteHint(c *gin.Context, db *sql.DB) {
	hintID := c.Param("hintId")

	db.Exec(`DELETE FROM hint_unlocks WHERE hint_id = $1`, hintID)
	result, err := db.Exec(`DELETE FROM hints WHERE id = $1`, hintID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "HINT_NOT_FOUND"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "DELETED"})
}
