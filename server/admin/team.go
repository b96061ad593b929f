// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package admin

import (
	"database/sql"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"dctf/server/logs"
)

// TeamDetail 队伍详情
type TeamDetail struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Score       int      `json:"score"`
	IsBanned    bool     `json:"isBanned"`
	IsHidden    bool     `json:"isHidden"`
	MemberCount int      `json:"memberCount"`
	Members     []string `json:"members,omitempty"`
	CreatedAt   string   `json:"createdAt"`
}

// HandleListTeams 获取队伍列表
func HandleListTeams(c *gin.Context, db *sql.DB) {
	rows, err := db.Query(`
		SELECT t.id, t.name, t.score, t.is_banned, t.is_hidden,
			(SELECT COUNT(*) FROM users u WHERE u.team_id = t.id) as member_count,
			TO_CHAR(t.created_at, 'YYYY-MM-DD HH24:MI') as created_at
		FROM teams t ORDER BY t.id ASC`)
	if err != nil {
		log.Printf("list teams error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}
	defer rows.Close()

	var teams []TeamDetail
	for rows.Next() {
		var t TeamDetail
		if err := rows.Scan(&t.ID, &t.Name, &t.Score, &t.IsBanned, &t.IsHidden, &t.MemberCount, &t.CreatedAt); err != nil {
			continue
		}
		teams = append(teams, t)
	}
	if teams == nil {
		teams = []TeamDetail{}
	}
	c.JSON(http.StatusOK, teams)
}

// HandleGetTeam 获取单个队伍详情（含成员列表）
func HandleGetTeam(c *gin.Context, db *sql.DB) {
	id := c.Param("id")

	var t TeamDetail
	err := db.QueryRow(`
		SELECT t.id, t.name, t.score, t.is_banned, t.is_hidden,
			(SELECT COUNT(*) FROM users u WHERE u.team_id = t.id),
			TO_CHAR(t.created_at, 'YYYY-MM-DD HH24:MI')
		FROM teams t WHERE t.id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Score, &t.IsBanned, &t.IsHidden, &t.MemberCount, &t.CreatedAt)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "TEAM_NOT_FOUND", "message": "队伍不存在"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	memberRows, _ := db.Query(`SELECT COALESCE(display_name, username) FROM users WHERE team_id = $1 ORDER BY id`, id)
	if memberRows != nil {
		for memberRows.Next() {
			var name string
			if err := memberRows.Scan(&name); err == nil {
				t.Members = append(t.Members, name)
			}
		}
		memberRows.Close()
	}
	if t.Members == nil {
		t.Members = []string{}
	}

	c.JSON(http.StatusOK, t)
}

// HandleCreateTeam 创建队伍
func HandleCreateTeam(c *gin.Context, db *sql.DB) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	var exists bool
	db.QueryRow(`SELECT EXISTS(SELECT 1 FROM teams WHERE name = $1)`, req.Name).Scan(&exists)
	if exists {
		c.JSON(http.StatusConflict, gin.H{"error": "TEAM_EXISTS", "message": "队伍名已存在"})
		return
	}

	var id int64
	err := db.QueryRow(`INSERT INTO teams (name) VALUES ($1) RETURNING id`, req.Name).Scan(&id)
	if err != nil {
		log.Printf("create team error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "message": "CREATED"})
}

// HandleUpdateTeam 更新队伍（改名/封禁/隐藏）
func HandleUpdateTeam(c *gin.Context, db *sql.DB) {
	id := c.Param("id")

	var req struct {
		Name     string `json:"name"`
		IsBanned *bool  `json:"isBanned"`
		IsHidden *bool  `json:"isHidden"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	result, err := db.Exec(`UPDATE teams SET name = COALESCE(NULLIF($1, ''), name), updated_at = NOW() WHERE id = $2`, req.Name, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "TEAM_NOT_FOUND"})
		return
	}
	if req.IsBanned != nil {
		db.Exec(`UPDATE teams SET is_banned = $1, updated_at = NOW() WHERE id = $2`, *req.IsBanned, id)
	}
	if req.IsHidden != nil {
		db.Exec(`UPDATE teams SET is_hidden = $1, updated_at = NOW() WHERE id = $2`, *req.IsHidden, id)
	}

	c.JSON(http.StatusOK, gin.H{"message": "UPDATED"})
}

// HandleDeleteTeam 删除队伍（先解散成员）
func HandleDeleteTeam(c *gin.Context, db *sql.DB) {
	id := c.Param("id")
	userID := c.GetInt64("userID")

	var name string
	err := db.QueryRow(`SELECT name FROM teams WHERE id = $1`, id).Scan(&name)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "TEAM_NOT_FOUND", "message": "队伍不存在"})
		return
	}

	db.Exec(`UPDATE users SET team_id = NULL, updated_at = NOW() WHERE team_id = $1`, id)
	_, err = db.Exec(`DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		log.Printf("delete team error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	clientIP := c.ClientIP()
	logs.WriteLogSimple(db, logs.TypeAdminOp, logs.LevelWarning, userID, clientIP, "删除队伍 ["+name+"]")

	c.JSON(http.StatusOK, gin.H{"message": "DELETED"})
}

// HandleAdjustTeamScore 手动调整队伍分数（加减分都记入 score_history）
func HandleAdjustTeamScore(c *gin.Context, db *sql.DB) {
	id := c.Param("id")
	userID := c.GetInt64("userID")

	var req struct {
		Delta  int    `json:"delta" binding:"required"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	tx, err := db.Begin()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	var cumulative int
	err = tx.QueryRow(`UPDATE teams SET score = score + $1, last_score_update = NOW(), updated_at = NOW()
		WHERE id = $2 RETURNING score`, req.Delta, id).Scan(&cumulative)
	if err == sql.ErrNoRows {
		tx.Rollback()
		c.JSON(http.StatusNotFound, gin.H{"error": "TEAM_NOT_FOUND", "message": "队伍不存在"})
		return
	}
	if err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}
	_, err = tx.Exec(`INSERT INTO score_history (team_id, score, cumulative_score, timestamp)
		VALUES ($1, $2, $3, NOW())`, id, req.Delta, cumulative)
	if err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}
	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	clientIP := c.ClientIP()
	logs.WriteLogSimple(db, logs.TypeAdminOp, logs.LevelInfo, userID, clientIP,
		"手动调整队伍分数，原因: "+req.Reason)

	c.JSON(http.StatusOK, gin.H{"message": "ADJUSTED", "score": cumulative})
}
