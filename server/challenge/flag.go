// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package challenge

import (
	"database/sql"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"dctf/server/submission"
)

var validFlagTypes = map[string]bool{
	submission.FlagTypeStatic:  true,
	submission.FlagTypeRegex:   true,
	submission.FlagTypeDynamic: true,
}

// HandleListFlags 获取题目Flag列表（管理后台API）
func HandleListFlags(c *gin.Context, db *sql.DB) {
	challengeID := c.Param("challengeId")

	rows, err := db.Query(`SELECT id, challenge_id, flag, type, is_case_insensitive FROM flags
		WHERE challenge_id = $1 ORDER BY id`, challengeID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	defer rows.Close()

	var flags []submission.FlagDef
	for rows.Next() {
		var f submission.FlagDef
		if err := rows.Scan(&f.ID, &f.ChallengeID, &f.Flag, &f.Type, &f.IsCaseInsensitive); err != nil {
			continue
		}
		flags = append(flags, f)
	}
	if flags == nil {
		flags = []submission.FlagDef{}
	}
	c.JSON(http.StatusOK, flags)
}

// HandleCreateFlag 为题目添加Flag
func HandleCreateFlag(c *gin.Context, db *sql.DB) {
	challengeID := c.Param("challengeId")

	var req struct {
		Flag              string `json:"flag" binding:"required"`
		Type              string `json:"type"`
		IsCaseInsensitive bool   `json:"isCaseInsensitive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}
	if req.Type == "" {
		req.Type = submission.FlagTypeStatic
	}
	if !validFlagTypes[req.Type] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_FLAG_TYPE"})
		return
	}
	// 正则Flag先做编译检查，避免入库后永远匹配不上
	if req.Type == submission.FlagTypeRegex {
		if _, err := regexp.Compile(req.Flag); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REGEX", "message": "正则表达式不合法"})
			return
		}
	}

	var exists bool
	db.QueryRow(`SELECT EXISTS(SELECT 1 FROM challenges WHERE id = $1)`, challengeID).Scan(&exists)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "CHALLENGE_NOT_FOUND", "message": "题目不存在"})
		return
	}

	var id int64
	err := db.QueryRow(`INSERT INTO flags (challenge_id, flag, type, is_case_insensitive)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		challengeID, req.Flag, req.Type, req.IsCaseInsensitive).Scan(&id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "message": "CREATED"})
}

// HandleUpdateFlag 更新Flag
func HandleUpdateFlag(c *gin.Context, db *sql.DB) {
	flagID := c.Param("flagId")

	var req struct {
		Flag              string `json:"flag"`
		Type              string `json:"type"`
		IsCaseInsensitive *bool  `json:"isCaseInsensitive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}
	if req.Type != "" && !validFlagTypes[req.Type] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_FLAG_TYPE"})
		return
	}
	if req.Type == submission.FlagTypeRegex && req.Flag != "" {
		if _, err := regexp.Compile(req.Flag); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REGEX", "message": "正则表达式不合法"})
			return
		}
	}

	result, err := db.Exec(`
		UPDATE flags SET
			flag = COALESCE(NULLIF($1, ''), flag),
			type = COALESCE(NULLIF($2, ''), type)
		WHERE id = $3`, req.Flag, req.Type, flagID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "FLAG_NOT_FOUND"})
		return
	}
	if req.IsCaseInsensitive != nil {
		db.Exec(`UPDATE flags SET is_case_insensitive = $1 WHERE id = $2`, *req.IsCaseInsensitive, flagID)
	}
	c.JSON(http.StatusOK, gin.H{"message": "UPDATED"})
}

// HandleDeleteFlag 删除Flag
func HandleDeleteFlag(c *gin.Context, db *sql.DB) {
	flagID := c.Param("flagId")

	result, err := db.Exec(`DELETE FROM flags WHERE id = $1`, flagID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "FLAG_NOT_FOUND"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "DELETED"})
}
