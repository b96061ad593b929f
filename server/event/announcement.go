// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package event

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Announcement 公告结构
type Announcement struct {
	ID        int64  `json:"id"`
	EventID   int64  `json:"eventId"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	IsPinned  bool   `json:"isPinned"`
	CreatedBy *int64 `json:"createdBy,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// CreateAnnouncementRequest 创建公告请求
type CreateAnnouncementRequest struct {
	Title    string `json:"title" binding:"required"`
	Content  string `json:"content"`
	IsPinned bool   `json:"isPinned"`
}

// HandleListAnnouncements 获取赛事公告列表（公开API）
func HandleListAnnouncements(c *gin.Context, db *sql.DB) {
	eventID := c.Param("id")

	rows, err := db.Query(`
		SELECT id, event_id, kind, title, COALESCE(content, ''), is_pinned, created_by, created_at
		FROM announcements
		WHERE event_id = $1
		ORDER BY is_pinned DESC, created_at DESC`, eventID)
	if err != nil {
		log.Printf("query announcements error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	defer rows.Close()

	var announcements []Announcement
	for rows.Next() {
		var a Announcement
		var createdAt time.Time
		var createdBy sql.NullInt64
		if err := rows.Scan(&a.ID, &a.EventID, &a.Kind, &a.Title, &a.Content, &a.IsPinned, &createdBy, &createdAt); err != nil {
			continue
		}
		if createdBy.Valid {
			a.CreatedBy = &createdBy.Int64
		}
		a.CreatedAt = createdAt.Format("2006-01-02 15:04:05")
		announcements = append(announcements, a)
	}

	if announcements == nil {
		announcements = []Announcement{}
	}

	c.JSON(http.StatusOK, announcements)
}

// HandleCreateAnnouncement 管理员手动创建公告
func HandleCreateAnnouncement(c *gin.Context, db *sql.DB) {
	eventID := c.Param("id")
	userID := c.GetInt64("userID")

	var req CreateAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	// 检查 userID 是否在 users 表中存在
	var createdBy interface{}
	if userID > 0 {
		var exists bool
		db.QueryRow(`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
		if exists {
			createdBy = userID
		}
	}

	var id int64
	err := db.QueryRow(`
		INSERT INTO announcements (event_id, kind, title, content, is_pinned, created_by)
		VALUES ($1, 'manual', $2, $3, $4, $5) RETURNING id`,
		eventID, req.Title, req.Content, req.IsPinned, createdBy).Scan(&id)

	if err != nil {
		log.Printf("create announcement error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id, "message": "CREATED"})
}

// HandleUpdateAnnouncement 更新公告
func HandleUpdateAnnouncement(c *gin.Context, db *sql.DB) {
	announcementID := c.Param("announcementId")

	var req struct {
		Title    string `json:"title"`
		Content  string `json:"content"`
		IsPinned *bool  `json:"isPinned"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	// 只允许修改手动公告
	var kind string
	err := db.QueryRow(`SELECT kind FROM announcements WHERE id = $1`, announcementID).Scan(&kind)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "NOT_FOUND"})
		return
	}
	if kind != "manual" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "CANNOT_EDIT_AUTO_ANNOUNCEMENT", "message": "只能编辑手动发布的公告"})
		return
	}

	if req.Title != "" {
		db.Exec(`UPDATE announcements SET title = $1 WHERE id = $2`, req.Title, announcementID)
	}
	if req.Content != "" {
		db.Exec(`UPDATE announcements SET content = $1 WHERE id = $2`, req.Content, announcementID)
	}
	if req.IsPinned != nil {
		db.Exec(`UPDATE announcements SET is_pinned = $1 WHERE id = $2`, *req.IsPinned, announcementID)
	}

	c.JSON(http.StatusOK, gin.H{"message": "UPDATED"})
}

// HandleDeleteAnnouncement 删除公告
func HandleDeleteAnnouncement(c *gin.Context, db *sql.DB) {
	announcementID := c.Param("announcementId")

	result, err := db.Exec(`DELETE FROM announcements WHERE id = $1`, announcementID)
	if err != nil {
		log.Printf("delete announcement error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "NOT_FOUND"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "DELETED"})
}

// ========== 自动公告函数 ==========

// CreateAutoAnnouncement 创建自动公告
func CreateAutoAnnouncement(db *sql.DB, eventID int64, kind, title, content string) error {
	_, err := db.Exec(`
		INSERT INTO announcements (event_id, kind, title, content)
		VALUES ($1, $2, $3, $4)`,
		eventID, kind, title, content)
	if err != nil {
		log.Printf("create auto announcement error: %v", err)
	}
	return err
}

// AnnounceChallenge 题目开放/下架公告
func AnnounceChallenge(db *sql.DB, eventID int64, challengeName, action string) {
	var kind, title, content string
	switch action {
	case "open":
		kind = "challenge_open"
		title = fmt.Sprintf("📢 题目开放: %s", challengeName)
		content = fmt.Sprintf("题目【%s】已开放，快来挑战吧！", challengeName)
	case "hint":
		kind = "challenge_hint"
		title = fmt.Sprintf("💡 题目提示: %s", challengeName)
		content = fmt.Sprintf("题目【%s】已放出提示，快去查看吧！", challengeName)
	default:
		kind = "challenge_close"
		title = fmt.Sprintf("📢 题目下架: %s", challengeName)
		content = fmt.Sprintf("题目【%s】已下架。", challengeName)
	}
	CreateAutoAnnouncement(db, eventID, kind, title, content)
}

// AnnounceBlood 一血公告
func AnnounceBlood(db *sql.DB, eventID int64, challengeName, solverName string) {
	title := fmt.Sprintf("🥇 一血: %s", challengeName)
	content := fmt.Sprintf("恭喜【%s】抢下题目【%s】的一血！", solverName, challengeName)
	CreateAutoAnnouncement(db, eventID, "blood", title, content)
}

// AnnounceSolve 普通解题公告
func AnnounceSolve(db *sql.DB, eventID int64, challengeName, solverName string, points int) {
	title := fmt.Sprintf("✅ 解题: %s", challengeName)
	content := fmt.Sprintf("【%s】解出了题目【%s】，获得 %d 分。", solverName, challengeName, points)
	CreateAutoAnnouncement(db, eventID, "solve", title, content)
}
