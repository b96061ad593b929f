// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package event

import (
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// 赛事状态常量
const (
	StatusPlanning     = "planning"
	StatusRegistration = "registration"
	StatusRunning      = "running"
	StatusPaused       = "paused"
	StatusFinished     = "finished"
	StatusArchived     = "archived"
)

// 手动状态流转表：当前状态 -> 允许的目标状态
var validTransitions = map[string][]string{
	StatusPlanning:     {StatusRegistration, StatusRunning},
	StatusRegistration: {StatusRunning, StatusPlanning},
	StatusRunning:      {StatusPaused, StatusFinished},
	StatusPaused:       {StatusRunning, StatusFinished},
	StatusFinished:     {StatusArchived},
	StatusArchived:     {},
}

// Event 赛事结构
type Event struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

// CreateEventRequest 创建赛事请求
type CreateEventRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	StartTime   string `json:"startTime" binding:"required"`
	EndTime     string `json:"endTime" binding:"required"`
}

// CanTransition 判断状态流转是否合法
func CanTransition(from, to string) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StartEventStatusUpdater 启动赛事状态自动更新定时器
func StartEventStatusUpdater(db *sql.DB) {
	ticker := time.NewTicker(30 * time.Second) // 每30秒检查一次
	go func() {
		for {
			<-ticker.C
			autoUpdateEventStatus(db)
		}
	}()
	log.Println("[Event] 赛事状态自动更新定时器已启动，每30秒检查一次")
}

// autoUpdateEventStatus 按时间窗口自动推进赛事状态
// paused 状态由管理员手动控制，不参与自动开始；到结束时间后一律结束
func autoUpdateEventStatus(db *sql.DB) {
	// 自动开始：planning/registration -> running
	startRows, err := db.Query(`
		SELECT id, name FROM events
		WHERE status IN ('planning', 'registration') AND start_time <= NOW() AND end_time > NOW()
	`)
	if err == nil {
		defer startRows.Close()
		for startRows.Next() {
			var eventID int64
			var name string
			if err := startRows.Scan(&eventID, &name); err != nil {
				continue
			}
			_, err := db.Exec(`UPDATE events SET status = 'running', updated_at = NOW() WHERE id = $1`, eventID)
			if err != nil {
				log.Printf("[Event] 自动开始赛事 %d 失败: %v", eventID, err)
				continue
			}
			log.Printf("[Event] 赛事 %d 自动开始", eventID)
			CreateAutoAnnouncement(db, eventID, "event_start", "🚀 赛事开始: "+name, "赛事【"+name+"】已开始，祝各位取得好成绩！")
		}
	}

	// 自动结束：running/paused -> finished
	endRows, err := db.Query(`
		SELECT id, name FROM events
		WHERE status IN ('running', 'paused') AND end_time < NOW()
	`)
	if err == nil {
		defer endRows.Close()
		for endRows.Next() {
			var eventID int64
			var name string
			if err := endRows.Scan(&eventID, &name); err != nil {
				continue
			}
			_, err := db.Exec(`UPDATE events SET status = 'finished', updated_at = NOW() WHERE id = $1`, eventID)
			if err != nil {
				log.Printf("[Event] 自动结束赛事 %d 失败: %v", eventID, err)
				continue
			}
			log.Printf("[Event] 赛事 %d 自动结束", eventID)
			CreateAutoAnnouncement(db, eventID, "event_end", "🏁 赛事结束: "+name, "赛事【"+name+"】已结束，感谢参与！")
		}
	}
}

// HandleListEvents 获取赛事列表（公开API，归档赛事不展示）
func HandleListEvents(c *gin.Context, db *sql.DB) {
	rows, err := db.Query(`
		SELECT id, name, COALESCE(description, ''), status, start_time, end_time, created_at, updated_at
		FROM events WHERE status != 'archived' ORDER BY start_time DESC`)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	defer rows.Close()

	events := scanEvents(rows)
	c.JSON(http.StatusOK, events)
}

// HandleListAllEvents 获取全部赛事（管理后台API，含归档）
func HandleListAllEvents(c *gin.Context, db *sql.DB) {
	rows, err := db.Query(`
		SELECT id, name, COALESCE(description, ''), status, start_time, end_time, created_at, updated_at
		FROM events ORDER BY start_time DESC`)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	defer rows.Close()

	events := scanEvents(rows)
	c.JSON(http.StatusOK, events)
}

func scanEvents(rows *sql.Rows) []Event {
	var events []Event
	for rows.Next() {
		var e Event
		var startTime, endTime, createdAt, updatedAt time.Time
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.Status, &startTime, &endTime, &createdAt, &updatedAt); err != nil {
			continue
		}
		e.StartTime = startTime.Format("2006-01-02 15:04:05")
		e.EndTime = endTime.Format("2006-01-02 15:04:05")
		e.CreatedAt = createdAt.Format("2006-01-02 15:04:05")
		e.UpdatedAt = updatedAt.Format("2006-01-02 15:04:05")
		events = append(events, e)
	}
	if events == nil {
		events = []Event{}
	}
	return events
}

// HandleGetEvent 获取单个赛事详情
func HandleGetEvent(c *gin.Context, db *sql.DB) {
	id := c.Param("id")

	var e Event
	var startTime, endTime, createdAt, updatedAt time.Time
	err := db.QueryRow(`
		SELECT id, name, COALESCE(description, ''), status, start_time, end_time, created_at, updated_at
		FROM events WHERE id = $1`, id).
		Scan(&e.ID, &e.Name, &e.Description, &e.Status, &startTime, &endTime, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "EVENT_NOT_FOUND", "message": "赛事不存在"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	e.StartTime = startTime.Format("2006-01-02 15:04:05")
	e.EndTime = endTime.Format("2006-01-02 15:04:05")
	e.CreatedAt = createdAt.Format("2006-01-02 15:04:05")
	e.UpdatedAt = updatedAt.Format("2006-01-02 15:04:05")

	c.JSON(http.StatusOK, e)
}

// HandleCreateEvent 创建赛事
func HandleCreateEvent(c *gin.Context, db *sql.DB) {
	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	startTime, err := time.ParseInLocation("2006-01-02T15:04", req.StartTime, time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_START_TIME"})
		return
	}
	endTime, err := time.ParseInLocation("2006-01-02T15:04", req.EndTime, time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_END_TIME"})
		return
	}
	if endTime.Before(startTime) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "END_BEFORE_START"})
		return
	}

	var id int64
	err = db.QueryRow(`
		INSERT INTO events (name, description, status, start_time, end_time)
		VALUES ($1, $2, 'planning', $3, $4) RETURNING id`,
		req.Name, req.Description, startTime, endTime).Scan(&id)
	if err != nil {
		log.Printf("insert event error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id, "message": "CREATED"})
}

// HandleUpdateEvent 更新赛事基础信息
func HandleUpdateEvent(c *gin.Context, db *sql.DB) {
	id := c.Param("id")

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		StartTime   string `json:"startTime"`
		EndTime     string `json:"endTime"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	if req.Name != "" {
		db.Exec(`UPDATE events SET name = $1, updated_at = NOW() WHERE id = $2`, req.Name, id)
	}
	if req.Description != "" {
		db.Exec(`UPDATE events SET description = $1, updated_at = NOW() WHERE id = $2`, req.Description, id)
	}
	if req.StartTime != "" {
		if t, err := time.ParseInLocation("2006-01-02T15:04", req.StartTime, time.Local); err == nil {
			db.Exec(`UPDATE events SET start_time = $1, updated_at = NOW() WHERE id = $2`, t, id)
		}
	}
	if req.EndTime != "" {
		if t, err := time.ParseInLocation("2006-01-02T15:04", req.EndTime, time.Local); err == nil {
			db.Exec(`UPDATE events SET end_time = $1, updated_at = NOW() WHERE id = $2`, t, id)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "UPDATED"})
}

// HandleUpdateEventStatus 手动流转赛事状态
func HandleUpdateEventStatus(c *gin.Context, db *sql.DB) {
	id := c.Param("id")

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	var current string
	err := db.QueryRow(`SELECT status FROM events WHERE id = $1`, id).Scan(&current)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "EVENT_NOT_FOUND", "message": "赛事不存在"})
		return
	}
	if !CanTransition(current, req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_TRANSITION", "message": "不允许从 " + current + " 切换到 " + req.Status})
		return
	}

	_, err = db.Exec(`UPDATE events SET status = $1, updated_at = NOW() WHERE id = $2`, req.Status, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "UPDATED", "status": req.Status})
}

// HandleDeleteEvent 删除赛事（仅限 planning 状态）
func HandleDeleteEvent(c *gin.Context, db *sql.DB) {
	id := c.Param("id")

	var status string
	err := db.QueryRow(`SELECT status FROM events WHERE id = $1`, id).Scan(&status)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "EVENT_NOT_FOUND", "message": "赛事不存在"})
		return
	}
	if status != StatusPlanning {
		c.JSON(http.StatusBadRequest, gin.H{"error": "EVENT_NOT_DELETABLE", "message": "只能删除未开始筹备中的赛事"})
		return
	}

	db.Exec(`DELETE FROM announcements WHERE event_id = $1`, id)
	result, err := db.Exec(`DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "EVENT_NOT_FOUND"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "DELETED"})
}
