// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package admin

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// SystemSettings 平台策略设置
type SystemSettings struct {
	PlatformName         string `json:"platformName"`         // 平台名称
	RegistrationOpen     bool   `json:"registrationOpen"`     // 开放注册
	ScoreboardVisible    bool   `json:"scoreboardVisible"`    // 排行榜对选手可见
	SubmitCooldownSec    int    `json:"submitCooldownSec"`    // 错误提交冷却(秒)
	AnnounceSolveEnabled bool   `json:"announceSolveEnabled"` // 普通解题是否发公告
}

// HandleGetSystemSettings 获取系统设置
func HandleGetSystemSettings(c *gin.Context, db *sql.DB) {
	settings := SystemSettings{
		PlatformName:         "DCTF",
		RegistrationOpen:     true,
		ScoreboardVisible:    true,
		SubmitCooldownSec:    10, // 默认值
		AnnounceSolveEnabled: false,
	}

	rows, err := db.Query(`SELECT key, value FROM system_settings WHERE key IN ('platform_name', 'registration_open', 'scoreboard_visible', 'submit_cooldown_sec', 'announce_solve_enabled')`)
	if err != nil {
		c.JSON(http.StatusOK, settings) // 返回默认值
		return
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			continue
		}
		switch key {
		case "platform_name":
			settings.PlatformName = value
		case "registration_open":
			settings.RegistrationOpen = value == "true"
		case "scoreboard_visible":
			settings.ScoreboardVisible = value == "true"
		case "submit_cooldown_sec":
			if v, err := strconv.Atoi(value); err == nil {
				settings.SubmitCooldownSec = v
			}
		case "announce_solve_enabled":
			settings.AnnounceSolveEnabled = value == "true"
		}
	}

	c.JSON(http.StatusOK, settings)
}

// HandleUpdateSystemSettings 更新系统设置
func HandleUpdateSystemSettings(c *gin.Context, db *sql.DB) {
	var req SystemSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	updates := map[string]string{
		"platform_name":          req.PlatformName,
		"registration_open":      strconv.FormatBool(req.RegistrationOpen),
		"scoreboard_visible":     strconv.FormatBool(req.ScoreboardVisible),
		"submit_cooldown_sec":    strconv.Itoa(req.SubmitCooldownSec),
		"announce_solve_enabled": strconv.FormatBool(req.AnnounceSolveEnabled),
	}

	for key, value := range updates {
		_, err := db.Exec(`
			INSERT INTO system_settings (key, value, updated_at) VALUES ($1, $2, CURRENT_TIMESTAMP)
			ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = CURRENT_TIMESTAMP`,
			key, value)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR", "message": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "设置已保存"})
}

// GetSystemSetting 获取单个系统设置值
func GetSystemSetting(db *sql.DB, key string, defaultValue string) string {
	var value string
	err := db.QueryRow(`SELECT value FROM system_settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		return defaultValue
	}
	return value
}

// IsRegistrationOpen 是否开放注册
func IsRegistrationOpen(db *sql.DB) bool {
	return GetSystemSetting(db, "registration_open", "true") == "true"
}

// IsScoreboardVisible 排行榜是否对选手可见
func IsScoreboardVisible(db *sql.DB) bool {
	return GetSystemSetting(db, "scoreboard_visible", "true") == "true"
}

// IsAnnounceSolveEnabled 普通解题是否发公告
func IsAnnounceSolveEnabled(db *sql.DB) bool {
	return GetSystemSetting(db, "announce_solve_enabled", "false") == "true"
}
