// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package user

import (
	"database/sql"
	"log"
	"net/http"
	"regexp"

	"dctf/server/logs"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// ProfileInfo 用户个人信息
type ProfileInfo struct {
	ID                 int64   `json:"id"`
	Username           string  `json:"username"`
	DisplayName        string  `json:"displayName"`
	Email              *string `json:"email"`
	Role               string  `json:"role"`
	TeamID             *int64  `json:"teamId"`
	TeamName           *string `json:"teamName"`
	Score              int     `json:"score"`
	MustChangePassword bool    `json:"mustChangePassword"`
	LastLoginIP        *string `json:"lastLoginIp"`
	LastLoginAt        *string `json:"lastLoginAt"`
	CreatedAt          string  `json:"createdAt"`
}

// TeamInfo 队伍信息
type TeamInfo struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	Score     int          `json:"score"`
	Members   []TeamMember `json:"members"`
	CreatedAt string       `json:"createdAt"`
}

// TeamMember 队伍成员
type TeamMember struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

// UpdateProfileRequest 更新个人信息请求
type UpdateProfileRequest struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// ChangePasswordRequest 修改密码请求
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"` // 强制改密时可为空
	NewPassword string `json:"newPassword" binding:"required"`
}

// ValidatePasswordStrength 验证密码强度：必须包含大小写字母、数字、特殊符号
func ValidatePasswordStrength(password string) (bool, string) {
	if len(password) < 8 {
		return false, "密码长度至少8位"
	}
	// 大写字母
	hasUpper := regexp.MustCompile(`[A-Z]`).MatchString(password)
	if !hasUpper {
		return false, "密码必须包含大写字母"
	}
	// 小写字母
	hasLower := regexp.MustCompile(`[a-z]`).MatchString(password)
	if !hasLower {
		return false, "密码必须包含小写字母"
	}
	// 数字
	hasDigit := regexp.MustCompile(`[0-9]`).MatchString(password)
	if !hasDigit {
		return false, "密码必须包含数字"
	}
	// 特殊符号
	hasSpecial := regexp.MustCompile(`[!@#$%^&*()_+\-=\[\]{};':"\\|,.<>/?~]`).MatchString(password)
	if !hasSpecial {
		return false, "密码必须包含特殊符号(!@#$%^&*等)"
	}
	return true, ""
}

// HandleGetProfile 获取当前用户个人信息
func HandleGetProfile(c *gin.Context, db *sql.DB) {
	userID := c.GetInt64("userID")

	var p ProfileInfo
	var email, teamName, lastLoginIP, lastLoginAt sql.NullString
	var teamID sql.NullInt64

	err := db.QueryRow(`
		SELECT u.id, u.username, u.display_name, u.email, u.role,
		       u.team_id, t.name, u.score,
		       COALESCE(u.must_change_password, FALSE),
		       u.last_login_ip,
		       COALESCE(TO_CHAR(u.last_login_at, 'YYYY-MM-DD HH24:MI'), ''),
		       COALESCE(TO_CHAR(u.created_at, 'YYYY-MM-DD HH24:MI'), '')
		FROM users u
		LEFT JOIN teams t ON u.team_id = t.id
		WHERE u.id = $1`, userID).Scan(
		&p.ID, &p.Username, &p.DisplayName, &email, &p.Role,
		&teamID, &teamName, &p.Score,
		&p.MustChangePassword,
		&lastLoginIP, &lastLoginAt, &p.CreatedAt)

	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "USER_NOT_FOUND"})
		return
	}
	if err != nil {
		log.Printf("get profile error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	if email.Valid {
		p.Email = &email.String
	}
	if teamID.Valid {
		p.TeamID = &teamID.Int64
	}
	if teamName.Valid {
		p.TeamName = &teamName.String
	}
	if lastLoginIP.Valid {
		p.LastLoginIP = &lastLoginIP.String
	}
	if lastLoginAt.Valid && lastLoginAt.String != "" {
		p.LastLoginAt = &lastLoginAt.String
	}

	c.JSON(http.StatusOK, p)
}

// HandleUpdateProfile 更新个人信息
func HandleUpdateProfile(c *gin.Context, db *sql.DB) {
	userID := c.GetInt64("userID")

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	if req.DisplayName == "" && req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "NO_UPDATES"})
		return
	}

	_, err := db.Exec(`
		UPDATE users SET
			display_name = COALESCE(NULLIF($1, ''), display_name),
			email = COALESCE(NULLIF($2, ''), email),
			updated_at = NOW()
		WHERE id = $3`, req.DisplayName, req.Email, userID)
	if err != nil {
		log.Printf("update profile error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "UPDATED"})
}

// HandleChangePassword 修改密码（成功后旧 token 全部失效）
func HandleChangePassword(c *gin.Context, db *sql.DB) {
	userID := c.GetInt64("userID")

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	// 验证密码强度
	if valid, msg := ValidatePasswordStrength(req.NewPassword); !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "WEAK_PASSWORD", "message": msg})
		return
	}

	// 检查是否是强制改密状态
	var mustChangePassword bool
	var currentHash string
	err := db.QueryRow(`SELECT password_hash, COALESCE(must_change_password, FALSE) FROM users WHERE id = $1`, userID).Scan(&currentHash, &mustChangePassword)
	if err != nil {
		log.Printf("get password hash error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	// 如果不是强制改密状态，则需要验证旧密码
	if !mustChangePassword {
		if req.OldPassword == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "OLD_PASSWORD_REQUIRED"})
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(currentHash), []byte(req.OldPassword)); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "WRONG_PASSWORD"})
			return
		}
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("generate password hash error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	// 更新密码、清除强制改密标记，并递增 token_version 使旧 token 失效
	_, err = db.Exec(`
		UPDATE users SET password_hash = $1, must_change_password = FALSE,
			token_version = token_version + 1, updated_at = NOW()
		WHERE id = $2`, string(newHash), userID)
	if err != nil {
		log.Printf("update password error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	// 记录修改密码日志
	clientIP := c.ClientIP()
	logs.WriteLogSimple(db, logs.TypePasswordChange, logs.LevelInfo, userID, clientIP, "用户修改密码")

	c.JSON(http.StatusOK, gin.H{"message": "PASSWORD_CHANGED"})
}

// HandleGetMyTeam 获取当前用户的队伍信息
func HandleGetMyTeam(c *gin.Context, db *sql.DB) {
	userID := c.GetInt64("userID")

	var teamID sql.NullInt64
	err := db.QueryRow(`SELECT team_id FROM users WHERE id = $1`, userID).Scan(&teamID)
	if err != nil {
		log.Printf("get user team_id error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	if !teamID.Valid {
		c.JSON(http.StatusOK, gin.H{"team": nil, "message": "NO_TEAM"})
		return
	}

	var team TeamInfo
	err = db.QueryRow(`
		SELECT id, name, score, COALESCE(TO_CHAR(created_at, 'YYYY-MM-DD HH24:MI'), '')
		FROM teams WHERE id = $1`, teamID.Int64).Scan(
		&team.ID, &team.Name, &team.Score, &team.CreatedAt)
	if err != nil {
		log.Printf("get team info error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	rows, err := db.Query(`
		SELECT id, username, display_name
		FROM users
		WHERE team_id = $1
		ORDER BY id ASC`, teamID.Int64)
	if err != nil {
		log.Printf("get team members error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}
	defer rows.Close()

	team.Members = []TeamMember{}
	for rows.Next() {
		var m TeamMember
		if err := rows.Scan(&m.ID, &m.Username, &m.DisplayName); err != nil {
			continue
		}
		team.Members = append(team.Members, m)
	}

	c.JSON(http.StatusOK, gin.H{"team": team})
}

// HandleLogout 用户退出登录（递增 token_version 使当前 token 失效）
func HandleLogout(c *gin.Context, db *sql.DB) {
	userID := c.GetInt64("userID")
	clientIP := c.ClientIP()

	db.Exec(`UPDATE users SET token_version = token_version + 1, updated_at = NOW() WHERE id = $1`, userID)

	var displayName string
	db.QueryRow(`SELECT display_name FROM users WHERE id = $1`, userID).Scan(&displayName)

	logs.WriteLogSimple(db, logs.TypeLogout, logs.LevelInfo, userID, clientIP, displayName+" 退出系统")

	c.JSON(http.StatusOK, gin.H{"message": "LOGGED_OUT"})
}
