// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package admin

import (
	"database/sql"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// UserDetail 用户详情
type UserDetail struct {
	ID          int64   `json:"id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"displayName"`
	Email       *string `json:"email"`
	Role        string  `json:"role"`
	IsBanned    bool    `json:"isBanned"`
	IsHidden    bool    `json:"isHidden"`
	Score       int     `json:"score"`
	TeamID      *int64  `json:"teamId"`
	TeamName    *string `json:"teamName"`
	LastLoginIP *string `json:"lastLoginIp"`
	LastLoginAt *string `json:"lastLoginAt"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

// CreateUserRequest 创建用户请求
type CreateUserRequest struct {
	Username    string `json:"username" binding:"required"`
	DisplayName string `json:"displayName" binding:"required"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Password    string `json:"password" binding:"required"`
}

// HandleListUsers 获取用户列表
func HandleListUsers(c *gin.Context, db *sql.DB) {
	rows, err := db.Query(`
		SELECT u.id, u.username, u.display_name, u.email, u.role, u.is_banned, u.is_hidden, u.score,
		       u.team_id, t.name as team_name,
		       u.last_login_ip,
		       TO_CHAR(u.last_login_at, 'YYYY-MM-DD HH24:MI') as last_login_at,
		       TO_CHAR(u.created_at, 'YYYY-MM-DD HH24:MI') as created_at,
		       TO_CHAR(u.updated_at, 'YYYY-MM-DD HH24:MI') as updated_at
		FROM users u
		LEFT JOIN teams t ON u.team_id = t.id
		ORDER BY u.id ASC`)
	if err != nil {
		log.Printf("list users error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}
	defer rows.Close()

	var users []UserDetail
	for rows.Next() {
		var u UserDetail
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Email, &u.Role, &u.IsBanned, &u.IsHidden, &u.Score,
			&u.TeamID, &u.TeamName, &u.LastLoginIP, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
			log.Printf("scan user error: %v", err)
			continue
		}
		users = append(users, u)
	}
	if users == nil {
		users = []UserDetail{}
	}

	// 统计
	var total, adminCount, activeToday, bannedCount int64
	db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&total)
	db.QueryRow(`SELECT COUNT(*) FROM users WHERE role = 'admin'`).Scan(&adminCount)
	db.QueryRow(`SELECT COUNT(*) FROM users WHERE last_login_at >= CURRENT_DATE`).Scan(&activeToday)
	db.QueryRow(`SELECT COUNT(*) FROM users WHERE is_banned = true`).Scan(&bannedCount)

	c.JSON(http.StatusOK, gin.H{
		"users": users,
		"stats": gin.H{
			"total":       total,
			"adminCount":  adminCount,
			"activeToday": activeToday,
			"bannedCount": bannedCount,
		},
	})
}

// HandleCreateUser 创建用户
func HandleCreateUser(c *gin.Context, db *sql.DB) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	var exists int
	db.QueryRow(`SELECT 1 FROM users WHERE username = $1`, req.Username).Scan(&exists)
	if exists == 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "USERNAME_EXISTS"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("hash password error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	role := req.Role
	if role == "" {
		role = "user"
	}
	if role != "user" && role != "admin" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_ROLE"})
		return
	}

	var email *string
	if req.Email != "" {
		email = &req.Email
	}

	var id int64
	err = db.QueryRow(`INSERT INTO users (username, display_name, email, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW()) RETURNING id`,
		req.Username, req.DisplayName, email, role, string(hash)).Scan(&id)
	if err != nil {
		log.Printf("create user error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "message": "CREATED"})
}

// HandleUpdateUser 更新用户
func HandleUpdateUser(c *gin.Context, db *sql.DB) {
	id := c.Param("id")

	// 使用 map 解析以区分"未传递"和"传递null"
	var rawReq map[string]interface{}
	if err := c.ShouldBindJSON(&rawReq); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	var updates []string
	var args []interface{}
	argIndex := 1

	if displayName, ok := rawReq["displayName"].(string); ok && displayName != "" {
		updates = append(updates, "display_name = $"+strconv.Itoa(argIndex))
		args = append(args, displayName)
		argIndex++
	}
	if email, ok := rawReq["email"].(string); ok && email != "" {
		updates = append(updates, "email = $"+strconv.Itoa(argIndex))
		args = append(args, email)
		argIndex++
	}
	if role, ok := rawReq["role"].(string); ok && role != "" {
		if role != "user" && role != "admin" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_ROLE"})
			return
		}
		updates = append(updates, "role = $"+strconv.Itoa(argIndex))
		args = append(args, role)
		argIndex++
	}
	if isBanned, ok := rawReq["isBanned"].(bool); ok {
		updates = append(updates, "is_banned = $"+strconv.Itoa(argIndex))
		args = append(args, isBanned)
		argIndex++
	}
	if isHidden, ok := rawReq["isHidden"].(bool); ok {
		updates = append(updates, "is_hidden = $"+strconv.Itoa(argIndex))
		args = append(args, isHidden)
		argIndex++
	}

	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "NO_UPDATES"})
		return
	}

	updates = append(updates, "updated_at = NOW()")
	args = append(args, id)

	query := "UPDATE users SET " + strings.Join(updates, ", ") + " WHERE id = $" + strconv.Itoa(argIndex)
	result, err := db.Exec(query, args...)
	if err != nil {
		log.Printf("update user error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "NOT_FOUND"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "UPDATED"})
}

// HandleDeleteUser 删除用户
func HandleDeleteUser(c *gin.Context, db *sql.DB) {
	id := c.Param("id")

	result, err := db.Exec(`DELETE FROM users WHERE id = $1 AND role != 'admin'`, id)
	if err != nil {
		log.Printf("delete user error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "NOT_FOUND"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "DELETED"})
}

// HandleResetPassword 重置密码（默认重置为123456）
func HandleResetPassword(c *gin.Context, db *sql.DB) {
	id := c.Param("id")

	defaultPassword := "123456"
	hash, err := bcrypt.GenerateFromPassword([]byte(defaultPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("hash password error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	// 重置密码并设置强制修改密码标记，同时递增 token_version 使旧登录失效
	result, err := db.Exec(`UPDATE users SET password_hash = $1, must_change_password = TRUE, token_version = COALESCE(token_version, 1) + 1, updated_at = NOW() WHERE id = $2`, string(hash), id)
	if err != nil {
		log.Printf("reset password error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "NOT_FOUND"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "PASSWORD_RESET"})
}

// BatchUserRequest 批量操作请求
type BatchUserRequest struct {
	UserIDs []int64 `json:"userIds" binding:"required"`
}

// HandleBatchBanUsers 批量封禁用户
func HandleBatchBanUsers(c *gin.Context, db *sql.DB) {
	var req BatchUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}
	if len(req.UserIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "NO_USERS_SELECTED"})
		return
	}

	// 构建批量更新SQL（排除管理员）
	placeholders := make([]string, len(req.UserIDs))
	args := make([]interface{}, len(req.UserIDs))
	for i, id := range req.UserIDs {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}

	query := `UPDATE users SET is_banned = true, token_version = COALESCE(token_version, 1) + 1, updated_at = NOW() WHERE id IN (` + strings.Join(placeholders, ",") + `) AND role != 'admin'`
	result, err := db.Exec(query, args...)
	if err != nil {
		log.Printf("batch ban users error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	rowsAffected, _ := result.RowsAffected()
	c.JSON(http.StatusOK, gin.H{"message": "BATCH_BANNED", "count": rowsAffected})
}

// HandleBatchUnbanUsers 批量解封用户
func HandleBatchUnbanUsers(c *gin.Context, db *sql.DB) {
	var req BatchUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}
	if len(req.UserIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "NO_USERS_SELECTED"})
		return
	}

	placeholders := make([]string, len(req.UserIDs))
	args := make([]interface{}, len(req.UserIDs))
	for i, id := range req.UserIDs {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}

	query := `UPDATE users SET is_banned = false, updated_at = NOW() WHERE id IN (` + strings.Join(placeholders, ",") + `)`
	result, err := db.Exec(query, args...)
	if err != nil {
		log.Printf("batch unban users error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	rowsAffected, _ := result.RowsAffected()
	c.JSON(http.StatusOK, gin.H{"message": "BATCH_UNBANNED", "count": rowsAffected})
}

// HandleSetUserTeam 设置用户加入队伍
func HandleSetUserTeam(c *gin.Context, db *sql.DB) {
	userID := c.Param("id")

	var req struct {
		TeamID *int64 `json:"teamId"` // 为nil表示退出队伍
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	var userRole string
	err := db.QueryRow(`SELECT role FROM users WHERE id = $1`, userID).Scan(&userRole)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "USER_NOT_FOUND"})
		return
	}

	if req.TeamID != nil {
		var exists bool
		db.QueryRow(`SELECT EXISTS(SELECT 1 FROM teams WHERE id = $1)`, *req.TeamID).Scan(&exists)
		if !exists {
			c.JSON(http.StatusNotFound, gin.H{"error": "TEAM_NOT_FOUND"})
			return
		}
		_, err = db.Exec(`UPDATE users SET team_id = $1, updated_at = NOW() WHERE id = $2`, *req.TeamID, userID)
	} else {
		_, err = db.Exec(`UPDATE users SET team_id = NULL, updated_at = NOW() WHERE id = $1`, userID)
	}

	if err != nil {
		log.Printf("set user team error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "TEAM_SET"})
}
