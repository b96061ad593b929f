// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package main

import (
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"dctf/server/admin"
	"dctf/server/logs"
	"dctf/server/user"
)

// ensureAdmin 确保管理员账户存在（由环境变量控制）
func ensureAdmin(db *sql.DB) error {
	username := os.Getenv("ADMIN_USERNAME")
	password := os.Getenv("ADMIN_PASSWORD")
	displayName := os.Getenv("ADMIN_DISPLAY_NAME")

	if username == "" || password == "" {
		return nil
	}

	if displayName == "" {
		displayName = username
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	var existingID int64
	err = db.QueryRow(`SELECT id FROM users WHERE username = $1`, username).Scan(&existingID)

	if err == sql.ErrNoRows {
		// 用户不存在，创建管理员
		var newID int64
		err = db.QueryRow(`INSERT INTO users (username, display_name, role, password_hash, created_at, updated_at)
			VALUES ($1, $2, 'admin', $3, NOW(), NOW()) RETURNING id`,
			username, displayName, string(hash)).Scan(&newID)
		if err != nil {
			return err
		}
		log.Printf("[ensureAdmin] Created admin: %s (ID: %d)", username, newID)
	} else if err == nil {
		// 用户已存在，更新为管理员并重置密码
		_, err = db.Exec(`UPDATE users SET role = 'admin', display_name = $1, password_hash = $2,
			is_banned = FALSE, updated_at = NOW() WHERE id = $3`,
			displayName, string(hash), existingID)
		if err != nil {
			return err
		}
		log.Printf("[ensureAdmin] Updated admin: %s (ID: %d)", username, existingID)
	} else {
		return err
	}

	return nil
}

// handleLogin 处理登录请求
func handleLogin(c *gin.Context, db *sql.DB, secret []byte) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	var (
		id                 int64
		username           string
		displayName        string
		role               string
		passwordHash       string
		mustChangePassword bool
		tokenVersion       int
		isBanned           bool
	)

	err := db.QueryRow(
		`SELECT id, username, display_name, role, password_hash, COALESCE(must_change_password, FALSE), COALESCE(token_version, 1), is_banned FROM users WHERE username = $1`,
		req.Username,
	).Scan(&id, &username, &displayName, &role, &passwordHash, &mustChangePassword, &tokenVersion, &isBanned)

	clientIP := c.ClientIP()

	if err == sql.ErrNoRows {
		// 用户不存在，记录失败日志
		logs.WriteLog(db, logs.TypeLogin, logs.LevelError, nil, nil, nil, nil, clientIP,
			"登录失败: 用户 ["+req.Username+"] 不存在", nil)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "INVALID_CREDENTIALS"})
		return
	}
	if err != nil {
		log.Printf("query user error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	// 检查用户是否被封禁
	if isBanned {
		logs.WriteLog(db, logs.TypeLogin, logs.LevelError, &id, nil, nil, nil, clientIP,
			"登录失败: 用户 ["+displayName+"] 已被封禁", nil)
		c.JSON(http.StatusForbidden, gin.H{"error": "ACCOUNT_DISABLED", "message": "该账号不可用，请联系管理员"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)); err != nil {
		// 密码错误，记录失败日志
		logs.WriteLog(db, logs.TypeLogin, logs.LevelError, &id, nil, nil, nil, clientIP,
			"登录失败: 用户 ["+displayName+"] 密码错误", nil)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "INVALID_CREDENTIALS"})
		return
	}

	// 更新最后登录IP和时间
	db.Exec(`UPDATE users SET last_login_ip = $1, last_login_at = NOW(), updated_at = NOW() WHERE id = $2`, clientIP, id)

	// 记录登录日志
	logs.WriteLogSimple(db, logs.TypeLogin, logs.LevelSuccess, id, clientIP, displayName+" 登录系统")

	token, err := generateJWT(User{
		ID:          id,
		Username:    username,
		DisplayName: displayName,
		Role:        role,
	}, secret, tokenVersion)
	if err != nil {
		log.Printf("generate token error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": User{
			ID:          id,
			Username:    username,
			DisplayName: displayName,
			Role:        role,
		},
		"mustChangePassword": mustChangePassword,
	})
}

// handleRegister 处理注册请求
func handleRegister(c *gin.Context, db *sql.DB) {
	if !admin.IsRegistrationOpen(db) {
		c.JSON(http.StatusForbidden, gin.H{"error": "REGISTRATION_CLOSED", "message": "平台暂未开放注册"})
		return
	}

	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	if valid, msg := user.ValidatePasswordStrength(req.Password); !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "WEAK_PASSWORD", "message": msg})
		return
	}

	var exists bool
	db.QueryRow(`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, req.Username).Scan(&exists)
	if exists {
		c.JSON(http.StatusConflict, gin.H{"error": "USERNAME_EXISTS", "message": "用户名已存在"})
		return
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("generate password hash error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	var id int64
	err = db.QueryRow(`INSERT INTO users (username, display_name, email, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), 'user', $4, NOW(), NOW()) RETURNING id`,
		req.Username, displayName, req.Email, string(hash)).Scan(&id)
	if err != nil {
		log.Printf("create user error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	clientIP := c.ClientIP()
	logs.WriteLogSimple(db, logs.TypeRegister, logs.LevelSuccess, id, clientIP, displayName+" 注册账号")

	c.JSON(http.StatusCreated, gin.H{"id": id, "message": "REGISTERED"})
}

// generateJWT 生成JWT令牌
func generateJWT(u User, secret []byte, tokenVersion int) (string, error) {
	claims := jwt.MapClaims{
		"sub":          u.ID,
		"username":     u.Username,
		"displayName":  u.DisplayName,
		"role":         u.Role,
		"tokenVersion": tokenVersion,
		"exp":          time.Now().Add(24 * time.Hour).Unix(),
		"iat":          time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
