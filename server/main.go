// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package main

import (
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"

	"dctf/server/admin"
	"dctf/server/challenge"
	"dctf/server/event"
	"dctf/server/logs"
	"dctf/server/scoreboard"
	"dctf/server/submission"
	"dctf/server/user"
)

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}

	if err := ensureAdmin(db); err != nil {
		log.Fatalf("failed to ensure admin user: %v", err)
	}

	// 初始化自动公告函数（Flag提交时自动发布一血/解题公告）
	submission.AnnounceBlood = event.AnnounceBlood
	submission.AnnounceSolve = func(db *sql.DB, eventID int64, challengeName, solverName string, points int) {
		if admin.IsAnnounceSolveEnabled(db) {
			event.AnnounceSolve(db, eventID, challengeName, solverName, points)
		}
	}

	// 初始化题目状态变更公告函数
	challenge.AnnounceChallengeState = event.AnnounceChallenge

	// 初始化提交冷却时间获取函数（可由系统设置覆盖）
	submission.GetSubmitCooldown = func(db *sql.DB) float64 {
		v := admin.GetSystemSetting(db, "submit_cooldown_sec", "10")
		if sec, err := strconv.ParseFloat(v, 64); err == nil && sec >= 0 {
			return sec
		}
		return 10
	}

	r := gin.Default()

	api := r.Group("/api")
	{
		api.POST("/login", func(c *gin.Context) {
			handleLogin(c, db, []byte(jwtSecret))
		})
		api.POST("/register", func(c *gin.Context) {
			handleRegister(c, db)
		})

		// 公开的赛事列表API（无需认证，不含已归档赛事）
		api.GET("/events", func(c *gin.Context) {
			event.HandleListEvents(c, db)
		})

		// ========== 公开的排行榜API（无需认证，可由设置关闭）==========
		api.GET("/events/:id/scoreboard", func(c *gin.Context) {
			if !admin.IsScoreboardVisible(db) {
				c.JSON(http.StatusForbidden, gin.H{"error": "SCOREBOARD_HIDDEN", "message": "排行榜暂不可见"})
				return
			}
			scoreboard.HandleGetScoreboard(c, db)
		})
		api.GET("/events/:id/scoreboard/timeline", func(c *gin.Context) {
			if !admin.IsScoreboardVisible(db) {
				c.JSON(http.StatusForbidden, gin.H{"error": "SCOREBOARD_HIDDEN", "message": "排行榜暂不可见"})
				return
			}
			scoreboard.HandleGetScoreTimeline(c, db)
		})
		api.GET("/events/:id/solves/recent", func(c *gin.Context) {
			scoreboard.HandleGetRecentSolves(c, db)
		})

		// 需要登录的用户API
		userAPI := api.Group("")
		userAPI.Use(userAuthMiddleware([]byte(jwtSecret), db))
		{
			// 获取赛事详情（登录用户）
			userAPI.GET("/events/:id", func(c *gin.Context) {
				event.HandleGetEvent(c, db)
			})
			// 获取赛事题目列表（登录用户，只返回可见题目，不返回flag）
			userAPI.GET("/events/:id/challenges", func(c *gin.Context) {
				challenge.HandleGetEventChallenges(c, db)
			})

			// ========== Flag提交与解题 API ==========
			userAPI.POST("/events/:id/challenges/:challengeId/submit", func(c *gin.Context) {
				submission.HandleSubmitFlag(c, db)
			})
			userAPI.GET("/events/:id/solves", func(c *gin.Context) {
				submission.HandleGetMySolves(c, db)
			})
			userAPI.GET("/events/:id/challenges/:challengeId/stats", func(c *gin.Context) {
				submission.HandleGetChallengeStats(c, db)
			})

			// 赛事公告
			userAPI.GET("/events/:id/announcements", func(c *gin.Context) {
				event.HandleListAnnouncements(c, db)
			})

			// ========== 提示 API ==========
			userAPI.GET("/challenges/:challengeId/hints", func(c *gin.Context) {
				challenge.HandleListVisibleHints(c, db)
			})
			userAPI.POST("/hints/:hintId/unlock", func(c *gin.Context) {
				submission.HandleUnlockHint(c, db)
			})

			// ========== 用户个人中心 API ==========
			userAPI.GET("/profile", func(c *gin.Context) {
				user.HandleGetProfile(c, db)
			})
			userAPI.PUT("/profile", func(c *gin.Context) {
				user.HandleUpdateProfile(c, db)
			})
			userAPI.POST("/profile/password", func(c *gin.Context) {
				user.HandleChangePassword(c, db)
			})
			userAPI.GET("/profile/team", func(c *gin.Context) {
				user.HandleGetMyTeam(c, db)
			})
			userAPI.POST("/logout", func(c *gin.Context) {
				user.HandleLogout(c, db)
			})
		}

		// 管理员后台API
		adminAPI := api.Group("/admin")
		adminAPI.Use(adminAuthMiddleware([]byte(jwtSecret), db))
		{
			adminAPI.GET("/overview", func(c *gin.Context) {
				admin.HandleAdminOverview(c, db)
			})

			// ========== 赛事管理 ==========
			adminAPI.GET("/events", func(c *gin.Context) {
				event.HandleListAllEvents(c, db)
			})
			adminAPI.POST("/events", func(c *gin.Context) {
				event.HandleCreateEvent(c, db)
			})
			adminAPI.GET("/events/:id", func(c *gin.Context) {
				event.HandleGetEvent(c, db)
			})
			adminAPI.PUT("/events/:id", func(c *gin.Context) {
				event.HandleUpdateEvent(c, db)
			})
			adminAPI.PUT("/events/:id/status", func(c *gin.Context) {
				event.HandleUpdateEventStatus(c, db)
			})
			adminAPI.DELETE("/events/:id", func(c *gin.Context) {
				event.HandleDeleteEvent(c, db)
			})

			// ========== 题目管理 ==========
			adminAPI.GET("/challenges", func(c *gin.Context) {
				challenge.HandleListChallenges(c, db)
			})
			adminAPI.POST("/challenges", func(c *gin.Context) {
				challenge.HandleCreateChallenge(c, db)
			})
			adminAPI.PUT("/challenges/:challengeId", func(c *gin.Context) {
				challenge.HandleUpdateChallenge(c, db)
			})
			adminAPI.PUT("/challenges/:challengeId/state", func(c *gin.Context) {
				challenge.HandleUpdateChallengeState(c, db)
			})
			adminAPI.DELETE("/challenges/:challengeId", func(c *gin.Context) {
				challenge.HandleDeleteChallenge(c, db)
			})

			// ========== 题目类别管理 ==========
			adminAPI.GET("/categories", func(c *gin.Context) {
				challenge.HandleListCategories(c, db)
			})
			adminAPI.POST("/categories", func(c *gin.Context) {
				challenge.HandleCreateCategory(c, db)
			})
			adminAPI.PUT("/categories/:categoryId", func(c *gin.Context) {
				challenge.HandleUpdateCategory(c, db)
			})
			adminAPI.DELETE("/categories/:categoryId", func(c *gin.Context) {
				challenge.HandleDeleteCategory(c, db)
			})

			// ========== Flag管理 ==========
			adminAPI.GET("/challenges/:challengeId/flags", func(c *gin.Context) {
				challenge.HandleListFlags(c, db)
			})
			adminAPI.POST("/challenges/:challengeId/flags", func(c *gin.Context) {
				challenge.HandleCreateFlag(c, db)
			})
			adminAPI.PUT("/flags/:flagId", func(c *gin.Context) {
				challenge.HandleUpdateFlag(c, db)
			})
			adminAPI.DELETE("/flags/:flagId", func(c *gin.Context) {
				challenge.HandleDeleteFlag(c, db)
			})

			// ========== 提示管理 ==========
			adminAPI.GET("/challenges/:challengeId/hints", func(c *gin.Context) {
				challenge.HandleListHints(c, db)
			})
			adminAPI.POST("/challenges/:challengeId/hints", func(c *gin.Context) {
				challenge.HandleCreateHint(c, db)
			})
			adminAPI.PUT("/hints/:hintId", func(c *gin.Context) {
				challenge.HandleUpdateHint(c, db)
			})
			adminAPI.DELETE("/hints/:hintId", func(c *gin.Context) {
				challenge.HandleDeleteHint(c, db)
			})

			// ========== 题目批量导入/导出 ==========
			adminAPI.POST("/events/:id/challenges/import", func(c *gin.Context) {
				challenge.HandleImportChallenges(c, db)
			})
			adminAPI.GET("/challenges/template", func(c *gin.Context) {
				challenge.HandleDownloadChallengeTemplate(c, db)
			})
			adminAPI.GET("/events/:id/solves/export", func(c *gin.Context) {
				challenge.HandleExportSolves(c, db)
			})

			// ========== 赛事公告管理 ==========
			adminAPI.GET("/events/:id/announcements", func(c *gin.Context) {
				event.HandleListAnnouncements(c, db)
			})
			adminAPI.POST("/events/:id/announcements", func(c *gin.Context) {
				event.HandleCreateAnnouncement(c, db)
			})
			adminAPI.PUT("/events/:id/announcements/:announcementId", func(c *gin.Context) {
				event.HandleUpdateAnnouncement(c, db)
			})
			adminAPI.DELETE("/events/:id/announcements/:announcementId", func(c *gin.Context) {
				event.HandleDeleteAnnouncement(c, db)
			})

			// ========== 用户管理 ==========
			adminAPI.GET("/users", func(c *gin.Context) {
				admin.HandleListUsers(c, db)
			})
			adminAPI.POST("/users", func(c *gin.Context) {
				admin.HandleCreateUser(c, db)
			})
			adminAPI.PUT("/users/:id", func(c *gin.Context) {
				admin.HandleUpdateUser(c, db)
			})
			adminAPI.DELETE("/users/:id", func(c *gin.Context) {
				admin.HandleDeleteUser(c, db)
			})
			adminAPI.POST("/users/:id/reset-password", func(c *gin.Context) {
				admin.HandleResetPassword(c, db)
			})
			adminAPI.POST("/users/batch-ban", func(c *gin.Context) {
				admin.HandleBatchBanUsers(c, db)
			})
			adminAPI.POST("/users/batch-unban", func(c *gin.Context) {
				admin.HandleBatchUnbanUsers(c, db)
			})
			adminAPI.PUT("/users/:id/team", func(c *gin.Context) {
				admin.HandleSetUserTeam(c, db)
			})

			// ========== 队伍管理 ==========
			adminAPI.GET("/teams", func(c *gin.Context) {
				admin.HandleListTeams(c, db)
			})
			adminAPI.POST("/teams", func(c *gin.Context) {
				admin.HandleCreateTeam(c, db)
			})
			adminAPI.GET("/teams/:id", func(c *gin.Context) {
				admin.HandleGetTeam(c, db)
			})
			adminAPI.PUT("/teams/:id", func(c *gin.Context) {
				admin.HandleUpdateTeam(c, db)
			})
			adminAPI.DELETE("/teams/:id", func(c *gin.Context) {
				admin.HandleDeleteTeam(c, db)
			})
			adminAPI.POST("/teams/:id/score", func(c *gin.Context) {
				admin.HandleAdjustTeamScore(c, db)
			})

			// ========== 系统设置 ==========
			adminAPI.GET("/settings", func(c *gin.Context) {
				admin.HandleGetSystemSettings(c, db)
			})
			adminAPI.PUT("/settings", func(c *gin.Context) {
				admin.HandleUpdateSystemSettings(c, db)
			})

			// ========== 系统日志 ==========
			adminAPI.GET("/logs", func(c *gin.Context) {
				logs.HandleGetLogs(c, db)
			})
			adminAPI.GET("/logs/ws", func(c *gin.Context) {
				logs.HandleLogsWebSocket(c)
			})
		}
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	// 启动赛事状态自动更新定时器
	event.StartEventStatusUpdater(db)

	if err := r.Run(":" + port); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
