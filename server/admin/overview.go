// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package admin

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"
)

// OverviewStats 概览统计
type OverviewStats struct {
	Users       int `json:"users"`
	Events      int `json:"events"`
	Teams       int `json:"teams"`
	Challenges  int `json:"challenges"`
	Submissions int `json:"submissions"`
	Solves      int `json:"solves"`
}

// HandleAdminOverview 后台概览统计
func HandleAdminOverview(c *gin.Context, db *sql.DB) {
	var stats OverviewStats

	// 查询用户数
	db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&stats.Users)

	// 查询赛事数
	db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&stats.Events)

	// 查询队伍数
	db.QueryRow(`SELECT COUNT(*) FROM teams`).Scan(&stats.Teams)

	// 查询题目数
	db.QueryRow(`SELECT COUNT(*) FROM challenges`).Scan(&stats.Challenges)

	// 查询提交与解题数
	db.QueryRow(`SELECT COUNT(*) FROM submissions`).Scan(&stats.Submissions)
	db.QueryRow(`SELECT COUNT(*) FROM solves`).Scan(&stats.Solves)

	c.JSON(http.StatusOK, stats)
}
