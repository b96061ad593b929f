// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package submission

import (
	"database/sql"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"dctf/server/logs"
)

// 提交结果状态常量
const (
	StatusSuccess            = "success"
	StatusPartial            = "partial"
	StatusAlreadySolved      = "already_solved"
	StatusIncorrect          = "incorrect"
	StatusPrerequisitesUnmet = "prerequisites_unmet"
	StatusEventEnded         = "event_ended"
	StatusInvalidInput       = "invalid_input"
	StatusAttemptsExhausted  = "attempts_exhausted"
	StatusRateLimited        = "rate_limited"
)

// 错误提交冷却时间（秒），可由系统设置覆盖（main中注入）
const defaultSubmitCooldownSeconds = 10.0

// GetSubmitCooldown 获取当前冷却时间（秒）
var GetSubmitCooldown = func(db *sql.DB) float64 {
	return defaultSubmitCooldownSeconds
}

// SubmitFlagRequest 提交flag请求
type SubmitFlagRequest struct {
	Flag string `json:"flag" binding:"required"`
}

// SubmitFlagResponse 提交flag响应
type SubmitFlagResponse struct {
	Status     string `json:"status"`
	Correct    bool   `json:"correct"`
	Message    string `json:"message"`
	Points     int    `json:"points,omitempty"`
	FirstBlood bool   `json:"firstBlood,omitempty"`
	Remaining  int    `json:"remaining,omitempty"`
}

// 公告函数类型定义
type AnnounceBloodFunc func(db *sql.DB, eventID int64, challengeName, solverName string)
type AnnounceSolveFunc func(db *sql.DB, eventID int64, challengeName, solverName string, points int)

// 全局变量，用于注入公告函数
var AnnounceBlood AnnounceBloodFunc
var AnnounceSolve AnnounceSolveFunc

// loadChallenge 加载提交流程需要的题目信息
func loadChallenge(db *sql.DB, challengeID, eventID string) (*ChallengeInfo, error) {
	ch := &ChallengeInfo{}
	err := db.QueryRow(`SELECT id, event_id, name, type, state, flag_logic, value, initial_value, min_value, decay, decay_threshold, max_attempts
		FROM challenges WHERE id = $1 AND event_id = $2`, challengeID, eventID).
		Scan(&ch.ID, &ch.EventID, &ch.Name, &ch.Type, &ch.State, &ch.FlagLogic,
			&ch.Value, &ch.InitialValue, &ch.MinValue, &ch.Decay, &ch.DecayThreshold, &ch.MaxAttempts)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// HandleSubmitFlag 提交flag
func HandleSubmitFlag(c *gin.Context, db *sql.DB) {
	eventID := c.Param("id")
	challengeID := c.Param("challengeId")
	userID := c.GetInt64("userID")
	clientIP := c.ClientIP()

	var req SubmitFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST", "status": StatusInvalidInput, "message": "请输入flag"})
		return
	}
	submittedFlag := strings.TrimSpace(req.Flag)
	if submittedFlag == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST", "status": StatusInvalidInput, "message": "请输入flag"})
		return
	}

	solver, err := ResolveSolver(db, userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "USER_NOT_FOUND", "message": "用户不存在"})
		return
	}

	ch, err := loadChallenge(db, challengeID, eventID)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "CHALLENGE_NOT_FOUND", "message": "题目不存在"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DATABASE_ERROR"})
		return
	}
	if ch.State != "visible" {
		c.JSON(http.StatusNotFound, gin.H{"error": "CHALLENGE_NOT_FOUND", "message": "题目不存在"})
		return
	}

	// 赛事窗口检查：未开始或已结束一律拒绝，且不记录提交
	var eventStatus string
	err = db.QueryRow(`SELECT status FROM events WHERE id = $1`, eventID).Scan(&eventStatus)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "EVENT_NOT_FOUND", "message": "赛事不存在"})
		return
	}
	if eventStatus != "running" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "EVENT_NOT_RUNNING", "status": StatusEventEnded, "message": "赛事未在进行中"})
		return
	}

	// 错误提交冷却检查 - 使用数据库时间计算避免时区问题
	var elapsedSeconds float64
	if solver.IsTeam() {
		err = db.QueryRow(`SELECT EXTRACT(EPOCH FROM (NOW() - submitted_at)) FROM submissions
			WHERE team_id = $1 AND event_id = $2 AND is_correct = false
			ORDER BY submitted_at DESC LIMIT 1`,
			*solver.TeamID, eventID).Scan(&elapsedSeconds)
	} else {
		err = db.QueryRow(`SELECT EXTRACT(EPOCH FROM (NOW() - submitted_at)) FROM submissions
			WHERE user_id = $1 AND team_id IS NULL AND event_id = $2 AND is_correct = false
			ORDER BY submitted_at DESC LIMIT 1`,
			solver.UserID, eventID).Scan(&elapsedSeconds)
	}
	cooldown := GetSubmitCooldown(db)
	if err == nil && elapsedSeconds < cooldown {
		retryAfter := int(math.Ceil(cooldown - elapsedSeconds))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":      "TOO_FAST",
			"status":     StatusRateLimited,
			"message":    "提交太频繁，请稍后再试",
			"retryAfter": retryAfter,
		})
		return
	}

	// 尝试次数限制：只统计错误提交
	if ch.MaxAttempts > 0 {
		var wrongCount int
		if solver.IsTeam() {
			db.QueryRow(`SELECT COUNT(*) FROM submissions WHERE team_id = $1 AND challenge_id = $2 AND is_correct = false`,
				*solver.TeamID, ch.ID).Scan(&wrongCount)
		} else {
			db.QueryRow(`SELECT COUNT(*) FROM submissions WHERE user_id = $1 AND team_id IS NULL AND challenge_id = $2 AND is_correct = false`,
				solver.UserID, ch.ID).Scan(&wrongCount)
		}
		if wrongCount >= ch.MaxAttempts {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ATTEMPTS_EXHAUSTED", "status": StatusAttemptsExhausted, "message": "错误次数已达上限"})
			return
		}
	}

	// 前置题目检查：未满足时拒绝且不记录提交
	prereqIDs, err := LoadPrerequisiteIDs(db, ch.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DATABASE_ERROR"})
		return
	}
	met, err := PrerequisitesMet(prereqIDs, SolvedBySolver(db, solver))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DATABASE_ERROR"})
		return
	}
	if !met {
		c.JSON(http.StatusForbidden, gin.H{"error": "PREREQUISITES_UNMET", "status": StatusPrerequisitesUnmet, "message": "请先解出前置题目"})
		return
	}

	flags, err := loadFlags(db, ch.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DATABASE_ERROR"})
		return
	}
	matched, matchedFlag := MatchFlag(submittedFlag, flags)

	eventIDInt, _ := strconv.ParseInt(eventID, 10, 64)

	// 已解出的题目：仍然匹配并记录提交，但不再计分
	var alreadySolved bool
	db.QueryRow(`SELECT EXISTS(SELECT 1 FROM solves WHERE challenge_id = $1 AND solver_key = $2)`,
		ch.ID, solver.Key()).Scan(&alreadySolved)
	if alreadySolved {
		recordSubmission(db, ch, solver, eventIDInt, submittedFlag, matched, matchedFlag, 0, clientIP)
		writeSubmitLog(db, ch, solver, userID, eventIDInt, clientIP, submittedFlag, matched, 0, "重复提交")
		c.JSON(http.StatusOK, SubmitFlagResponse{
			Status:  StatusAlreadySolved,
			Correct: matched,
			Message: "该题已解出",
		})
		return
	}

	if !matched {
		recordSubmission(db, ch, solver, eventIDInt, submittedFlag, false, nil, 0, clientIP)
		writeSubmitLog(db, ch, solver, userID, eventIDInt, clientIP, submittedFlag, false, 0, "")
		c.JSON(http.StatusOK, SubmitFlagResponse{
			Status:  StatusIncorrect,
			Correct: false,
			Message: "Flag错误",
		})
		return
	}

	// "all"逻辑：累计命中所有Flag才计分，中途命中返回partial
	if ch.FlagLogic == FlagLogicAll && len(flags) > 1 {
		matchedSet, err := loadMatchedFlagIDs(db, ch.ID, solver)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "DATABASE_ERROR"})
			return
		}
		matchedSet[matchedFlag.ID] = true
		remaining := RemainingFlags(flags, matchedSet)
		if remaining > 0 {
			recordSubmission(db, ch, solver, eventIDInt, submittedFlag, true, matchedFlag, 0, clientIP)
			writeSubmitLog(db, ch, solver, userID, eventIDInt, clientIP, submittedFlag, true, 0, "部分命中")
			c.JSON(http.StatusOK, SubmitFlagResponse{
				Status:    StatusPartial,
				Correct:   true,
				Message:   "Flag正确，还需提交剩余Flag",
				Remaining: remaining,
			})
			return
		}
	}

	// 计分：先数已有解题数，再按动态曲线取本次分值
	var solveCount int
	db.QueryRow(`SELECT COUNT(*) FROM solves WHERE challenge_id = $1`, ch.ID).Scan(&solveCount)
	points := CurrentValue(ch, solveCount)
	firstBlood := solveCount == 0

	recordSubmission(db, ch, solver, eventIDInt, submittedFlag, true, matchedFlag, points, clientIP)

	tx, err := db.Begin()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "SCORING_FAILURE", "message": "计分失败，请重试"})
		return
	}

	var teamID, solverUserID interface{}
	if solver.IsTeam() {
		teamID = *solver.TeamID
	} else {
		solverUserID = solver.UserID
	}
	res, err := tx.Exec(`INSERT INTO solves (event_id, challenge_id, solver_key, team_id, user_id, first_solver_id, solve_order, points)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (challenge_id, solver_key) DO NOTHING`,
		eventIDInt, ch.ID, solver.Key(), teamID, solverUserID, userID, solveCount+1, points)
	if err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "SCORING_FAILURE", "message": "计分失败，请重试"})
		return
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		// 并发提交被唯一约束拦下，按已解出处理
		tx.Rollback()
		c.JSON(http.StatusOK, SubmitFlagResponse{
			Status:  StatusAlreadySolved,
			Correct: true,
			Message: "该题已解出",
		})
		return
	}
	if err := applyAward(tx, ch, solver, points, solveCount+1); err != nil {
		tx.Rollback()
		log.Printf("apply award error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "SCORING_FAILURE", "message": "计分失败，请重试"})
		return
	}
	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "SCORING_FAILURE", "message": "计分失败，请重试"})
		return
	}

	// 异步公告：一血与普通解题
	solverName := solver.Name
	challengeName := ch.Name
	if firstBlood && AnnounceBlood != nil {
		go AnnounceBlood(db, eventIDInt, challengeName, solverName)
	} else if AnnounceSolve != nil {
		go AnnounceSolve(db, eventIDInt, challengeName, solverName, points)
	}

	writeSubmitLog(db, ch, solver, userID, eventIDInt, clientIP, submittedFlag, true, points, "")

	resp := SubmitFlagResponse{
		Status:     StatusSuccess,
		Correct:    true,
		Points:     points,
		FirstBlood: firstBlood,
	}
	if firstBlood {
		resp.Message = "一血！恭喜！"
	} else {
		resp.Message = "回答正确！"
	}
	c.JSON(http.StatusOK, resp)
}

// loadFlags 读取题目的Flag定义（按创建顺序）
func loadFlags(db *sql.DB, challengeID int64) ([]FlagDef, error) {
	rows, err := db.Query(`SELECT id, challenge_id, flag, type, is_case_insensitive FROM flags WHERE challenge_id = $1 ORDER BY id`, challengeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flags []FlagDef
	for rows.Next() {
		var f FlagDef
		if err := rows.Scan(&f.ID, &f.ChallengeID, &f.Flag, &f.Type, &f.IsCaseInsensitive); err != nil {
			continue
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

// loadMatchedFlagIDs 读取计分主体在该题目上历史命中的Flag ID集合
func loadMatchedFlagIDs(db *sql.DB, challengeID int64, solver *Solver) (map[int64]bool, error) {
	var rows *sql.Rows
	var err error
	if solver.IsTeam() {
		rows, err = db.Query(`SELECT DISTINCT matched_flag_id FROM submissions
			WHERE team_id = $1 AND challenge_id = $2 AND matched_flag_id IS NOT NULL`, *solver.TeamID, challengeID)
	} else {
		rows, err = db.Query(`SELECT DISTINCT matched_flag_id FROM submissions
			WHERE user_id = $1 AND team_id IS NULL AND challenge_id = $2 AND matched_flag_id IS NOT NULL`, solver.UserID, challengeID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matched := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			continue
		}
		matched[id] = true
	}
	return matched, rows.Err()
}

// recordSubmission 记录提交流水（所有通过门禁的提交都要落库）
func recordSubmission(db *sql.DB, ch *ChallengeInfo, solver *Solver, eventID int64, flag string, isCorrect bool, matchedFlag *FlagDef, points int, ip string) {
	var teamID, matchedFlagID interface{}
	if solver.IsTeam() {
		teamID = *solver.TeamID
	}
	if matchedFlag != nil {
		matchedFlagID = matchedFlag.ID
	}
	_, err := db.Exec(`INSERT INTO submissions (event_id, challenge_id, team_id, user_id, flag, is_correct, matched_flag_id, points, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		eventID, ch.ID, teamID, solver.UserID, flag, isCorrect, matchedFlagID, points, ip)
	if err != nil {
		log.Printf("insert submission error: %v", err)
	}
}

// writeSubmitLog 记录Flag提交日志（包含提交次数）
func writeSubmitLog(db *sql.DB, ch *ChallengeInfo, solver *Solver, userID, eventID int64, ip, flag string, isCorrect bool, points int, note string) {
	var submitCount int
	if solver.IsTeam() {
		db.QueryRow(`SELECT COUNT(*) FROM submissions WHERE team_id = $1 AND challenge_id = $2`,
			*solver.TeamID, ch.ID).Scan(&submitCount)
	} else {
		db.QueryRow(`SELECT COUNT(*) FROM submissions WHERE user_id = $1 AND team_id IS NULL AND challenge_id = $2`,
			solver.UserID, ch.ID).Scan(&submitCount)
	}

	outcome := "错误"
	level := logs.LevelError
	if isCorrect {
		outcome = "正确"
		level = logs.LevelSuccess
	}
	msg := "[" + solver.Name + "] 提交题目 [" + ch.Name + "] 的答案 - " + outcome
	if note != "" {
		msg += "（" + note + "）"
	}

	var teamID *int64
	if solver.IsTeam() {
		teamID = solver.TeamID
	}
	logs.WriteLog(db, logs.TypeFlagSubmit, level, &userID, teamID, &eventID, &ch.ID, ip, msg, map[string]interface{}{
		"flag": flag, "points": points, "submitCount": submitCount,
	})
}

// HandleGetMySolves 获取当前计分主体已解题目列表
func HandleGetMySolves(c *gin.Context, db *sql.DB) {
	eventID := c.Param("id")
	userID := c.GetInt64("userID")

	solver, err := ResolveSolver(db, userID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"solves": []int64{}, "totalScore": 0})
		return
	}

	rows, err := db.Query(`SELECT challenge_id, points, solve_order, solved_at FROM solves
		WHERE event_id = $1 AND solver_key = $2 ORDER BY solved_at`, eventID, solver.Key())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	defer rows.Close()

	type SolveInfo struct {
		ChallengeID int64  `json:"challengeId"`
		Points      int    `json:"points"`
		SolveOrder  int    `json:"solveOrder"`
		SolvedAt    string `json:"solvedAt"`
	}
	var solves []SolveInfo
	totalScore := 0
	for rows.Next() {
		var s SolveInfo
		var solvedAt sql.NullTime
		if err := rows.Scan(&s.ChallengeID, &s.Points, &s.SolveOrder, &solvedAt); err != nil {
			continue
		}
		if solvedAt.Valid {
			s.SolvedAt = solvedAt.Time.Format("2006-01-02 15:04:05")
		}
		totalScore += s.Points
		solves = append(solves, s)
	}
	if solves == nil {
		solves = []SolveInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"solves": solves, "totalScore": totalScore})
}

// HandleGetChallengeStats 获取题目解题统计（解出列表、一血、提交数）
func HandleGetChallengeStats(c *gin.Context, db *sql.DB) {
	eventID := c.Param("id")
	challengeID := c.Param("challengeId")

	type SolverEntry struct {
		Name       string `json:"name"`
		Points     int    `json:"points"`
		SolveOrder int    `json:"solveOrder"`
		SolvedAt   string `json:"solvedAt"`
	}
	rows, err := db.Query(`SELECT COALESCE(t.name, COALESCE(u.display_name, u.username)), s.points, s.solve_order, s.solved_at
		FROM solves s
		LEFT JOIN teams t ON s.team_id = t.id
		LEFT JOIN users u ON s.user_id = u.id
		WHERE s.event_id = $1 AND s.challenge_id = $2
		ORDER BY s.solve_order`, eventID, challengeID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	defer rows.Close()

	var solvers []SolverEntry
	for rows.Next() {
		var s SolverEntry
		var solvedAt sql.NullTime
		if err := rows.Scan(&s.Name, &s.Points, &s.SolveOrder, &solvedAt); err != nil {
			continue
		}
		if solvedAt.Valid {
			s.SolvedAt = solvedAt.Time.Format("2006-01-02 15:04:05")
		}
		solvers = append(solvers, s)
	}
	if solvers == nil {
		solvers = []SolverEntry{}
	}

	var totalSubmits, correctSubmits int
	db.QueryRow(`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_correct) FROM submissions WHERE challenge_id = $1`, challengeID).
		Scan(&totalSubmits, &correctSubmits)

	firstBlood := ""
	if len(solvers) > 0 {
		firstBlood = solvers[0].Name
	}

	c.JSON(http.StatusOK, gin.H{
		"solvers":        solvers,
		"solveCount":     len(solvers),
		"totalSubmits":   totalSubmits,
		"correctSubmits": correctSubmits,
		"firstBlood":     firstBlood,
	})
}
