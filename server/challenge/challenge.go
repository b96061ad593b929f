// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package challenge

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"dctf/server/logs"
	"dctf/server/submission"
)

// 题目可见性状态常量
const (
	StateHidden  = "hidden"
	StateVisible = "visible"
	StateLocked  = "locked"
)

// Challenge 题目结构
type Challenge struct {
	ID             int64   `json:"id"`
	EventID        int64   `json:"eventId"`
	CategoryID     int64   `json:"categoryId"`
	CategoryName   string  `json:"categoryName,omitempty"`
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	Type           string  `json:"type"`
	State          string  `json:"state"`
	FlagLogic      string  `json:"flagLogic"`
	Value          int     `json:"value"`
	InitialValue   int     `json:"initialValue"`
	MinValue       int     `json:"minValue"`
	Decay          float64 `json:"decay"`
	DecayThreshold int     `json:"decayThreshold"`
	MaxAttempts    int     `json:"maxAttempts"`
	Difficulty     int     `json:"difficulty"`
	AttachmentURL  *string `json:"attachmentUrl,omitempty"`
	Prerequisites  []int64 `json:"prerequisites"`
	CreatedAt      string  `json:"createdAt"`
	UpdatedAt      string  `json:"updatedAt"`
}

// CreateChallengeRequest 创建题目请求
type CreateChallengeRequest struct {
	EventID        int64   `json:"eventId" binding:"required"`
	CategoryID     int64   `json:"categoryId" binding:"required"`
	Name           string  `json:"name" binding:"required"`
	Description    string  `json:"description"`
	Type           string  `json:"type"`
	FlagLogic      string  `json:"flagLogic"`
	Value          int     `json:"value"`
	InitialValue   int     `json:"initialValue"`
	MinValue       int     `json:"minValue"`
	Decay          float64 `json:"decay"`
	DecayThreshold int     `json:"decayThreshold"`
	MaxAttempts    int     `json:"maxAttempts"`
	Difficulty     int     `json:"difficulty"`
	AttachmentURL  string  `json:"attachmentUrl"`
	Prerequisites  []int64 `json:"prerequisites"`
}

func nullStringToPtr(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

// NullIfEmpty 空字符串转为 NULL
func NullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

var validTypes = map[string]bool{
	submission.ChallengeTypeStandard: true,
	submission.ChallengeTypeDynamic:  true,
	submission.ChallengeTypeScripted: true,
}

var validStates = map[string]bool{
	StateHidden:  true,
	StateVisible: true,
	StateLocked:  true,
}

// HandleListChallenges 获取题目列表（管理后台API）
func HandleListChallenges(c *gin.Context, db *sql.DB) {
	eventID := c.Query("eventId")
	categoryID := c.Query("categoryId")

	query := `
		SELECT ch.id, ch.event_id, ch.category_id, COALESCE(cat.name, ''), ch.name, COALESCE(ch.description, ''),
			ch.type, ch.state, ch.flag_logic, ch.value, ch.initial_value, ch.min_value,
			ch.decay, ch.decay_threshold, ch.max_attempts, ch.difficulty, ch.attachment_url,
			ch.created_at, ch.updated_at
		FROM challenges ch
		LEFT JOIN categories cat ON ch.category_id = cat.id
		WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if eventID != "" {
		query += " AND ch.event_id = $" + strconv.Itoa(argIdx)
		args = append(args, eventID)
		argIdx++
	}
	if categoryID != "" {
		query += " AND ch.category_id = $" + strconv.Itoa(argIdx)
		args = append(args, categoryID)
		argIdx++
	}
	query += " ORDER BY ch.category_id, ch.id"

	rows, err := db.Query(query, args...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	defer rows.Close()

	var challenges []Challenge
	for rows.Next() {
		ch, err := scanChallenge(rows)
		if err != nil {
			continue
		}
		challenges = append(challenges, *ch)
	}
	if challenges == nil {
		challenges = []Challenge{}
	}

	// 附带前置题目配置
	for i := range challenges {
		ids, err := submission.LoadPrerequisiteIDs(db, challenges[i].ID)
		if err == nil && ids != nil {
			challenges[i].Prerequisites = ids
		} else {
			challenges[i].Prerequisites = []int64{}
		}
	}

	c.JSON(http.StatusOK, challenges)
}

func scanChallenge(rows *sql.Rows) (*Challenge, error) {
	var ch Challenge
	var attachmentURL sql.NullString
	var createdAt, updatedAt time.Time
	err := rows.Scan(&ch.ID, &ch.EventID, &ch.CategoryID, &ch.CategoryName, &ch.Name, &ch.Description,
		&ch.Type, &ch.State, &ch.FlagLogic, &ch.Value, &ch.InitialValue, &ch.MinValue,
		&ch.Decay, &ch.DecayThreshold, &ch.MaxAttempts, &ch.Difficulty, &attachmentURL,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	ch.AttachmentURL = nullStringToPtr(attachmentURL)
	ch.CreatedAt = createdAt.Format("2006-01-02 15:04:05")
	ch.UpdatedAt = updatedAt.Format("2006-01-02 15:04:05")
	return &ch, nil
}

// HandleCreateChallenge 创建题目
func HandleCreateChallenge(c *gin.Context, db *sql.DB) {
	userID := c.GetInt64("userID")

	var req CreateChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	if req.Type == "" {
		req.Type = submission.ChallengeTypeStandard
	}
	if !validTypes[req.Type] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_TYPE"})
		return
	}
	if req.FlagLogic == "" {
		req.FlagLogic = submission.FlagLogicAny
	}
	if req.FlagLogic != submission.FlagLogicAny && req.FlagLogic != submission.FlagLogicAll {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_FLAG_LOGIC"})
		return
	}

	var exists bool
	db.QueryRow(`SELECT EXISTS(SELECT 1 FROM categories WHERE id = $1)`, req.CategoryID).Scan(&exists)
	if !exists {
		c.JSON(http.StatusBadRequest, gin.H{"error": "CATEGORY_NOT_FOUND"})
		return
	}
	db.QueryRow(`SELECT EXISTS(SELECT 1 FROM events WHERE id = $1)`, req.EventID).Scan(&exists)
	if !exists {
		c.JSON(http.StatusBadRequest, gin.H{"error": "EVENT_NOT_FOUND"})
		return
	}

	// 动态题默认从初始分值起步
	if req.InitialValue <= 0 {
		req.InitialValue = req.Value
	}
	if req.Value <= 0 {
		req.Value = req.InitialValue
	}
	if req.Difficulty < 1 {
		req.Difficulty = 1
	} else if req.Difficulty > 10 {
		req.Difficulty = 10
	}

	var id int64
	err := db.QueryRow(`
		INSERT INTO challenges (event_id, category_id, name, description, type, state, flag_logic,
			value, initial_value, min_value, decay, decay_threshold, max_attempts, difficulty, attachment_url)
		VALUES ($1, $2, $3, $4, $5, 'hidden', $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`,
		req.EventID, req.CategoryID, req.Name, NullIfEmpty(req.Description), req.Type, req.FlagLogic,
		req.Value, req.InitialValue, req.MinValue, req.Decay, req.DecayThreshold, req.MaxAttempts,
		req.Difficulty, NullIfEmpty(req.AttachmentURL)).Scan(&id)
	if err != nil {
		log.Printf("insert challenge error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	if err := replacePrerequisites(db, id, req.Prerequisites); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_PREREQUISITES", "message": err.Error()})
		return
	}

	clientIP := c.ClientIP()
	logs.WriteLogSimple(db, logs.TypeAdminOp, logs.LevelInfo, userID, clientIP, "创建题目 ["+req.Name+"]")

	c.JSON(http.StatusCreated, gin.H{"id": id, "message": "CREATED"})
}

// HandleUpdateChallenge 更新题目
func HandleUpdateChallenge(c *gin.Context, db *sql.DB) {
	id := c.Param("challengeId")

	var req struct {
		CategoryID     int64    `json:"categoryId"`
		Name           string   `json:"name"`
		Description    string   `json:"description"`
		Type           string   `json:"type"`
		FlagLogic      string   `json:"flagLogic"`
		Value          *int     `json:"value"`
		InitialValue   *int     `json:"initialValue"`
		MinValue       *int     `json:"minValue"`
		Decay          *float64 `json:"decay"`
		DecayThreshold *int     `json:"decayThreshold"`
		MaxAttempts    *int     `json:"maxAttempts"`
		Difficulty     *int     `json:"difficulty"`
		AttachmentURL  string   `json:"attachmentUrl"`
		Prerequisites  []int64  `json:"prerequisites"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	if req.Type != "" && !validTypes[req.Type] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_TYPE"})
		return
	}
	if req.FlagLogic != "" && req.FlagLogic != submission.FlagLogicAny && req.FlagLogic != submission.FlagLogicAll {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_FLAG_LOGIC"})
		return
	}
	if req.CategoryID > 0 {
		var exists bool
		db.QueryRow(`SELECT EXISTS(SELECT 1 FROM categories WHERE id = $1)`, req.CategoryID).Scan(&exists)
		if !exists {
			c.JSON(http.StatusBadRequest, gin.H{"error": "CATEGORY_NOT_FOUND"})
			return
		}
	}

	result, err := db.Exec(`
		UPDATE challenges SET
			name = COALESCE(NULLIF($1, ''), name),
			description = COALESCE(NULLIF($2, ''), description),
			type = COALESCE(NULLIF($3, ''), type),
			flag_logic = COALESCE(NULLIF($4, ''), flag_logic),
			category_id = CASE WHEN $5 = 0 THEN category_id ELSE $5 END,
			attachment_url = COALESCE(NULLIF($6, ''), attachment_url),
			updated_at = NOW()
		WHERE id = $7`,
		req.Name, req.Description, req.Type, req.FlagLogic, req.CategoryID, req.AttachmentURL, id)
	if err != nil {
		log.Printf("update challenge error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "CHALLENGE_NOT_FOUND", "message": "题目不存在"})
		return
	}

	// 数值字段单独更新，0 是合法取值
	if req.Value != nil {
		db.Exec(`UPDATE challenges SET value = $1, updated_at = NOW() WHERE id = $2`, *req.Value, id)
	}
	if req.InitialValue != nil {
		db.Exec(`UPDATE challenges SET initial_value = $1, updated_at = NOW() WHERE id = $2`, *req.InitialValue, id)
	}
	if req.MinValue != nil {
		db.Exec(`UPDATE challenges SET min_value = $1, updated_at = NOW() WHERE id = $2`, *req.MinValue, id)
	}
	if req.Decay != nil {
		db.Exec(`UPDATE challenges SET decay = $1, updated_at = NOW() WHERE id = $2`, *req.Decay, id)
	}
	if req.DecayThreshold != nil {
		db.Exec(`UPDATE challenges SET decay_threshold = $1, updated_at = NOW() WHERE id = $2`, *req.DecayThreshold, id)
	}
	if req.MaxAttempts != nil {
		db.Exec(`UPDATE challenges SET max_attempts = $1, updated_at = NOW() WHERE id = $2`, *req.MaxAttempts, id)
	}
	if req.Difficulty != nil {
		db.Exec(`UPDATE challenges SET difficulty = $1, updated_at = NOW() WHERE id = $2`, *req.Difficulty, id)
	}

	if req.Prerequisites != nil {
		challengeID, _ := strconv.ParseInt(id, 10, 64)
		if err := replacePrerequisites(db, challengeID, req.Prerequisites); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_PREREQUISITES", "message": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "UPDATED"})
}

// HandleUpdateChallengeState 切换题目可见性
func HandleUpdateChallengeState(c *gin.Context, db *sql.DB) {
	id := c.Param("challengeId")

	var req struct {
		State string `json:"state" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !validStates[req.State] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_STATE"})
		return
	}

	var eventID int64
	var name, oldState string
	err := db.QueryRow(`SELECT event_id, name, state FROM challenges WHERE id = $1`, id).Scan(&eventID, &name, &oldState)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "CHALLENGE_NOT_FOUND", "message": "题目不存在"})
		return
	}

	_, err = db.Exec(`UPDATE challenges SET state = $1, updated_at = NOW() WHERE id = $2`, req.State, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}

	// 题目上架/下架时发布公告
	if oldState != StateVisible && req.State == StateVisible {
		go AnnounceChallengeState(db, eventID, name, "open")
	} else if oldState == StateVisible && req.State != StateVisible {
		go AnnounceChallengeState(db, eventID, name, "close")
	}

	c.JSON(http.StatusOK, gin.H{"message": "UPDATED", "state": req.State})
}

// AnnounceChallengeState 题目状态公告钩子，main 中注入
var AnnounceChallengeState = func(db *sql.DB, eventID int64, challengeName, action string) {}

// HandleDeleteChallenge 删除题目
func HandleDeleteChallenge(c *gin.Context, db *sql.DB) {
	id := c.Param("challengeId")
	userID := c.GetInt64("userID")

	var name string
	err := db.QueryRow(`SELECT name FROM challenges WHERE id = $1`, id).Scan(&name)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "CHALLENGE_NOT_FOUND", "message": "题目不存在"})
		return
	}

	// 有解题记录的题目不允许删除，避免排行榜数据悬空
	var solveCount int
	db.QueryRow(`SELECT COUNT(*) FROM solves WHERE challenge_id = $1`, id).Scan(&solveCount)
	if solveCount > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "CHALLENGE_HAS_SOLVES", "message": "该题目已有解题记录，无法删除"})
		return
	}

	db.Exec(`DELETE FROM challenge_prerequisites WHERE challenge_id = $1 OR prerequisite_id = $1`, id)
	db.Exec(`DELETE FROM flags WHERE challenge_id = $1`, id)
	db.Exec(`DELETE FROM hints WHERE challenge_id = $1`, id)
	_, err = db.Exec(`DELETE FROM challenges WHERE id = $1`, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}

	clientIP := c.ClientIP()
	logs.WriteLogSimple(db, logs.TypeAdminOp, logs.LevelWarning, userID, clientIP, "删除题目 ["+name+"]")

	c.JSON(http.StatusOK, gin.H{"message": "DELETED"})
}

// replacePrerequisites 重建前置题目配置，拒绝自引用
func replacePrerequisites(db *sql.DB, challengeID int64, prereqIDs []int64) error {
	for _, pid := range prereqIDs {
		if pid == challengeID {
			return errNoSelfPrerequisite
		}
	}
	if _, err := db.Exec(`DELETE FROM challenge_prerequisites WHERE challenge_id = $1`, challengeID); err != nil {
		return err
	}
	for _, pid := range prereqIDs {
		if _, err := db.Exec(`INSERT INTO challenge_prerequisites (challenge_id, prerequisite_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, challengeID, pid); err != nil {
			return err
		}
	}
	return nil
}

var errNoSelfPrerequisite = errors.New("题目不能作为自己的前置题目")

// HandleGetEventChallenges 获取赛事题目列表（选手视角）
// 只返回可见题目，并标注当前主体的解出/锁定状态
func HandleGetEventChallenges(c *gin.Context, db *sql.DB) {
	eventID := c.Param("id")
	userID := c.GetInt64("userID")

	solver, err := submission.ResolveSolver(db, userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "USER_NOT_FOUND", "message": "用户不存在"})
		return
	}

	rows, err := db.Query(`
		SELECT ch.id, ch.category_id, COALESCE(cat.name, ''), ch.name, COALESCE(ch.description, ''),
			ch.type, ch.flag_logic, ch.value, ch.max_attempts, ch.difficulty, ch.attachment_url,
			(SELECT COUNT(*) FROM solves s WHERE s.challenge_id = ch.id) as solve_count
		FROM challenges ch
		LEFT JOIN categories cat ON ch.category_id = cat.id
		WHERE ch.event_id = $1 AND ch.state = 'visible'
		ORDER BY ch.category_id, ch.value`, eventID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	defer rows.Close()

	type PlayerChallenge struct {
		ID            int64   `json:"id"`
		CategoryID    int64   `json:"categoryId"`
		CategoryName  string  `json:"categoryName"`
		Name          string  `json:"name"`
		Description   string  `json:"description"`
		Type          string  `json:"type"`
		FlagLogic     string  `json:"flagLogic"`
		Value         int     `json:"value"`
		MaxAttempts   int     `json:"maxAttempts"`
		Difficulty    int     `json:"difficulty"`
		AttachmentURL *string `json:"attachmentUrl,omitempty"`
		SolveCount    int     `json:"solveCount"`
		Solved        bool    `json:"solved"`
		Locked        bool    `json:"locked"`
	}
	var challenges []PlayerChallenge
	for rows.Next() {
		var ch PlayerChallenge
		var attachmentURL sql.NullString
		if err := rows.Scan(&ch.ID, &ch.CategoryID, &ch.CategoryName, &ch.Name, &ch.Description,
			&ch.Type, &ch.FlagLogic, &ch.Value, &ch.MaxAttempts, &ch.Difficulty, &attachmentURL, &ch.SolveCount); err != nil {
			continue
		}
		ch.AttachmentURL = nullStringToPtr(attachmentURL)
		challenges = append(challenges, ch)
	}
	if challenges == nil {
		challenges = []PlayerChallenge{}
	}

	solved := submission.SolvedBySolver(db, solver)
	for i := range challenges {
		ok, err := solved(challenges[i].ID)
		if err == nil {
			challenges[i].Solved = ok
		}
		prereqIDs, err := submission.LoadPrerequisiteIDs(db, challenges[i].ID)
		if err != nil {
			continue
		}
		met, err := submission.PrerequisitesMet(prereqIDs, solved)
		if err == nil && !met {
			challenges[i].Locked = true
			// 锁定题目隐藏正文和附件
			challenges[i].Description = ""
			challenges[i].AttachmentURL = nil
		}
	}

	c.JSON(http.StatusOK, challenges)
}
