// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package submission

import (
	"database/sql"
	"math"
)

// 题目类型常量
const (
	ChallengeTypeStandard = "standard"
	ChallengeTypeDynamic  = "dynamic"
	ChallengeTypeScripted = "scripted"
)

// 默认衰减系数（decay 配置无效时兜底）
const defaultDecay = 0.9

// ChallengeInfo 提交流程需要的题目计分配置
type ChallengeInfo struct {
	ID             int64
	EventID        int64
	Name           string
	Type           string // standard | dynamic | scripted
	State          string // hidden | visible | locked
	FlagLogic      string // any | all
	Value          int
	InitialValue   int
	MinValue       int
	Decay          float64
	DecayThreshold int
	MaxAttempts    int
}

// DynamicValue 计算题目在第 solveCount 个解出者时的分值 - 使用指数衰减
// solveCount <= threshold 时保持初始分值，之后按 decay 的幂次向最低分衰减：
// V(N) = Vmin + (Vmax - Vmin) × d^(N-T)
// 对 solveCount 单调不增，下界为 minValue
func DynamicValue(initialValue, minValue int, decay float64, threshold, solveCount int) int {
	if solveCount <= threshold {
		return initialValue
	}
	if decay <= 0 || decay >= 1 {
		decay = defaultDecay
	}
	factor := math.Pow(decay, float64(solveCount-threshold))
	value := float64(minValue) + float64(initialValue-minValue)*factor
	if value < float64(minValue) {
		return minValue
	}
	if value > float64(initialValue) {
		return initialValue
	}
	return int(math.Round(value))
}

// CurrentValue 题目当前分值（本次为第 solveCount 个解出者）
func CurrentValue(ch *ChallengeInfo, solveCount int) int {
	if ch.Type == ChallengeTypeDynamic {
		return DynamicValue(ch.InitialValue, ch.MinValue, ch.Decay, ch.DecayThreshold, solveCount)
	}
	return ch.Value
}

// applyAward 在事务内为计分主体记分
// 调用方必须已通过 solves 唯一约束确认这是该主体对该题的首次解出；
// 本函数只负责：加分、刷新活跃时间、动态题更新当前分值、追加 score_history
func applyAward(tx *sql.Tx, ch *ChallengeInfo, solver *Solver, points int, solveCount int) error {
	var cumulative int
	if solver.IsTeam() {
		err := tx.QueryRow(`UPDATE teams SET score = score + $1, last_active = NOW(), last_score_update = NOW(), updated_at = NOW()
			WHERE id = $2 RETURNING score`, points, *solver.TeamID).Scan(&cumulative)
		if err != nil {
			return err
		}
	} else {
		err := tx.QueryRow(`UPDATE users SET score = score + $1, last_active = NOW(), last_score_update = NOW(), updated_at = NOW()
			WHERE id = $2 RETURNING score`, points, solver.UserID).Scan(&cumulative)
		if err != nil {
			return err
		}
	}

	// 动态题：解出后重新计算并持久化当前分值
	if ch.Type == ChallengeTypeDynamic {
		newValue := DynamicValue(ch.InitialValue, ch.MinValue, ch.Decay, ch.DecayThreshold, solveCount)
		if _, err := tx.Exec(`UPDATE challenges SET value = $1, updated_at = NOW() WHERE id = $2`, newValue, ch.ID); err != nil {
			return err
		}
	}

	var teamID, userID interface{}
	if solver.IsTeam() {
		teamID = *solver.TeamID
	} else {
		userID = solver.UserID
	}
	_, err := tx.Exec(`INSERT INTO score_history (team_id, user_id, challenge_id, score, cumulative_score, timestamp)
		VALUES ($1, $2, $3, $4, $5, NOW())`, teamID, userID, ch.ID, points, cumulative)
	return err
}
