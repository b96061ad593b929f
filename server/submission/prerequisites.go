// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package submission

import (
	"database/sql"
)

// SolveChecker 查询计分主体是否解出某道题
type SolveChecker func(challengeID int64) (bool, error)

// PrerequisitesMet 前置题目检查
// 只做一层成员判定，不做传递闭包，因此题目间即使配置成环也能终止
func PrerequisitesMet(prereqIDs []int64, solved SolveChecker) (bool, error) {
	if len(prereqIDs) == 0 {
		return true, nil
	}
	for _, id := range prereqIDs {
		ok, err := solved(id)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// LoadPrerequisiteIDs 读取题目的前置题目ID列表
func LoadPrerequisiteIDs(db *sql.DB, challengeID int64) ([]int64, error) {
	rows, err := db.Query(`SELECT prerequisite_id FROM challenge_prerequisites WHERE challenge_id = $1`, challengeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SolvedBySolver 返回基于 submissions 表的解题查询闭包
// 有队伍时按队伍查询，否则按个人查询
func SolvedBySolver(db *sql.DB, solver *Solver) SolveChecker {
	return func(challengeID int64) (bool, error) {
		var exists bool
		var err error
		if solver.IsTeam() {
			err = db.QueryRow(`SELECT EXISTS(SELECT 1 FROM submissions WHERE team_id = $1 AND challenge_id = $2 AND is_correct = true)`,
				*solver.TeamID, challengeID).Scan(&exists)
		} else {
			err = db.QueryRow(`SELECT EXISTS(SELECT 1 FROM submissions WHERE user_id = $1 AND team_id IS NULL AND challenge_id = $2 AND is_correct = true)`,
				solver.UserID, challengeID).Scan(&exists)
		}
		return exists, err
	}
}
