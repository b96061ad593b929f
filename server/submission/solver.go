// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package submission

import (
	"database/sql"
	"fmt"
)

// Solver 计分主体：有队伍时按队伍计分，否则按个人计分
// 核心逻辑只通过 Key() 区分主体，不关心具体是队伍还是个人
type Solver struct {
	UserID   int64
	TeamID   *int64
	Name     string
	Score    int
	UserName string
}

// Key 计分主体的唯一标识（solves/hint_unlocks 表的去重键）
func (s *Solver) Key() string {
	if s.TeamID != nil {
		return fmt.Sprintf("team:%d", *s.TeamID)
	}
	return fmt.Sprintf("user:%d", s.UserID)
}

// IsTeam 是否为队伍主体
func (s *Solver) IsTeam() bool {
	return s.TeamID != nil
}

// ResolveSolver 根据用户ID解析计分主体
func ResolveSolver(db *sql.DB, userID int64) (*Solver, error) {
	var teamID sql.NullInt64
	var userName string
	var userScore int
	err := db.QueryRow(`SELECT team_id, COALESCE(display_name, username), score FROM users WHERE id = $1`,
		userID).Scan(&teamID, &userName, &userScore)
	if err != nil {
		return nil, err
	}

	s := &Solver{UserID: userID, UserName: userName}
	if teamID.Valid {
		var teamName string
		var teamScore int
		err = db.QueryRow(`SELECT name, score FROM teams WHERE id = $1`, teamID.Int64).Scan(&teamName, &teamScore)
		if err != nil {
			// 队伍记录缺失时退化为个人计分
			s.Name = userName
			s.Score = userScore
			return s, nil
		}
		s.TeamID = &teamID.Int64
		s.Name = teamName
		s.Score = teamScore
		return s, nil
	}

	s.Name = userName
	s.Score = userScore
	return s, nil
}
