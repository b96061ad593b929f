// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package submission_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"dctf/server/submission"
)

func solvedSet(ids ...int64) submission.SolveChecker {
	set := make(map[int64]bool)
	for _, id := range ids {
		set[id] = true
	}
	return func(challengeID int64) (bool, error) {
		return set[challengeID], nil
	}
}

func TestPrerequisitesMetEmpty(t *testing.T) {
	met, err := submission.PrerequisitesMet(nil, solvedSet())
	require.NoError(t, err)
	require.True(t, met)
}

func TestPrerequisitesMetAllSolved(t *testing.T) {
	met, err := submission.PrerequisitesMet([]int64{1, 2}, solvedSet(1, 2, 3))
	require.NoError(t, err)
	require.True(t, met)
}

func TestPrerequisitesMetPartiallySolved(t *testing.T) {
	met, err := submission.PrerequisitesMet([]int64{1, 2}, solvedSet(1))
	require.NoError(t, err)
	require.False(t, met)
}

func TestPrerequisitesMetCheckerError(t *testing.T) {
	boom := errors.New("db down")
	met, err := submission.PrerequisitesMet([]int64{1}, func(int64) (bool, error) {
		return false, boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, met)
}

func TestSolverKey(t *testing.T) {
	teamID := int64(7)
	team := &submission.Solver{UserID: 3, TeamID: &teamID}
	require.Equal(t, "team:7", team.Key())
	require.True(t, team.IsTeam())

	solo := &submission.Solver{UserID: 3}
	require.Equal(t, "user:3", solo.Key())
	require.False(t, solo.IsTeam())
}
