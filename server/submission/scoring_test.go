// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package submission_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dctf/server/submission"
)

func TestDynamicValueBeforeThreshold(t *testing.T) {
	// 解题数未超过阈值时保持初始分值
	require.Equal(t, 1000, submission.DynamicValue(1000, 100, 0.9, 3, 0))
	require.Equal(t, 1000, submission.DynamicValue(1000, 100, 0.9, 3, 3))
}

func TestDynamicValueDecays(t *testing.T) {
	// 超过阈值后按衰减系数递减
	v1 := submission.DynamicValue(1000, 100, 0.9, 0, 1)
	v2 := submission.DynamicValue(1000, 100, 0.9, 0, 2)
	require.Equal(t, 910, v1) // 100 + 900*0.9
	require.Equal(t, 829, v2) // 100 + 900*0.81
}

func TestDynamicValueMonotonic(t *testing.T) {
	prev := submission.DynamicValue(500, 50, 0.85, 2, 0)
	for n := 1; n <= 100; n++ {
		v := submission.DynamicValue(500, 50, 0.85, 2, n)
		require.LessOrEqual(t, v, prev)
		require.GreaterOrEqual(t, v, 50)
		require.LessOrEqual(t, v, 500)
		prev = v
	}
}

func TestDynamicValueFloorsAtMin(t *testing.T) {
	v := submission.DynamicValue(1000, 100, 0.5, 0, 50)
	require.Equal(t, 100, v)
}

func TestDynamicValueInvalidDecayFallsBack(t *testing.T) {
	// 非法衰减系数退回默认值0.9
	require.Equal(t, submission.DynamicValue(1000, 100, 0.9, 0, 5),
		submission.DynamicValue(1000, 100, 0, 0, 5))
	require.Equal(t, submission.DynamicValue(1000, 100, 0.9, 0, 5),
		submission.DynamicValue(1000, 100, 1.5, 0, 5))
}

func TestCurrentValueStandardIgnoresDecay(t *testing.T) {
	ch := &submission.ChallengeInfo{Type: submission.ChallengeTypeStandard, Value: 200, InitialValue: 1000, MinValue: 100, Decay: 0.9}
	require.Equal(t, 200, submission.CurrentValue(ch, 0))
	require.Equal(t, 200, submission.CurrentValue(ch, 42))
}

func TestCurrentValueDynamic(t *testing.T) {
	ch := &submission.ChallengeInfo{Type: submission.ChallengeTypeDynamic, Value: 1000, InitialValue: 1000, MinValue: 100, Decay: 0.9, DecayThreshold: 0}
	require.Equal(t, 1000, submission.CurrentValue(ch, 0))
	require.Equal(t, 910, submission.CurrentValue(ch, 1))
}
