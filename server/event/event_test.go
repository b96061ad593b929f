// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package event_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dctf/server/event"
)

func TestCanTransition(t *testing.T) {
	require.True(t, event.CanTransition(event.StatusPlanning, event.StatusRegistration))
	require.True(t, event.CanTransition(event.StatusRegistration, event.StatusRunning))
	require.True(t, event.CanTransition(event.StatusRunning, event.StatusPaused))
	require.True(t, event.CanTransition(event.StatusPaused, event.StatusRunning))
	require.True(t, event.CanTransition(event.StatusRunning, event.StatusFinished))
	require.True(t, event.CanTransition(event.StatusFinished, event.StatusArchived))
}

func TestCanTransitionRejectsInvalid(t *testing.T) {
	// 不允许跳跃和回退到已结束之前的状态
	require.False(t, event.CanTransition(event.StatusPlanning, event.StatusFinished))
	require.False(t, event.CanTransition(event.StatusFinished, event.StatusRunning))
	require.False(t, event.CanTransition(event.StatusArchived, event.StatusRunning))
	require.False(t, event.CanTransition(event.StatusPaused, event.StatusPlanning))
}

func TestCanTransitionUnknownStatus(t *testing.T) {
	require.False(t, event.CanTransition("bogus", event.StatusRunning))
	require.False(t, event.CanTransition(event.StatusRunning, "bogus"))
}
