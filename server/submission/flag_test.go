// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package submission_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dctf/server/submission"
)

func TestMatchFlagStatic(t *testing.T) {
	flags := []submission.FlagDef{
		{ID: 1, Type: submission.FlagTypeStatic, Flag: "flag{hello}"},
	}

	ok, f := submission.MatchFlag("flag{hello}", flags)
	require.True(t, ok)
	require.Equal(t, int64(1), f.ID)

	ok, f = submission.MatchFlag("flag{HELLO}", flags)
	require.False(t, ok)
	require.Nil(t, f)
}

func TestMatchFlagCaseInsensitive(t *testing.T) {
	flags := []submission.FlagDef{
		{ID: 1, Type: submission.FlagTypeStatic, Flag: "Flag{MiXeD}", IsCaseInsensitive: true},
	}

	ok, _ := submission.MatchFlag("fLaG{mIxEd}", flags)
	require.True(t, ok)

	ok, _ = submission.MatchFlag("flag{mixed}", flags)
	require.True(t, ok)

	ok, _ = submission.MatchFlag("flag{other}", flags)
	require.False(t, ok)
}

func TestMatchFlagRegexAnchoredAtStart(t *testing.T) {
	flags := []submission.FlagDef{
		{ID: 1, Type: submission.FlagTypeRegex, Flag: `flag\{[0-9]+\}`},
	}

	// 从字符串开头匹配即可，尾部多余内容不影响
	ok, _ := submission.MatchFlag("flag{123}", flags)
	require.True(t, ok)

	ok, _ = submission.MatchFlag("flag{123}extra", flags)
	require.True(t, ok)

	// 开头不匹配则判错，即使中间出现匹配片段
	ok, _ = submission.MatchFlag("xxflag{123}", flags)
	require.False(t, ok)

	ok, _ = submission.MatchFlag("flag{abc}", flags)
	require.False(t, ok)
}

func TestMatchFlagRegexCaseInsensitive(t *testing.T) {
	flags := []submission.FlagDef{
		{ID: 1, Type: submission.FlagTypeRegex, Flag: `flag\{[a-z]+\}`, IsCaseInsensitive: true},
	}

	ok, _ := submission.MatchFlag("FLAG{ABC}", flags)
	require.True(t, ok)
}

func TestMatchFlagInvalidRegex(t *testing.T) {
	flags := []submission.FlagDef{
		{ID: 1, Type: submission.FlagTypeRegex, Flag: `flag{(unclosed`},
	}

	// 非法正则视为不匹配，不panic
	ok, f := submission.MatchFlag("flag{(unclosed", flags)
	require.False(t, ok)
	require.Nil(t, f)
}

func TestMatchFlagDynamicNeverMatches(t *testing.T) {
	flags := []submission.FlagDef{
		{ID: 1, Type: submission.FlagTypeDynamic, Flag: "flag{generated}"},
	}

	ok, _ := submission.MatchFlag("flag{generated}", flags)
	require.False(t, ok)
}

func TestMatchFlagFirstMatchWins(t *testing.T) {
	flags := []submission.FlagDef{
		{ID: 1, Type: submission.FlagTypeStatic, Flag: "flag{a}"},
		{ID: 2, Type: submission.FlagTypeRegex, Flag: `flag\{.+\}`},
	}

	ok, f := submission.MatchFlag("flag{a}", flags)
	require.True(t, ok)
	require.Equal(t, int64(1), f.ID)

	ok, f = submission.MatchFlag("flag{b}", flags)
	require.True(t, ok)
	require.Equal(t, int64(2), f.ID)
}

func TestMatchFlagEmptyDefs(t *testing.T) {
	ok, f := submission.MatchFlag("flag{a}", nil)
	require.False(t, ok)
	require.Nil(t, f)
}

func TestRemainingFlags(t *testing.T) {
	flags := []submission.FlagDef{
		{ID: 1, Type: submission.FlagTypeStatic, Flag: "flag{a}"},
		{ID: 2, Type: submission.FlagTypeStatic, Flag: "flag{b}"},
		{ID: 3, Type: submission.FlagTypeStatic, Flag: "flag{c}"},
	}

	require.Equal(t, 3, submission.RemainingFlags(flags, map[int64]bool{}))
	require.Equal(t, 2, submission.RemainingFlags(flags, map[int64]bool{1: true}))
	require.Equal(t, 0, submission.RemainingFlags(flags, map[int64]bool{1: true, 2: true, 3: true}))
}
