// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package submission

import (
	"log"
	"regexp"
	"strings"
)

// Flag类型常量
const (
	FlagTypeStatic  = "static"
	FlagTypeRegex   = "regex"
	FlagTypeDynamic = "dynamic"
)

// Flag判定逻辑常量（多Flag题目）
const (
	FlagLogicAny = "any" // 匹配任意一个Flag即可
	FlagLogicAll = "all" // 需要累计匹配所有Flag
)

// FlagDef 题目Flag定义
type FlagDef struct {
	ID                int64  `json:"id"`
	ChallengeID       int64  `json:"challengeId"`
	Flag              string `json:"flag"`
	Type              string `json:"type"` // static | regex | dynamic
	IsCaseInsensitive bool   `json:"isCaseInsensitive"`
}

// MatchFlag 按定义顺序逐个匹配，返回第一个命中的Flag定义
// 纯函数，无副作用；"all"逻辑的累计判定由提交流程负责
func MatchFlag(submitted string, flags []FlagDef) (bool, *FlagDef) {
	for i := range flags {
		if matchOne(submitted, &flags[i]) {
			return true, &flags[i]
		}
	}
	return false, nil
}

// matchOne 单个Flag匹配
func matchOne(submitted string, f *FlagDef) bool {
	flagContent := f.Flag
	if f.IsCaseInsensitive {
		submitted = strings.ToLower(submitted)
		flagContent = strings.ToLower(flagContent)
	}

	switch f.Type {
	case FlagTypeStatic:
		return submitted == flagContent
	case FlagTypeRegex:
		// 锚定开头匹配；非法正则视为不匹配，不向上抛错
		re, err := regexp.Compile(flagContent)
		if err != nil {
			log.Printf("[flag] invalid regex flag %d: %v", f.ID, err)
			return false
		}
		loc := re.FindStringIndex(submitted)
		return loc != nil && loc[0] == 0
	case FlagTypeDynamic:
		// 动态Flag生成逻辑未定义，当前一律判为不匹配
		return false
	}

	return false
}

// RemainingFlags 计算"all"逻辑下尚未匹配的Flag数量
// matched 为该队伍/用户历史上已命中的Flag ID集合（含本次）
func RemainingFlags(flags []FlagDef, matched map[int64]bool) int {
	remaining := 0
	for i := range flags {
		if !matched[flags[i].ID] {
			remaining++
		}
	}
	return remaining
}
