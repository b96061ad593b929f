// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package user_test

import (
	"testing"

	"dctf/server/user"

	"github.com/stretchr/testify/require"
)

func TestValidatePasswordStrength(t *testing.T) {
	cases := []struct {
		name     string
		password string
		ok       bool
	}{
		{"合格密码", "Abcdef1!", true},
		{"长度不足", "Ab1!", false},
		{"缺少大写字母", "abcdef1!", false},
		{"缺少小写字母", "ABCDEF1!", false},
		{"缺少数字", "Abcdefg!", false},
		{"缺少特殊符号", "Abcdefg1", false},
		{"复杂密码", "P@ssw0rd-2024", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, msg := user.ValidatePasswordStrength(tc.password)
			require.Equal(t, tc.ok, ok)
			if !tc.ok {
				require.NotEmpty(t, msg)
			}
		})
	}
}
