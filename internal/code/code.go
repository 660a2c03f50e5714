// Package code 解析请求路径中的三位状态码，是缓存与上游共同使用的唯一寻址键。
package code

import (
	"errors"
	"fmt"
)

// Length 是合法状态码的固定长度。
const Length = 3

// ErrInvalid 表示路径片段不是三位十进制数字。
var ErrInvalid = errors.New("invalid status code")

// Code 是通过校验的三位状态码，只能由 Parse 产出。
type Code string

// String 返回原始的三位数字。
func (c Code) String() string {
	return string(c)
}

// InvalidError 携带被拒绝的原始值，便于响应中回显。
type InvalidError struct {
	Value string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("%s: %q (expected %d digits)", ErrInvalid, e.Value, Length)
}

// Unwrap 让 errors.Is(err, ErrInvalid) 成立。
func (e *InvalidError) Unwrap() error {
	return ErrInvalid
}

// Parse 仅接受恰好三个 ASCII 数字，其余情况（空串、长度不符、非数字）均返回 *InvalidError。
func Parse(raw string) (Code, error) {
	if len(raw) != Length {
		return "", &InvalidError{Value: raw}
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return "", &InvalidError{Value: raw}
		}
	}
	return Code(raw), nil
}
