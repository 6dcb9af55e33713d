// Package llm 提供与外部补全服务交互的客户端
package llm

import (
	"strings"
)

// ErrorKind 补全服务错误的分类
type ErrorKind int

const (
	// ErrorKindGeneric 一般性错误（网络抖动、服务端 5xx 等）
	ErrorKindGeneric ErrorKind = iota

	// ErrorKindQuota 额度/配额类错误，提示用户升级套餐
	ErrorKindQuota

	// ErrorKindAuth 密钥无效类错误，属于运维问题
	ErrorKindAuth
)

// String 返回分类的字符串表示，用于日志和推送消息
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindQuota:
		return "quota"
	case ErrorKindAuth:
		return "auth"
	default:
		return "generic"
	}
}

// ClassifyError 按错误信息中的关键词对错误分类
// 补全服务没有稳定的错误码约定，只能做子串匹配
// 参数:
//   - err: 补全服务返回的错误
//
// 返回:
//   - ErrorKind: 错误分类
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrorKindGeneric
	}
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "quota") ||
		strings.Contains(msg, "limit") ||
		strings.Contains(msg, "billing"):
		return ErrorKindQuota
	case strings.Contains(msg, "api key") ||
		strings.Contains(msg, "invalid key") ||
		strings.Contains(msg, "incorrect api key") ||
		strings.Contains(msg, "status 401"):
		return ErrorKindAuth
	default:
		return ErrorKindGeneric
	}
}
