package exchange

import (
	"errors"
	"fmt"
)

// Bybit v5 retCode 分类表。分类决定执行器的重试策略：
// 参数类错误重试不可能成功，限流/系统繁忙类可以退避后重试，
// "状态未变化" 类直接视为成功。
const (
	CodeOK                 = 0
	CodeInvalidRequest     = 10001 // 请求参数错误
	CodeRequestExpired     = 10002 // 请求时间超出 recvWindow
	CodeRateLimited        = 10006 // 访问过于频繁
	CodeServerError        = 10016 // 服务端通用错误
	CodeSystemBusy         = 148019
	CodeBackendTimeout     = 170007
	CodeCreateTimeout      = 170146
	CodeCancelTimeout      = 170147
	CodeLeverageNotChanged = 110043 // set leverage has not been modified
	CodeNotModified        = 34040
)

var retryableCodes = map[int]bool{
	CodeRateLimited:    true,
	CodeServerError:    true,
	CodeSystemBusy:     true,
	CodeBackendTimeout: true,
	CodeCreateTimeout:  true,
	CodeCancelTimeout:  true,
}

var malformedCodes = map[int]bool{
	CodeInvalidRequest: true,
	CodeRequestExpired: true,
}

var notModifiedCodes = map[int]bool{
	CodeLeverageNotChanged: true,
	CodeNotModified:        true,
}

// 认证/权限类：启动期就该失败，重试无意义。
var authCodes = map[int]bool{
	10003: true, // invalid api key
	10004: true, // error sign
	10005: true, // permission denied
	10007: true, // user authentication failed
	10009: true, // ip banned
	10010: true, // unmatched ip
}

// 保证金/余额不足：业务性拒绝，不能盲目重试。
var insufficientCodes = map[int]bool{
	110012: true,
	110014: true,
	110044: true,
	110045: true,
	110052: true,
}

// APIError 表示交易所返回的非零 retCode。
type APIError struct {
	Code     int
	Msg      string
	Endpoint string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit retCode=%d msg=%q endpoint=%s", e.Code, e.Msg, e.Endpoint)
}

// TransportError 表示 HTTP/网络层失败（超时、连接重置、5xx、429）。
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("bybit transport endpoint=%s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable 判断错误是否值得退避重试：网络层失败或限流/系统繁忙类 retCode。
func IsRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return retryableCodes[ae.Code]
	}
	return false
}

// IsMalformed 判断是否为参数/符号格式类错误。重复同样的请求不可能成功。
func IsMalformed(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && malformedCodes[ae.Code]
}

// IsNotModified 判断是否为 "状态已是目标值" 类错误（110043 等），按成功处理。
func IsNotModified(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && notModifiedCodes[ae.Code]
}

// IsAuth 判断是否为密钥/权限类错误。
func IsAuth(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && authCodes[ae.Code]
}

// IsInsufficient 判断是否为保证金/余额不足。
func IsInsufficient(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && insufficientCodes[ae.Code]
}

// RetCode 提取交易所错误码，非 APIError 返回 -1。
func RetCode(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return -1
}
