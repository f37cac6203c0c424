package risk

import "errors"

var (
	// ErrInvalidAccountState 账户状态非法（权益 <= 0 等）。致命前置条件，
	// 整个评估周期必须中止，不做重试。
	ErrInvalidAccountState = errors.New("invalid account state")

	// ErrNoMarkPrice 缺少可用的标记价格，无法换算下单数量。
	ErrNoMarkPrice = errors.New("mark price unavailable")
)
