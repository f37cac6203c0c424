package risk

import "sync"

// EquityReserve 同一周期内共享的名义额度账本。多交易对并发定size时，
// 通过 compare-and-reserve 保证已预留名义之和不超过账户权益，
// 避免共享结算币种的交易对重复计算风险额度。
type EquityReserve struct {
	mu       sync.Mutex
	equity   float64
	reserved float64
}

func NewEquityReserve(equity float64) *EquityReserve {
	return &EquityReserve{equity: equity}
}

// Reserve 申请 want 的名义额度，返回实际授予值（不足时按剩余封顶）。
// 剩余为 0 时返回 0。
func (r *EquityReserve) Reserve(want float64) float64 {
	if want <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	remaining := r.equity - r.reserved
	if remaining <= 0 {
		return 0
	}
	granted := want
	if granted > remaining {
		granted = remaining
	}
	r.reserved += granted
	return granted
}

// Release 归还未使用的额度（下取整、跳过后多余的部分）。
func (r *EquityReserve) Release(amount float64) {
	if amount <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reserved -= amount
	if r.reserved < 0 {
		r.reserved = 0
	}
}

// Reserved 返回当前已预留名义。
func (r *EquityReserve) Reserved() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reserved
}

// Equity 返回本周期的账户权益。
func (r *EquityReserve) Equity() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.equity
}
