package executor

import "fmt"

// State 单次下单尝试的状态。
type State string

const (
	StatePending   State = "PENDING"
	StateSubmitted State = "SUBMITTED"
	StateRetryWait State = "RETRY_WAIT"
	StateFilled    State = "FILLED"
	StateRejected  State = "REJECTED"
	StateFatal     State = "FATAL"
)

type transition struct {
	from State
	to   State
}

// 合法转换表。终态（FILLED/REJECTED/FATAL）没有出边。
var legalTransitions = map[transition]bool{
	{StatePending, StateSubmitted}:  true,
	{StatePending, StateRetryWait}:  true,
	{StatePending, StateFatal}:      true,
	{StateSubmitted, StateFilled}:   true,
	{StateSubmitted, StateRejected}: true,
	{StateRetryWait, StatePending}:  true,
}

// Attempt 跟踪一次订单提交的状态推进，非法转换直接报错，
// 防止重试循环里出现 "从终态继续提交" 之类的编码错误。
type Attempt struct {
	state   State
	history []State
}

func NewAttempt() *Attempt {
	return &Attempt{state: StatePending, history: []State{StatePending}}
}

func (a *Attempt) State() State     { return a.state }
func (a *Attempt) History() []State { return a.history }

// Advance 推进到目标状态。同态推进幂等。
func (a *Attempt) Advance(to State) error {
	if a.state == to {
		return nil
	}
	if !legalTransitions[transition{a.state, to}] {
		return fmt.Errorf("illegal attempt transition: %s -> %s", a.state, to)
	}
	a.state = to
	a.history = append(a.history, to)
	return nil
}

// IsFinal 报告是否已到终态。
func (a *Attempt) IsFinal() bool {
	switch a.state {
	case StateFilled, StateRejected, StateFatal:
		return true
	default:
		return false
	}
}

// Retries 统计经历过的重试等待次数。
func (a *Attempt) Retries() int {
	n := 0
	for _, s := range a.history {
		if s == StateRetryWait {
			n++
		}
	}
	return n
}
