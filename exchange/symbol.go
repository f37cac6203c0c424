package exchange

import (
	"fmt"
	"strings"
)

// NormalizePair 规范化交易对写法：BTC/USDT -> BTC/USDT:USDT。
// 已带结算币种的写法（BTC/USDT:USDT）原样保留，只做大写与去空格。
// 无法解析的输入直接报错，绝不猜测市场类型。
func NormalizePair(pair string) (string, error) {
	s := strings.ToUpper(strings.ReplaceAll(pair, " ", ""))
	if s == "" {
		return "", fmt.Errorf("empty pair")
	}
	body, settle, hasSettle := strings.Cut(s, ":")
	base, quote, ok := strings.Cut(body, "/")
	if !ok || base == "" || quote == "" {
		return "", fmt.Errorf("malformed pair %q: want BASE/QUOTE[:SETTLE]", pair)
	}
	if strings.Contains(quote, "/") {
		return "", fmt.Errorf("malformed pair %q: multiple separators", pair)
	}
	if !hasSettle {
		settle = quote
	}
	if settle == "" {
		return "", fmt.Errorf("malformed pair %q: empty settle currency", pair)
	}
	return base + "/" + quote + ":" + settle, nil
}

// MarketSymbol 把规范化交易对转换为交易所接口使用的符号：
// BTC/USDT:USDT -> BTCUSDT。
func MarketSymbol(pair string) (string, error) {
	norm, err := NormalizePair(pair)
	if err != nil {
		return "", err
	}
	body, _, _ := strings.Cut(norm, ":")
	return strings.ReplaceAll(body, "/", ""), nil
}

// SettleCurrency 返回交易对的结算币种（BTC/USDT:USDT -> USDT）。
func SettleCurrency(pair string) (string, error) {
	norm, err := NormalizePair(pair)
	if err != nil {
		return "", err
	}
	_, settle, _ := strings.Cut(norm, ":")
	return settle, nil
}

// SplitPairs 解析逗号分隔的交易对列表并逐个规范化。
func SplitPairs(raw string) ([]string, error) {
	var pairs []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		norm, err := NormalizePair(p)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, norm)
	}
	return pairs, nil
}
