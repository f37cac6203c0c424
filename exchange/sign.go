package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"time"
)

// signPayload 计算 v5 签名：HMAC-SHA256(timestamp + apiKey + recvWindow + payload)。
// GET 请求 payload 为排序后的 query string，POST 请求为原始 JSON body。
func signPayload(secret, apiKey string, timestamp int64, recvWindowMs int, payload string) string {
	raw := strconv.FormatInt(timestamp, 10) + apiKey + strconv.Itoa(recvWindowMs) + payload
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// encodeQuery 按 key 排序编码参数，保证签名串与请求串一致。
func encodeQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	v := url.Values{}
	for _, k := range keys {
		v.Set(k, params[k])
	}
	return v.Encode()
}

func nowMillis() int64 { return time.Now().UnixMilli() }
