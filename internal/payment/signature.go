package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyHex(secret string, body []byte, provided string) bool {
	provided = strings.TrimSpace(provided)
	if strings.TrimSpace(secret) == "" || provided == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, body)), []byte(provided))
}

// SignTimestamped builds a "t=<unix>,v1=<hex>" header where the MAC covers
// "<unix>.<body>".
func SignTimestamped(secret string, body []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return "t=" + ts + ",v1=" + Sign(secret, append([]byte(ts+"."), body...))
}

func verifyTimestamped(secret string, body []byte, header string, now time.Time, tolerance time.Duration) bool {
	if strings.TrimSpace(secret) == "" {
		return false
	}
	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts = value
		case "v1":
			sig = value
		}
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || sig == "" {
		return false
	}
	if tolerance > 0 {
		skew := now.Sub(time.Unix(unix, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > tolerance {
			return false
		}
	}
	return hmac.Equal([]byte(Sign(secret, append([]byte(ts+"."), body...))), []byte(sig))
}
