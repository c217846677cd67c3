package polymarket

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// hmacAuth holds a pre-derived CLOB API credential triple. The engine never
// performs the wallet-side key derivation; operators supply credentials that
// were derived out of band.
type hmacAuth struct {
	key        string
	secret     string
	passphrase string
	address    string
}

// l2Headers returns the authentication headers for a CLOB API request. The
// signature is HMAC-SHA256 over timestamp+method+path+body; the secret is
// base64-decoded before use.
func (h *hmacAuth) l2Headers(method, path, body string) map[string]string {
	return h.l2HeadersAt(method, path, body, time.Now().Unix())
}

// l2HeadersAt is l2Headers with a caller-supplied Unix timestamp, for
// deterministic testing.
func (h *hmacAuth) l2HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)

	secretBytes, err := base64.StdEncoding.DecodeString(h.secret)
	if err != nil {
		// If decoding fails, fall back to raw bytes so the caller gets an
		// obviously-wrong signature rather than a panic.
		secretBytes = []byte(h.secret)
	}

	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(ts + method + path + body))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"POLY_ADDRESS":    h.address,
		"POLY_API_KEY":    h.key,
		"POLY_TIMESTAMP":  ts,
		"POLY_PASSPHRASE": h.passphrase,
		"POLY_SIGNATURE":  sig,
	}
}
