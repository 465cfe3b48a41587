package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingSignature = errors.New("missing webhook signature header")
	ErrMissingSecret    = errors.New("webhook secret is not configured")
	ErrBadSignature     = errors.New("webhook signature mismatch")
)

// WebhookDigest computes the base64 HMAC-SHA256 of the exact raw body bytes.
// Callers must pass the body as received on the wire; re-serializing a parsed
// body changes the bytes and breaks verification.
func WebhookDigest(secret string, rawBody []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks an inbound webhook body against the signature
// claimed in the x-shopify-hmac-sha256 header. It fails closed: a missing
// secret or header rejects the request before the body is interpreted.
// Comparison is constant-time; unequal lengths are a mismatch, not a panic.
func VerifyWebhookSignature(secret string, rawBody []byte, claimedB64 string) error {
	if strings.TrimSpace(secret) == "" {
		return ErrMissingSecret
	}
	if strings.TrimSpace(claimedB64) == "" {
		return ErrMissingSignature
	}
	expected := WebhookDigest(secret, rawBody)
	if !hmac.Equal([]byte(expected), []byte(claimedB64)) {
		return ErrBadSignature
	}
	return nil
}

func oauthParamsDigest(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "hmac" || k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, params[k]))
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strings.Join(parts, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyOAuthParams validates the hex HMAC Shopify appends to OAuth redirect
// query strings: all parameters except hmac/signature, sorted, joined as
// k=v pairs with '&'.
func VerifyOAuthParams(params map[string]string, secret, providedHex string) bool {
	if secret == "" || providedHex == "" {
		return false
	}
	expected := oauthParamsDigest(params, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(providedHex)))
}

// Billing correlation tokens bind the subscription confirm callback to the
// initiating request. The callback URL's shop/plan parameters alone can be
// replayed or forged; the token makes them tamper-evident and expiring.

var (
	ErrTokenExpired = errors.New("billing token expired")
	ErrTokenInvalid = errors.New("billing token invalid")
)

func billingTokenMAC(secret, shop, plan, interval string, exp int64) string {
	msg := strings.Join([]string{shop, plan, interval, strconv.FormatInt(exp, 10)}, "|")
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(msg))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// SignBillingToken returns "<expiryUnix>.<mac>" over (shop, plan, interval).
func SignBillingToken(secret, shop, plan, interval string, expires time.Time) string {
	exp := expires.Unix()
	return strconv.FormatInt(exp, 10) + "." + billingTokenMAC(secret, shop, plan, interval, exp)
}

// VerifyBillingToken checks the token was signed over exactly the supplied
// shop/plan/interval and has not expired.
func VerifyBillingToken(secret, shop, plan, interval, token string, now time.Time) error {
	dot := strings.IndexByte(token, '.')
	if dot <= 0 || dot == len(token)-1 {
		return ErrTokenInvalid
	}
	exp, err := strconv.ParseInt(token[:dot], 10, 64)
	if err != nil {
		return ErrTokenInvalid
	}
	expected := billingTokenMAC(secret, shop, plan, interval, exp)
	if !hmac.Equal([]byte(expected), []byte(token[dot+1:])) {
		return ErrTokenInvalid
	}
	if now.Unix() > exp {
		return ErrTokenExpired
	}
	return nil
}
