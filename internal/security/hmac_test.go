package security

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "shhh"
	body := []byte(`{"id":123,"domain":"foo.myshopify.com"}`)

	sig := WebhookDigest(secret, body)
	assert.NoError(t, VerifyWebhookSignature(secret, body, sig))
}

func TestVerifyWebhookSignatureRejectsMutations(t *testing.T) {
	secret := "shhh"
	body := []byte(`{"id":123}`)
	sig := WebhookDigest(secret, body)

	// Any single-byte change to the body fails verification.
	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		assert.ErrorIs(t, VerifyWebhookSignature(secret, mutated, sig), ErrBadSignature, "byte %d", i)
	}

	// A mutated signature fails, including one of different length.
	assert.ErrorIs(t, VerifyWebhookSignature(secret, body, sig+"A"), ErrBadSignature)
	assert.ErrorIs(t, VerifyWebhookSignature(secret, body, sig[:len(sig)-2]), ErrBadSignature)
}

func TestVerifyWebhookSignatureFailsClosed(t *testing.T) {
	body := []byte("{}")
	assert.ErrorIs(t, VerifyWebhookSignature("", body, WebhookDigest("x", body)), ErrMissingSecret)
	assert.ErrorIs(t, VerifyWebhookSignature("x", body, ""), ErrMissingSignature)
}

func TestVerifyWebhookSignatureUsesRawBytes(t *testing.T) {
	secret := "shhh"
	raw := []byte("{\"a\": 1,\n\"b\": 2}")
	reserialized := []byte(`{"a":1,"b":2}`)

	sig := WebhookDigest(secret, raw)
	assert.NoError(t, VerifyWebhookSignature(secret, raw, sig))
	assert.Error(t, VerifyWebhookSignature(secret, reserialized, sig))
}

func TestVerifyOAuthParams(t *testing.T) {
	secret := "appsecret"
	params := map[string]string{
		"shop":      "foo.myshopify.com",
		"code":      "abc",
		"timestamp": "1700000000",
	}

	withHMAC := map[string]string{}
	for k, v := range params {
		withHMAC[k] = v
	}
	mac := oauthParamsDigest(params, secret)
	withHMAC["hmac"] = mac

	assert.True(t, VerifyOAuthParams(withHMAC, secret, mac))
	assert.False(t, VerifyOAuthParams(withHMAC, secret, "deadbeef"))
	assert.False(t, VerifyOAuthParams(withHMAC, "wrong", mac))
	assert.False(t, VerifyOAuthParams(withHMAC, secret, ""))
}

func TestBillingTokenRoundTrip(t *testing.T) {
	secret := "appsecret"
	now := time.Now()
	tok := SignBillingToken(secret, "foo.myshopify.com", "growth", "EVERY_30_DAYS", now.Add(time.Hour))

	require.NoError(t, VerifyBillingToken(secret, "foo.myshopify.com", "growth", "EVERY_30_DAYS", tok, now))

	// Any field substitution breaks the MAC.
	assert.ErrorIs(t, VerifyBillingToken(secret, "bar.myshopify.com", "growth", "EVERY_30_DAYS", tok, now), ErrTokenInvalid)
	assert.ErrorIs(t, VerifyBillingToken(secret, "foo.myshopify.com", "pro", "EVERY_30_DAYS", tok, now), ErrTokenInvalid)
	assert.ErrorIs(t, VerifyBillingToken(secret, "foo.myshopify.com", "growth", "ANNUAL", tok, now), ErrTokenInvalid)

	// Expiry is enforced after the MAC check.
	assert.ErrorIs(t, VerifyBillingToken(secret, "foo.myshopify.com", "growth", "EVERY_30_DAYS", tok, now.Add(2*time.Hour)), ErrTokenExpired)

	// Tampering with the embedded expiry invalidates the MAC.
	assert.Error(t, VerifyBillingToken(secret, "foo.myshopify.com", "growth", "EVERY_30_DAYS", "9999999999."+tok, now))
	assert.ErrorIs(t, VerifyBillingToken(secret, "foo.myshopify.com", "growth", "EVERY_30_DAYS", "garbage", now), ErrTokenInvalid)
}

func TestTokenCipherRoundTrip(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	cipher, err := NewTokenCipher(key)
	require.NoError(t, err)

	enc, err := cipher.Encrypt("shpat_secret_token")
	require.NoError(t, err)
	assert.NotContains(t, enc, "shpat")

	dec, err := cipher.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "shpat_secret_token", dec)

	_, err = cipher.Decrypt("not-valid")
	assert.Error(t, err)
}

func TestNewTokenCipherRejectsBadKeys(t *testing.T) {
	_, err := NewTokenCipher("short")
	assert.Error(t, err)
	_, err = NewTokenCipher("AAAA")
	assert.Error(t, err)
}
