// Package builtin ships the two provider bundles fisher registers by
// default: a generic HMAC-SHA256 signature validator compatible with the
// common "X-Hub-Signature"-style contract, and a blake2b-keyed variant for
// operators who want a faster, non-HMAC digest. Both are pure-function
// bundles over the same config shape: {"secret": "...", "header": "..."}.
package builtin

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"fisher/internal/job"
	"fisher/internal/provider"

	"golang.org/x/crypto/blake2b"
)

// Config is the JSON payload a hook's `## Generic:` or `## Blake2:` header
// line carries.
type Config struct {
	Secret string `json:"secret"`
	Header string `json:"header"`
}

func parseConfig(raw string) (Config, error) {
	var cfg Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid provider config: %w", err)
	}
	if cfg.Secret == "" {
		return Config{}, fmt.Errorf("config must set a non-empty secret")
	}
	if cfg.Header == "" {
		cfg.Header = "X-Hub-Signature-256"
	}
	return cfg, nil
}

// Generic returns the HMAC-SHA256 provider bundle.
func Generic() *provider.Provider {
	return &provider.Provider{
		Name:        "Generic",
		CheckConfig: checkConfig,
		Classify:    classify,
		Validate:    validateHMAC,
		Env:         env,
	}
}

// Blake2 returns the blake2b-keyed-digest provider bundle. Faster than HMAC
// for large bodies and avoids HMAC's two-pass construction, at the cost of
// requiring both ends of the webhook integration to support blake2b.
func Blake2() *provider.Provider {
	return &provider.Provider{
		Name:        "Blake2",
		CheckConfig: checkConfig,
		Classify:    classify,
		Validate:    validateBlake2,
		Env:         env,
	}
}

func checkConfig(raw string) error {
	_, err := parseConfig(raw)
	return err
}

func classify(req *job.Request, raw string) provider.RequestType {
	cfg, err := parseConfig(raw)
	if err != nil {
		return provider.Invalid
	}
	if req.Header.Get(cfg.Header) == "" {
		return provider.Invalid
	}
	if req.Header.Get("X-Fisher-Ping") != "" {
		return provider.Ping
	}
	return provider.ExecuteHook
}

func validateHMAC(req *job.Request, raw string) bool {
	cfg, err := parseConfig(raw)
	if err != nil {
		return false
	}
	sig := req.Header.Get(cfg.Header)
	const prefix = "sha256="
	if len(sig) <= len(prefix) {
		return false
	}
	want, err := hex.DecodeString(sig[len(prefix):])
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(cfg.Secret))
	mac.Write(req.Body)
	got := mac.Sum(nil)
	return hmac.Equal(got, want)
}

func validateBlake2(req *job.Request, raw string) bool {
	cfg, err := parseConfig(raw)
	if err != nil {
		return false
	}
	sig := req.Header.Get(cfg.Header)
	const prefix = "blake2="
	if len(sig) <= len(prefix) {
		return false
	}
	want, err := hex.DecodeString(sig[len(prefix):])
	if err != nil {
		return false
	}
	h, err := blake2b.New256([]byte(padKey(cfg.Secret)))
	if err != nil {
		return false
	}
	h.Write(req.Body)
	got := h.Sum(nil)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// padKey truncates a secret longer than blake2b's max key size (64 bytes)
// so operators can reuse the same secret string across both provider
// variants. Shorter secrets are used as they are, without padding.
func padKey(secret string) string {
	const maxKey = 64
	if len(secret) > maxKey {
		return secret[:maxKey]
	}
	return secret
}

func env(req *job.Request, raw string) map[string]string {
	cfg, _ := parseConfig(raw)
	out := map[string]string{
		"FISHER_PROVIDER_HEADER": cfg.Header,
	}
	if id := req.Header.Get("X-Delivery-Id"); id != "" {
		out["FISHER_DELIVERY_ID"] = id
	}
	if ev := req.Header.Get("X-Event-Name"); ev != "" {
		out["FISHER_EVENT_NAME"] = ev
	}
	return out
}
