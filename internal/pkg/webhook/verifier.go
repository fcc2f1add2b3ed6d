package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/CreditFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
)

const (
	HeaderID        = "svix-id"
	HeaderSignature = "svix-signature"
	HeaderTimestamp = "svix-timestamp"

	// Generic names accepted when the svix ones are absent.
	HeaderEventID        = "event-id"
	HeaderEventSignature = "event-signature"
	HeaderEventTimestamp = "event-timestamp"

	DefaultTolerance = 5 * time.Minute

	secretPrefix     = "whsec_"
	signatureVersion = "v1"
)

// Headers carries the three values every delivery must present.
type Headers struct {
	ID        string
	Signature string
	Timestamp string
}

// Missing returns the names of absent headers, in svix naming.
func (h Headers) Missing() []string {
	var missing []string
	if strings.TrimSpace(h.ID) == "" {
		missing = append(missing, HeaderID)
	}
	if strings.TrimSpace(h.Signature) == "" {
		missing = append(missing, HeaderSignature)
	}
	if strings.TrimSpace(h.Timestamp) == "" {
		missing = append(missing, HeaderTimestamp)
	}
	return missing
}

// Verifier checks Svix signed deliveries. It holds no mutable state.
type Verifier struct {
	key       []byte
	tolerance time.Duration
	now       func() time.Time
}

type Option func(*Verifier)

func WithTolerance(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.tolerance = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVerifier decodes a "whsec_<base64>" secret. A secret that is not base64 is
// used as raw key bytes.
func NewVerifier(secret string, opts ...Option) *Verifier {
	v := &Verifier{
		key:       decodeSecret(secret),
		tolerance: DefaultTolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// NewVerifierFromEnv reads CLERK_WEBHOOK_SECRET and WEBHOOK_TOLERANCE.
func NewVerifierFromEnv() *Verifier {
	return NewVerifier(
		env.GetEnv("CLERK_WEBHOOK_SECRET", ""),
		WithTolerance(env.GetEnvDuration("WEBHOOK_TOLERANCE", DefaultTolerance)),
	)
}

func decodeSecret(secret string) []byte {
	s := strings.TrimPrefix(strings.TrimSpace(secret), secretPrefix)
	if key, err := base64.StdEncoding.DecodeString(s); err == nil && len(key) > 0 {
		return key
	}
	return []byte(s)
}

// Configured reports whether a non-empty key was supplied.
func (v *Verifier) Configured() bool {
	return v != nil && len(v.key) > 0
}

// Verify accepts body when the headers carry a fresh, matching v1 signature.
func (v *Verifier) Verify(body []byte, h Headers) error {
	if missing := h.Missing(); len(missing) > 0 {
		return apperr.Newf(apperr.MissingHeader, "missing required headers: %s", strings.Join(missing, ", "))
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(h.Timestamp), 10, 64)
	if err != nil {
		return apperr.New(apperr.VerificationFailed, "invalid timestamp")
	}
	sent := time.Unix(ts, 0)
	now := v.now()
	if now.Sub(sent) > v.tolerance {
		return apperr.New(apperr.VerificationFailed, "message timestamp too old")
	}
	if sent.Sub(now) > v.tolerance {
		return apperr.New(apperr.VerificationFailed, "message timestamp too new")
	}

	expected := v.sign(h.ID, ts, body)
	for _, part := range strings.Fields(h.Signature) {
		version, sig, ok := strings.Cut(part, ",")
		if !ok || version != signatureVersion {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return apperr.New(apperr.VerificationFailed, "no matching signature found")
}

func (v *Verifier) sign(id string, ts int64, body []byte) []byte {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(id))
	mac.Write([]byte{'.'})
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return mac.Sum(nil)
}

// Sign produces headers that Verify accepts for body.
func (v *Verifier) Sign(id string, at time.Time, body []byte) Headers {
	ts := at.Unix()
	return Headers{
		ID:        id,
		Timestamp: strconv.FormatInt(ts, 10),
		Signature: signatureVersion + "," + base64.StdEncoding.EncodeToString(v.sign(id, ts, body)),
	}
}
