// AngelaMos | 2026
// codec.go

// Package signedtoken issues stateless, HMAC-authenticated link tokens for
// password-reset and welcome emails.
//
// A token is base64url("subjectID:email:unixSeconds:salt:signature") where
// signature is hex(HMAC-SHA256(secret, "subjectID:email:unixSeconds:salt[:purpose]")).
// The purpose is bound into the signature but not carried in the payload, so a
// token minted for one purpose never validates for another.
package signedtoken

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	PurposeReset   = "reset"
	PurposeWelcome = "welcome"
)

const (
	fieldCount    = 5
	saltBytes     = 16
	maxClockDrift = time.Minute
)

var (
	ErrEmptySecret = errors.New("signed token secret must not be empty")
	// ErrUnencodableEmail means the email contains the field separator and
	// could never validate.
	ErrUnencodableEmail = errors.New("email contains a field separator")
)

var encoding = base64.RawURLEncoding

type Codec struct {
	secret []byte
	now    func() time.Time
}

type Option func(*Codec)

func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

func New(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	c := &Codec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *Codec) Encode(subjectID int64, email, purpose string) (string, error) {
	email = normalizeEmail(email)
	if strings.Contains(email, ":") {
		return "", ErrUnencodableEmail
	}

	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	data := strings.Join([]string{
		strconv.FormatInt(subjectID, 10),
		email,
		strconv.FormatInt(c.now().Unix(), 10),
		hex.EncodeToString(salt),
	}, ":")

	signature := c.sign(data, purpose)

	return encoding.EncodeToString([]byte(data + ":" + signature)), nil
}

// Validate reports whether token was issued by this codec for the given
// subject, email and purpose no longer than maxAge ago. Any malformed input
// yields false.
func (c *Codec) Validate(
	token string,
	expectedSubjectID int64,
	expectedEmail string,
	purpose string,
	maxAge time.Duration,
) bool {
	raw, err := encoding.Strict().DecodeString(token)
	if err != nil {
		return false
	}

	parts := strings.Split(string(raw), ":")
	if len(parts) != fieldCount {
		return false
	}

	subjectID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || subjectID != expectedSubjectID {
		return false
	}

	if !strings.EqualFold(parts[1], strings.TrimSpace(expectedEmail)) {
		return false
	}

	issuedUnix, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return false
	}

	issuedAt := time.Unix(issuedUnix, 0)
	now := c.now()
	if now.After(issuedAt.Add(maxAge)) {
		return false
	}
	if issuedAt.After(now.Add(maxClockDrift)) {
		return false
	}

	data := strings.Join(parts[:4], ":")
	expected := c.sign(data, purpose)

	return hmac.Equal([]byte(parts[4]), []byte(expected))
}

func (c *Codec) sign(data, purpose string) string {
	if purpose != "" {
		data += ":" + purpose
	}

	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
