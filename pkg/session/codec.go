package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

var (
	ErrNoSecrets    = errors.New("session: at least one secret is required")
	ErrBadSignature = errors.New("session: bad signature")
)

// Codec signs cookie values. The first secret signs; any secret verifies,
// which lets a deployment rotate secrets without logging everyone out.
type Codec struct {
	secrets [][]byte
}

func NewCodec(secrets ...string) (*Codec, error) {
	c := &Codec{}
	for _, s := range secrets {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		c.secrets = append(c.secrets, []byte(s))
	}
	if len(c.secrets) == 0 {
		return nil, ErrNoSecrets
	}
	return c, nil
}

func (c *Codec) Sign(value string) string {
	return value + "." + c.mac(c.secrets[0], value)
}

func (c *Codec) Unsign(signed string) (string, error) {
	i := strings.LastIndexByte(signed, '.')
	if i <= 0 || i == len(signed)-1 {
		return "", ErrBadSignature
	}
	value, sig := signed[:i], signed[i+1:]
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", ErrBadSignature
	}
	for _, secret := range c.secrets {
		want, _ := base64.RawURLEncoding.DecodeString(c.mac(secret, value))
		if hmac.Equal(got, want) {
			return value, nil
		}
	}
	return "", ErrBadSignature
}

// Encode marshals v to JSON, base64url encodes it and signs the result.
func (c *Codec) Encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return c.Sign(base64.RawURLEncoding.EncodeToString(b)), nil
}

func (c *Codec) Decode(signed string, dst any) error {
	payload, err := c.Unsign(signed)
	if err != nil {
		return err
	}
	b, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return ErrBadSignature
	}
	return json.Unmarshal(b, dst)
}

func (c *Codec) mac(secret []byte, value string) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
