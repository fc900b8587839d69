package platform

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	domainerrors "github.com/cassiomorais/platformsync/internal/domain/errors"
)

type SignatureEncoding int

const (
	EncodingHex SignatureEncoding = iota
	EncodingBase64
)

// SignHMACSHA256 signs payload with secret.
func SignHMACSHA256(secret string, payload []byte, enc SignatureEncoding) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	sum := mac.Sum(nil)
	if enc == EncodingBase64 {
		return base64.StdEncoding.EncodeToString(sum)
	}
	return hex.EncodeToString(sum)
}

// VerifyHMACSHA256 checks signature against the HMAC of payload. An optional
// "sha256=" prefix on the signature is ignored.
func VerifyHMACSHA256(secret string, payload []byte, signature string, enc SignatureEncoding) error {
	signature = strings.TrimSpace(signature)
	signature = strings.TrimPrefix(signature, "sha256=")
	if signature == "" {
		return domainerrors.ErrInvalidSignature
	}

	var got []byte
	var err error
	if enc == EncodingBase64 {
		got, err = base64.StdEncoding.DecodeString(signature)
	} else {
		got, err = hex.DecodeString(strings.ToLower(signature))
	}
	if err != nil {
		return domainerrors.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return domainerrors.ErrInvalidSignature
	}
	return nil
}
