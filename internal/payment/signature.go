package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer checks checkout signatures: hex HMAC-SHA256 of
// "{gatewayOrderID}|{gatewayPaymentID}" keyed with the gateway secret.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

func (s *Signer) Sign(gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares in constant time. Without a secret nothing can be checked
// and Verify returns ErrNotConfigured.
func (s *Signer) Verify(gatewayOrderID, gatewayPaymentID, signature string) (bool, error) {
	if len(s.secret) == 0 {
		return false, ErrNotConfigured
	}
	expected := s.Sign(gatewayOrderID, gatewayPaymentID)
	return hmac.Equal([]byte(expected), []byte(signature)), nil
}
