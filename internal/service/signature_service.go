package service

import (
	"lnurl-atm-gateway/internal/core/domain"
	"lnurl-atm-gateway/pkg/lnurlsig"
)

// LNURLSignatureService implements ports.SignatureService over pkg/lnurlsig.
type LNURLSignatureService struct{}

func NewLNURLSignatureService() *LNURLSignatureService {
	return &LNURLSignatureService{}
}

// Sign returns the hex HMAC-SHA256 of the canonical query.
func (LNURLSignatureService) Sign(query map[string]string, secret string, encoding domain.APIKeyEncoding) (string, error) {
	return lnurlsig.Sign(query, secret, string(encoding))
}

// Verify checks the "signature" entry of query in constant time.
func (LNURLSignatureService) Verify(query map[string]string, secret string, encoding domain.APIKeyEncoding) bool {
	return lnurlsig.Verify(query, secret, string(encoding))
}
