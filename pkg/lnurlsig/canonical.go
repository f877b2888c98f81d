// Package lnurlsig implements the signed-query scheme shared by ATM firmware
// and the withdraw endpoint: short-key expansion, canonical serialization,
// HMAC-SHA256 signing and session secret derivation.
package lnurlsig

import (
	"sort"
	"strings"
)

// SignatureKey is the query parameter carrying the hex HMAC digest.
const SignatureKey = "signature"

const upperhex = "0123456789ABCDEF"

// Canonicalize serializes query into the byte string that gets signed.
// The signature key is skipped, keys are ordered by their lowercase form and
// both keys and values are percent-encoded with the encodeURIComponent set.
func Canonicalize(query map[string]string) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		if k == SignatureKey {
			continue
		}
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		li, lj := strings.ToLower(keys[i]), strings.ToLower(keys[j])
		if li != lj {
			return li < lj
		}
		return keys[i] < keys[j]
	})

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(Escape(k))
		b.WriteByte('=')
		b.WriteString(Escape(query[k]))
	}
	return b.String()
}

// Escape percent-encodes every byte of s outside A-Z a-z 0-9 - _ . ! ~ * ' ( ).
func Escape(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !unreserved(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}

	buf := make([]byte, 0, len(s)+2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			buf = append(buf, c)
			continue
		}
		buf = append(buf, '%', upperhex[c>>4], upperhex[c&15])
	}
	return string(buf)
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
