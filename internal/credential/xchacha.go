// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package credential

import (
	"crypto/rand"
	"encoding/base64"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/chacha20poly1305"
)

// XChaCha is a reversible provider using XChaCha20-Poly1305. Stored values
// look like "<keyID>.<base64url(nonce|ciphertext)>" so keys can be rotated:
// values sealed under any key in Keys decrypt, and values not sealed under
// Current report NeedsUpgrade.
type XChaCha struct {
	Keys    map[string][]byte
	Current string
}

// NewXChaCha builds a provider with a single key.
func NewXChaCha(keyID string, key []byte) (*XChaCha, error) {
	p := &XChaCha{Keys: map[string][]byte{keyID: key}, Current: keyID}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks key sizes and that Current is present.
func (p *XChaCha) Validate() error {
	if p.Current == "" || strings.Contains(p.Current, ".") {
		return oops.Code("CREDENTIAL_INVALID_KEY").
			With("key_id", p.Current).
			Errorf("current key ID must be non-empty and must not contain '.'")
	}
	if _, ok := p.Keys[p.Current]; !ok {
		return oops.Code("CREDENTIAL_INVALID_KEY").
			With("key_id", p.Current).
			Errorf("current key not found")
	}
	for id, key := range p.Keys {
		if len(key) != chacha20poly1305.KeySize {
			return oops.Code("CREDENTIAL_INVALID_KEY").
				With("key_id", id).
				With("length", len(key)).
				Errorf("key must be %d bytes", chacha20poly1305.KeySize)
		}
	}
	return nil
}

// Encrypt implements Provider.
func (p *XChaCha) Encrypt(input string) (string, error) {
	aead, err := chacha20poly1305.NewX(p.Keys[p.Current])
	if err != nil {
		return "", oops.Code("CREDENTIAL_INVALID_KEY").With("key_id", p.Current).Wrap(err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(input)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", oops.Code("CREDENTIAL_NONCE_FAILED").Wrap(err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(input), []byte(p.Current))
	return p.Current + "." + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt implements Decrypter.
func (p *XChaCha) Decrypt(stored string) (string, error) {
	keyID, payload, ok := strings.Cut(stored, ".")
	if !ok {
		return "", oops.Code("CREDENTIAL_INVALID_CIPHERTEXT").Errorf("missing key ID")
	}
	key, ok := p.Keys[keyID]
	if !ok {
		return "", oops.Code("CREDENTIAL_UNKNOWN_KEY").With("key_id", keyID).Errorf("unknown key")
	}

	sealed, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", oops.Code("CREDENTIAL_INVALID_CIPHERTEXT").Wrap(err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", oops.Code("CREDENTIAL_INVALID_KEY").With("key_id", keyID).Wrap(err)
	}
	if len(sealed) < aead.NonceSize() {
		return "", oops.Code("CREDENTIAL_INVALID_CIPHERTEXT").Errorf("ciphertext too short")
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(keyID))
	if err != nil {
		return "", oops.Code("CREDENTIAL_INVALID_CIPHERTEXT").With("key_id", keyID).Wrap(err)
	}
	return string(plain), nil
}

// NeedsUpgrade implements Upgrader.
func (p *XChaCha) NeedsUpgrade(stored string) bool {
	keyID, _, ok := strings.Cut(stored, ".")
	return !ok || keyID != p.Current
}

var (
	_ Provider  = (*XChaCha)(nil)
	_ Decrypter = (*XChaCha)(nil)
	_ Upgrader  = (*XChaCha)(nil)
)
