// Package signer computes the X-Signature digest attached to reports
// when a shared secret is configured.
package signer

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"hash"
	"sync"

	"github.com/sureshkrishnan-v/botreport/internal/constants"
)

// ErrEmptySecret is returned when a Signer is requested without key material.
var ErrEmptySecret = errors.New("signer: empty secret")

// Signer computes "sha1=<hex>" HMAC-SHA1 digests keyed by one secret.
//
// Keyed HMAC states are pooled so the inner/outer key pads are derived once
// per state rather than once per call. Safe for concurrent use.
type Signer struct {
	pool sync.Pool
}

// New installs secret as the HMAC key.
func New(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	key := []byte(secret)
	s := &Signer{}
	s.pool.New = func() any {
		return hmac.New(sha1.New, key)
	}
	return s, nil
}

// Sign returns the tagged digest of body.
func (s *Signer) Sign(body []byte) string {
	h := s.pool.Get().(hash.Hash)
	h.Reset()
	h.Write(body)
	sum := h.Sum(nil)
	s.pool.Put(h)
	return constants.SignaturePrefix + hex.EncodeToString(sum)
}

// Sign is a one-shot helper for callers that sign a single payload.
func Sign(secret string, body []byte) (string, error) {
	s, err := New(secret)
	if err != nil {
		return "", err
	}
	return s.Sign(body), nil
}
