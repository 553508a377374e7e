// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package random generates the identifiers and secrets handed out to
// participants and host clients.
package random

import (
	"bytes"
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"fmt"

	"github.com/pborman/uuid"
)

const (
	idLen          = 26
	tokenLen       = 32
	zbase32Charset = "ybndrfg8ejkmcpqxot1uwisza345h769"
)

var idEncoding = base32.NewEncoding(zbase32Charset).WithPadding(base32.NoPadding)

// NewID returns a 26 characters long identifier made of a random (v4) UUID
// encoded with the z-base-32 alphabet.
func NewID() string {
	var b bytes.Buffer
	enc := base32.NewEncoder(idEncoding, &b)
	if _, err := enc.Write(uuid.NewRandom()); err != nil {
		return ""
	}
	enc.Close()
	b.Truncate(idLen)
	return b.String()
}

// NewSecureString returns a URL safe random string of the given length
// carrying (6 * length) bits of entropy.
func NewSecureString(length int) (string, error) {
	if length < 0 {
		return "", fmt.Errorf("invalid length %d", length)
	}
	data := make([]byte, 1+(length*4)/3)
	if n, err := rand.Read(data); err != nil {
		return "", fmt.Errorf("failed to read random data: %w", err)
	} else if n != len(data) {
		return "", fmt.Errorf("failed to read enough data")
	}
	return base64.RawURLEncoding.EncodeToString(data)[:length], nil
}

// NewToken returns a secret suitable to be used as a reconnect token.
func NewToken() (string, error) {
	return NewSecureString(tokenLen)
}
