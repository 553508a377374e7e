// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package credential

import (
	"errors"
	"fmt"
)

type Reason string

const (
	ReasonMalformed         Reason = "malformed"
	ReasonExpired           Reason = "expired"
	ReasonSignatureMismatch Reason = "signature-mismatch"
)

// ErrInvalidCredential matches any *InvalidCredentialError through errors.Is.
var ErrInvalidCredential = errors.New("invalid credential")

type InvalidCredentialError struct {
	Reason Reason
	Err    error
}

func newInvalidCredentialError(reason Reason, err error) *InvalidCredentialError {
	return &InvalidCredentialError{
		Reason: reason,
		Err:    err,
	}
}

func (e *InvalidCredentialError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid credential (%s)", e.Reason)
	}
	return fmt.Sprintf("invalid credential (%s): %s", e.Reason, e.Err.Error())
}

func (e *InvalidCredentialError) Unwrap() error {
	return e.Err
}

func (e *InvalidCredentialError) Is(target error) bool {
	return target == ErrInvalidCredential
}

// ReasonOf returns the reason carried by err if it is (or wraps) an
// *InvalidCredentialError.
func ReasonOf(err error) (Reason, bool) {
	var credErr *InvalidCredentialError
	if errors.As(err, &credErr) {
		return credErr.Reason, true
	}
	return "", false
}
