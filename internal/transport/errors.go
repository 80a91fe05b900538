// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import "fmt"

// Kind classifies a failed call the way the retry loop needs to treat it,
// replacing the source's practice of sniffing a dynamic tuple shape with a
// small typed result variant per endpoint (see APIError and Do).
type Kind int

const (
	// KindTransport is a connect/read/timeout failure below the application
	// envelope.
	KindTransport Kind = iota
	// KindCredential is an application-level failure whose upstream code is
	// one of the credential-related codes (-101, -352, -412).
	KindCredential
	// KindApplication is any other non-zero application code.
	KindApplication
	// KindPermanentData marks a response that parsed successfully but is
	// missing a required field (bvid/rpid/mid); the record is dropped, not
	// retried.
	KindPermanentData
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindCredential:
		return "credential"
	case KindApplication:
		return "application"
	case KindPermanentData:
		return "permanent_data"
	default:
		return "unknown"
	}
}

// APIError is the error type every typed endpoint call returns on failure.
// Code is the upstream response's "code" field when Kind is Credential or
// Application; it is zero for Transport and PermanentData errors.
type APIError struct {
	Kind    Kind
	Code    int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// CredentialRelatedCode reports whether an upstream response code indicates
// a credential-related failure: -101 (not logged in), -352 (risk-control
// failure), -412 (request intercepted).
func CredentialRelatedCode(code int) bool {
	switch code {
	case -101, -352, -412:
		return true
	default:
		return false
	}
}

// NewTransportError wraps a network/timeout error.
func NewTransportError(err error) *APIError {
	return &APIError{Kind: KindTransport, Message: "request failed", Err: err}
}

// NewAPIError classifies an upstream {code, message} pair into a Credential
// or Application error.
func NewAPIError(code int, message string) *APIError {
	kind := KindApplication
	if CredentialRelatedCode(code) {
		kind = KindCredential
	}
	return &APIError{Kind: kind, Code: code, Message: message}
}

// NewPermanentDataError marks a response missing a required field.
func NewPermanentDataError(field string) *APIError {
	return &APIError{Kind: KindPermanentData, Message: fmt.Sprintf("missing required field %q", field)}
}
