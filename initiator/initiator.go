// Package initiator provides the client role of the Negotiate handshake:
// security context initiators for Kerberos, NTLM and Windows SSPI, and an
// http.RoundTripper that drives them against a Negotiate-protected server.
package initiator

import (
	"context"
	"errors"
)

// ErrSSPIUnavailable is returned by the SSPI initiator on platforms without SSPI.
var ErrSSPIUnavailable = errors.New("initiator: SSPI is only available on Windows")

// Initiator produces client tokens for a security context handshake.
//
// # Thread Safety
//
// Initiator implementations are NOT safe for concurrent use. Each handshake
// uses its own instance.
//
// # Flow
//
//  1. Step(nil) returns the initial token
//  2. the token is sent; the server answers with a challenge
//  3. Step(challenge) returns the response token
//  4. repeat until continueNeeded is false
type Initiator interface {
	// Step processes the server's token and returns the token to send.
	// On the first call, input is nil.
	Step(ctx context.Context, input []byte) (output []byte, continueNeeded bool, err error)

	// Complete reports whether the context has been established.
	Complete() bool

	// Close releases the handles held by the initiator.
	Close() error
}

// Credentials holds explicit client credentials.
type Credentials struct {
	// Username is the account name, optionally DOMAIN\user or user@REALM.
	Username string

	// Password is the account password.
	Password string

	// Domain is the optional NTLM domain.
	Domain string
}

// Validate checks that required credential fields are populated.
func (c *Credentials) Validate() error {
	if c.Username == "" {
		return errors.New("username is required")
	}
	if c.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

// ValidateForKerberos checks credentials for Kerberos where a keytab or
// credential cache may stand in for the password.
func (c *Credentials) ValidateForKerberos() error {
	if c.Username == "" {
		return errors.New("username is required")
	}
	return nil
}
