// Copyright 2024 Dolthub, Inc.
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

package pgserver

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/sirupsen/logrus"

	"github.com/intersystems-community/iris-pgwire-sub007/pgerr"
)

// AuthMethod selects how the Startup state authenticates an incoming
// client (spec §4.10: "select auth method (Trust, CleartextPassword,
// SCRAM-SHA-256)").
type AuthMethod string

const (
	AuthTrust     AuthMethod = "trust"
	AuthCleartext AuthMethod = "cleartext"
	AuthSCRAM     AuthMethod = "scram"
)

// AuthConfig carries everything the Startup state needs to authenticate
// a client. The gateway has no client-credential store of its own: it
// authenticates incoming clients against the same password used to
// reach the IRIS backend (see scram.go's NewScramServer doc).
type AuthConfig struct {
	Method   AuthMethod
	Password string
	TLSMode  string // config.TLSMode, kept as string to avoid an import cycle with config
}

// ParameterStatuses are sent verbatim after a successful AuthenticationOk
// (spec §4.10). server_version must parse as a PostgreSQL version string
// so client drivers that gate features on it behave sensibly.
var startupParameterStatuses = []pgproto3.ParameterStatus{
	{Name: "server_version", Value: "14.0 (IRIS PGWire)"},
	{Name: "client_encoding", Value: "UTF8"},
	{Name: "DateStyle", Value: "ISO, MDY"},
	{Name: "integer_datetimes", Value: "on"},
	{Name: "TimeZone", Value: "UTC"},
	{Name: "server_encoding", Value: "UTF8"},
}

// handleStartup drives the Accepting -> Startup -> Authenticating ->
// ReadyForQuery(Idle) transitions (spec §4.10). Returns proceed=false
// when the connection should be torn down without entering the main
// message loop (client disconnected during startup, or a CancelRequest
// was handled).
func (h *ConnectionHandler) handleStartup() (proceed bool, err error) {
	startupMessage, err := h.backend.ReceiveStartupMessage()
	if err == io.EOF {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("error receiving startup message: %w", err)
	}

	switch sm := startupMessage.(type) {
	case *pgproto3.StartupMessage:
		if err := h.handleAuthentication(sm); err != nil {
			return false, err
		}
		if err := h.beginConnection(); err != nil {
			return false, err
		}
		if err := h.sendParameterStatuses(); err != nil {
			return false, err
		}
		return true, h.send(&pgproto3.ReadyForQuery{TxStatus: byte(h.currentTxStatus())})

	case *pgproto3.SSLRequest:
		if h.authCfg.TLSMode == "require" {
			logrus.Warn("tls-mode=require configured but this gateway does not terminate TLS itself; replying 'N' to SSLRequest anyway")
		}
		if _, err := h.conn.Write([]byte("N")); err != nil {
			return false, fmt.Errorf("error sending SSLRequest response: %w", err)
		}
		return h.handleStartup()

	case *pgproto3.GSSEncRequest:
		if _, err := h.conn.Write([]byte("N")); err != nil {
			return false, fmt.Errorf("error sending GSSEncRequest response: %w", err)
		}
		return h.handleStartup()

	case *pgproto3.CancelRequest:
		h.server.cancelReg.Cancel(int32(sm.ProcessID), int32(sm.SecretKey))
		if h.server.metricsCollector != nil {
			h.server.metricsCollector.CancelRequest()
		}
		return false, nil

	default:
		return false, fmt.Errorf("unexpected startup message: %#v", startupMessage)
	}
}

// handleAuthentication runs the configured auth method's handshake,
// sending AuthenticationOk on success. A failure is surfaced as
// ErrorResponse(28P01) and the caller tears down the connection (spec
// §7: "Auth failure -> none -> ErrorResponse(28P01) then close").
func (h *ConnectionHandler) handleAuthentication(_ *pgproto3.StartupMessage) error {
	switch h.authCfg.Method {
	case AuthCleartext:
		return h.authCleartext()
	case AuthSCRAM:
		return h.authSCRAM()
	default:
		return h.send(&pgproto3.AuthenticationOk{})
	}
}

func (h *ConnectionHandler) authCleartext() error {
	if err := h.send(&pgproto3.AuthenticationCleartextPassword{}); err != nil {
		return err
	}
	h.backend.SetAuthType(pgproto3.AuthTypeCleartextPassword)
	msg, err := h.backend.Receive()
	if err != nil {
		return fmt.Errorf("error receiving password message: %w", err)
	}
	pw, ok := msg.(*pgproto3.PasswordMessage)
	if !ok {
		return h.authFailed("expected PasswordMessage")
	}
	if pw.Password != h.authCfg.Password {
		return h.authFailed("password authentication failed")
	}
	return h.send(&pgproto3.AuthenticationOk{})
}

func (h *ConnectionHandler) authSCRAM() error {
	if err := h.send(&pgproto3.AuthenticationSASL{AuthMechanisms: []string{"SCRAM-SHA-256"}}); err != nil {
		return err
	}
	h.backend.SetAuthType(pgproto3.AuthTypeSASL)

	msg, err := h.backend.Receive()
	if err != nil {
		return fmt.Errorf("error receiving SASL initial response: %w", err)
	}
	initial, ok := msg.(*pgproto3.SASLInitialResponse)
	if !ok || initial.AuthMechanism != "SCRAM-SHA-256" {
		return h.authFailed("expected SCRAM-SHA-256 SASLInitialResponse")
	}

	scramServer, err := NewScramServer(h.authCfg.Password)
	if err != nil {
		return fmt.Errorf("initializing SCRAM server: %w", err)
	}
	serverFirst, err := scramServer.ServerFirst(string(initial.Data))
	if err != nil {
		return h.authFailed(err.Error())
	}
	if err := h.send(&pgproto3.AuthenticationSASLContinue{Data: []byte(serverFirst)}); err != nil {
		return err
	}

	msg, err = h.backend.Receive()
	if err != nil {
		return fmt.Errorf("error receiving SASL response: %w", err)
	}
	final, ok := msg.(*pgproto3.SASLResponse)
	if !ok {
		return h.authFailed("expected SASLResponse")
	}
	serverFinal, err := scramServer.VerifyFinal(string(final.Data))
	if err != nil {
		return h.authFailed("SCRAM authentication failed")
	}
	if err := h.send(&pgproto3.AuthenticationSASLFinal{Data: []byte(serverFinal)}); err != nil {
		return err
	}
	return h.send(&pgproto3.AuthenticationOk{})
}

// authFailed sends the canonical auth-failure ErrorResponse and returns
// an error so the caller tears the connection down.
func (h *ConnectionHandler) authFailed(detail string) error {
	authErr := pgerr.New(pgerr.InvalidAuthSpec, "password authentication failed").Fatal().WithDetail(detail)
	_ = h.sendPgErr(authErr)
	return authErr
}

// beginConnection acquires this connection's affine backend connection
// and registers it with the cancellation registry (spec §3 Connection,
// §4.8 "affine to one backend connection").
func (h *ConnectionHandler) beginConnection() error {
	beConn, err := h.server.pool.Acquire(h.ctx)
	if err != nil {
		return err
	}
	h.beConn = beConn
	h.backendID = h.server.cancelReg.NextBackendID()
	secret, err := randomSecretKey()
	if err != nil {
		return pgerr.Wrap(pgerr.InternalError, err, "could not generate cancellation secret")
	}
	h.secretKey = secret
	h.server.cancelReg.Register(h.backendID, h.secretKey, h.beConn)
	return nil
}

// randomSecretKey generates a CSPRNG-sourced BackendKeyData.SecretKey
// (spec §3 "cancel-secret (random 32-bit)") so a client can't derive
// another session's cancel secret from the public, sequential backend
// id.
func randomSecretKey() (int32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}

func (h *ConnectionHandler) sendParameterStatuses() error {
	for _, ps := range startupParameterStatuses {
		ps := ps
		if err := h.send(&ps); err != nil {
			return err
		}
	}
	return h.send(&pgproto3.BackendKeyData{ProcessID: uint32(h.backendID), SecretKey: uint32(h.secretKey)})
}
