package pgserver

// Server-side SCRAM-SHA-256 (RFC 7677, no channel binding) used by the
// Startup state for the SCRAM-SHA-256 auth method (spec §4.10, §6).
// Mirrors JeelKantaria-db-bouncer/internal/pool/scram.go's client-side
// exchange in the opposite direction: that file drives the
// client-first/server-first/client-final/server-final sequence from
// the client seat; this drives the same four messages from the server
// seat, verifying the client's proof instead of computing one, and
// computing the server signature instead of verifying it.

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const scramIterations = 4096

// ScramServer drives one SCRAM-SHA-256 exchange against a known
// password. A fresh ScramServer must be created per authentication
// attempt; it is not reusable.
type ScramServer struct {
	password string
	salt     []byte
	nonce    string

	clientFirstBare string
	serverFirstMsg  string
}

// NewScramServer creates a SCRAM server for the given plaintext
// password. The gateway authenticates against a single configured
// backend credential (spec §6), so there is no verifier store to look
// up — the salt is generated fresh per attempt and the salted password
// derived from the configured password directly.
func NewScramServer(password string) (*ScramServer, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating SCRAM salt: %w", err)
	}
	nonceBytes := make([]byte, 18)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, fmt.Errorf("generating SCRAM server nonce: %w", err)
	}
	return &ScramServer{
		password: password,
		salt:     salt,
		nonce:    base64.StdEncoding.EncodeToString(nonceBytes),
	}, nil
}

// Mechanisms returns the list advertised in AuthenticationSASL.
func (s *ScramServer) Mechanisms() []string { return []string{"SCRAM-SHA-256"} }

// ServerFirst parses the client-first-message and returns the
// server-first-message to send as AuthenticationSASLContinue.
func (s *ScramServer) ServerFirst(clientFirstMsg string) (string, error) {
	// client-first-message = gs2-header + client-first-message-bare
	// gs2-header = "n,,"
	if !strings.HasPrefix(clientFirstMsg, "n,,") {
		return "", fmt.Errorf("unsupported gs2-header in client-first-message")
	}
	bare := strings.TrimPrefix(clientFirstMsg, "n,,")
	s.clientFirstBare = bare

	var clientNonce string
	for _, part := range strings.Split(bare, ",") {
		if strings.HasPrefix(part, "r=") {
			clientNonce = part[2:]
		}
	}
	if clientNonce == "" {
		return "", fmt.Errorf("client-first-message missing nonce")
	}

	combinedNonce := clientNonce + s.nonce
	s.nonce = combinedNonce

	s.serverFirstMsg = fmt.Sprintf("r=%s,s=%s,i=%d", combinedNonce, base64.StdEncoding.EncodeToString(s.salt), scramIterations)
	return s.serverFirstMsg, nil
}

// VerifyFinal checks the client-final-message's proof and returns the
// server-final-message (AuthenticationSASLFinal payload) on success.
func (s *ScramServer) VerifyFinal(clientFinalMsg string) (string, error) {
	var channelBinding, nonce, proofB64 string
	for _, part := range strings.Split(clientFinalMsg, ",") {
		switch {
		case strings.HasPrefix(part, "c="):
			channelBinding = part[2:]
		case strings.HasPrefix(part, "r="):
			nonce = part[2:]
		case strings.HasPrefix(part, "p="):
			proofB64 = part[2:]
		}
	}
	if nonce != s.nonce {
		return "", fmt.Errorf("nonce mismatch in client-final-message")
	}
	if channelBinding == "" || proofB64 == "" {
		return "", fmt.Errorf("incomplete client-final-message")
	}

	proof, err := base64.StdEncoding.DecodeString(proofB64)
	if err != nil {
		return "", fmt.Errorf("decoding client proof: %w", err)
	}

	saltedPassword := pbkdf2.Key([]byte(s.password), s.salt, scramIterations, 32, sha256.New)
	clientKey := hmacSHA256(saltedPassword, []byte("Client Key"))
	storedKey := sha256Sum(clientKey)

	clientFinalWithoutProof := "c=" + channelBinding + ",r=" + nonce
	authMessage := s.clientFirstBare + "," + s.serverFirstMsg + "," + clientFinalWithoutProof

	clientSignature := hmacSHA256(storedKey[:], []byte(authMessage))
	expectedClientKey := xorBytes(proof, clientSignature)
	recomputedStoredKey := sha256Sum(expectedClientKey)
	if !hmac.Equal(recomputedStoredKey[:], storedKey[:]) {
		return "", fmt.Errorf("client proof verification failed")
	}

	serverKey := hmacSHA256(saltedPassword, []byte("Server Key"))
	serverSignature := hmacSHA256(serverKey, []byte(authMessage))
	return "v=" + base64.StdEncoding.EncodeToString(serverSignature), nil
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func sha256Sum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
