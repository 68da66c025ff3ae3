package postgres

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgproto3"
	"golang.org/x/crypto/pbkdf2"
)

// startup runs the Postgres startup/auth handshake over fe, passing
// through as whichever identity the caller resolved from the session's
// auth.Context (invariant 5). The message shapes are pgproto3's; the
// cryptography (MD5 double-hash, SCRAM-SHA-256 exchange) is adapted
// unchanged from the teacher's internal/pool/scram.go, which did the
// same handshake over a hand-framed net.Conn.
func startup(fe *pgproto3.Frontend, username, password, database string) error {
	params := map[string]string{"user": username}
	if database != "" {
		params["database"] = database
	}
	fe.Send(&pgproto3.StartupMessage{ProtocolVersion: pgproto3.ProtocolVersionNumber, Parameters: params})
	if err := fe.Flush(); err != nil {
		return fmt.Errorf("postgres: sending startup message: %w", err)
	}

	for {
		msg, err := fe.Receive()
		if err != nil {
			return fmt.Errorf("postgres: receiving startup response: %w", err)
		}
		switch m := msg.(type) {
		case *pgproto3.AuthenticationOk:
			// fall through to ParameterStatus/BackendKeyData/ReadyForQuery
		case *pgproto3.AuthenticationCleartextPassword:
			fe.Send(&pgproto3.PasswordMessage{Password: password})
			if err := fe.Flush(); err != nil {
				return err
			}
		case *pgproto3.AuthenticationMD5Password:
			fe.Send(&pgproto3.PasswordMessage{Password: md5PasswordHash(username, password, m.Salt)})
			if err := fe.Flush(); err != nil {
				return err
			}
		case *pgproto3.AuthenticationSASL:
			if err := scramSHA256Auth(fe, username, password, m.AuthMechanisms); err != nil {
				return err
			}
		case *pgproto3.ParameterStatus, *pgproto3.BackendKeyData:
			// session metadata, nothing to act on during startup
		case *pgproto3.ReadyForQuery:
			return nil
		case *pgproto3.ErrorResponse:
			return fmt.Errorf("postgres: backend rejected startup: %s", m.Message)
		default:
			// ignore anything else that might show up pre-ReadyForQuery
		}
	}
}

func md5PasswordHash(username, password string, salt [4]byte) string {
	inner := md5.Sum([]byte(password + username))
	innerHex := hex.EncodeToString(inner[:])
	outer := md5.Sum(append([]byte(innerHex), salt[:]...))
	return "md5" + hex.EncodeToString(outer[:])
}

// scramSHA256Auth runs the SASL SCRAM-SHA-256 exchange: client-first,
// server-first (nonce/salt/iterations), client-final (proof), and
// verifies the server's own signature on server-final.
func scramSHA256Auth(fe *pgproto3.Frontend, username, password string, mechanismsRaw []string) error {
	if !containsMechanism(mechanismsRaw, "SCRAM-SHA-256") {
		return fmt.Errorf("postgres: server does not offer SCRAM-SHA-256, offered %v", mechanismsRaw)
	}

	nonceBytes := make([]byte, 18)
	if _, err := rand.Read(nonceBytes); err != nil {
		return fmt.Errorf("postgres: generating client nonce: %w", err)
	}
	clientNonce := base64.StdEncoding.EncodeToString(nonceBytes)

	const gs2Header = "n,,"
	clientFirstBare := fmt.Sprintf("n=%s,r=%s", saslEscapeUsername(username), clientNonce)
	clientFirstMsg := gs2Header + clientFirstBare

	fe.Send(&pgproto3.SASLInitialResponse{AuthMechanism: "SCRAM-SHA-256", Data: []byte(clientFirstMsg)})
	if err := fe.Flush(); err != nil {
		return err
	}

	msg, err := fe.Receive()
	if err != nil {
		return err
	}
	cont, ok := msg.(*pgproto3.AuthenticationSASLContinue)
	if !ok {
		if errResp, ok := msg.(*pgproto3.ErrorResponse); ok {
			return fmt.Errorf("postgres: %s", errResp.Message)
		}
		return fmt.Errorf("postgres: expected AuthenticationSASLContinue, got %T", msg)
	}
	serverFirstMsg := string(cont.Data)

	serverNonce, salt, iterations, err := parseServerFirst(serverFirstMsg)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(serverNonce, clientNonce) {
		return fmt.Errorf("postgres: server nonce does not extend client nonce")
	}

	saltedPassword := pbkdf2.Key([]byte(password), salt, iterations, sha256.Size, sha256.New)
	clientKey := hmacSHA256(saltedPassword, []byte("Client Key"))
	storedKey := sha256Sum(clientKey)

	channelBinding := "c=" + base64.StdEncoding.EncodeToString([]byte(gs2Header))
	clientFinalWithoutProof := fmt.Sprintf("%s,r=%s", channelBinding, serverNonce)
	authMessage := clientFirstBare + "," + serverFirstMsg + "," + clientFinalWithoutProof

	clientSignature := hmacSHA256(storedKey, []byte(authMessage))
	clientProof := xorBytes(clientKey, clientSignature)
	clientFinalMsg := clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof)

	fe.Send(&pgproto3.SASLResponse{Data: []byte(clientFinalMsg)})
	if err := fe.Flush(); err != nil {
		return err
	}

	msg2, err := fe.Receive()
	if err != nil {
		return err
	}
	final, ok := msg2.(*pgproto3.AuthenticationSASLFinal)
	if !ok {
		if errResp, ok := msg2.(*pgproto3.ErrorResponse); ok {
			return fmt.Errorf("postgres: %s", errResp.Message)
		}
		return fmt.Errorf("postgres: expected AuthenticationSASLFinal, got %T", msg2)
	}

	serverKey := hmacSHA256(saltedPassword, []byte("Server Key"))
	expectedServerSig := hmacSHA256(serverKey, []byte(authMessage))
	expectedServerFinal := "v=" + base64.StdEncoding.EncodeToString(expectedServerSig)
	if string(final.Data) != expectedServerFinal {
		return fmt.Errorf("postgres: server SCRAM signature mismatch, possible MITM")
	}

	// AuthenticationOk follows the SASL exchange; consume and check it here.
	ok2, err := fe.Receive()
	if err != nil {
		return err
	}
	if _, isOK := ok2.(*pgproto3.AuthenticationOk); !isOK {
		return fmt.Errorf("postgres: expected AuthenticationOk after SCRAM completion, got %T", ok2)
	}
	return nil
}

func containsMechanism(mechanisms []string, want string) bool {
	for _, m := range mechanisms {
		if m == want {
			return true
		}
	}
	return false
}

// parseServerFirst parses "r=<nonce>,s=<base64 salt>,i=<iterations>".
func parseServerFirst(msg string) (nonce string, salt []byte, iterations int, err error) {
	for _, part := range strings.Split(msg, ",") {
		if len(part) < 2 || part[1] != '=' {
			continue
		}
		switch part[0] {
		case 'r':
			nonce = part[2:]
		case 's':
			salt, err = base64.StdEncoding.DecodeString(part[2:])
			if err != nil {
				return "", nil, 0, fmt.Errorf("postgres: decoding SCRAM salt: %w", err)
			}
		case 'i':
			iterations, err = strconv.Atoi(part[2:])
			if err != nil {
				return "", nil, 0, fmt.Errorf("postgres: parsing SCRAM iteration count: %w", err)
			}
		}
	}
	if nonce == "" || salt == nil || iterations == 0 {
		return "", nil, 0, fmt.Errorf("postgres: malformed SCRAM server-first message %q", msg)
	}
	return nonce, salt, iterations, nil
}

// saslEscapeUsername escapes ',' and '=' per RFC 5802 (not load-bearing
// for Postgres, which ignores the SASL username field, but kept for a
// spec-correct client-first message).
func saslEscapeUsername(username string) string {
	r := strings.NewReplacer("=", "=3D", ",", "=2C")
	return r.Replace(username)
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func sha256Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
