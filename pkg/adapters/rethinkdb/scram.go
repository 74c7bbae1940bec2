package rethinkdb

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// scramClient runs the client side of SCRAM-SHA-256 (RFC 5802, RFC 7677).
type scramClient struct {
	user     string
	password string
	nonce    string

	clientFirstBare string
	serverSignature []byte
}

func newScramClient(user, password, nonce string) *scramClient {
	return &scramClient{user: user, password: password, nonce: nonce}
}

func randomNonce() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return base64.StdEncoding.EncodeToString(b)
}

// first returns the client-first message.
func (c *scramClient) first() string {
	name := strings.NewReplacer("=", "=3D", ",", "=2C").Replace(c.user)
	c.clientFirstBare = "n=" + name + ",r=" + c.nonce
	return "n,," + c.clientFirstBare
}

// final answers the server-first message with the client proof.
func (c *scramClient) final(serverFirst string) (string, error) {
	attrs := scramAttrs(serverFirst)
	nonce, salt64, iter := attrs["r"], attrs["s"], attrs["i"]
	if !strings.HasPrefix(nonce, c.nonce) || len(nonce) == len(c.nonce) {
		return "", fmt.Errorf("server nonce does not extend client nonce")
	}
	salt, err := base64.StdEncoding.DecodeString(salt64)
	if err != nil {
		return "", fmt.Errorf("invalid salt: %w", err)
	}
	iterations, err := strconv.Atoi(iter)
	if err != nil || iterations < 1 {
		return "", fmt.Errorf("invalid iteration count %q", iter)
	}

	salted := pbkdf2.Key([]byte(c.password), salt, iterations, sha256.Size, sha256.New)
	clientKey := hmacSum(salted, "Client Key")
	storedKey := sha256.Sum256(clientKey)

	withoutProof := "c=biws,r=" + nonce
	authMessage := c.clientFirstBare + "," + serverFirst + "," + withoutProof

	proof := hmacSum(storedKey[:], authMessage)
	for i := range proof {
		proof[i] ^= clientKey[i]
	}
	c.serverSignature = hmacSum(hmacSum(salted, "Server Key"), authMessage)

	return withoutProof + ",p=" + base64.StdEncoding.EncodeToString(proof), nil
}

// verify checks the server-final message against the expected signature.
func (c *scramClient) verify(serverFinal string) error {
	v, err := base64.StdEncoding.DecodeString(scramAttrs(serverFinal)["v"])
	if err != nil {
		return fmt.Errorf("invalid server signature: %w", err)
	}
	if subtle.ConstantTimeCompare(v, c.serverSignature) != 1 {
		return fmt.Errorf("server signature mismatch")
	}
	return nil
}

func hmacSum(key []byte, msg string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(msg))
	return h.Sum(nil)
}

func scramAttrs(msg string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(msg, ",") {
		if k, v, ok := strings.Cut(part, "="); ok {
			out[k] = v
		}
	}
	return out
}
