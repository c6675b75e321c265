package warehouse

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/youmark/pkcs8"
	"golang.org/x/crypto/ssh"
)

func wipeSlice(b []byte) {
	for i := range b {
		b[i] = '~'
	}
}

// parsePrivateKey decodes a PEM or base64-encoded RSA private key, optionally
// encrypted with passphrase. Snowflake's key-pair authentication accepts
// either form.
func parsePrivateKey(keyBytes []byte, passphrase string) (*rsa.PrivateKey, error) {
	defer wipeSlice(keyBytes)
	if len(keyBytes) == 0 {
		return nil, errors.New("warehouse: private key is empty")
	}

	block, _ := pem.Decode(keyBytes)
	if block == nil {
		decoded := make([]byte, base64.StdEncoding.DecodedLen(len(keyBytes)))
		n, err := base64.StdEncoding.Decode(decoded, keyBytes)
		if err != nil {
			return nil, errors.New("warehouse: private key is neither PEM nor base64 encoded")
		}
		blockType := "PRIVATE KEY"
		if passphrase != "" {
			blockType = "ENCRYPTED PRIVATE KEY"
		}
		block = &pem.Block{Type: blockType, Bytes: decoded[:n]}
		keyBytes = pem.EncodeToMemory(block)
	}

	if block.Type == "ENCRYPTED PRIVATE KEY" {
		if passphrase == "" {
			return nil, errors.New("warehouse: private key is encrypted but no passphrase was configured")
		}
		key, err := pkcs8.ParsePKCS8PrivateKeyRSA(block.Bytes, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("warehouse: failed to decrypt private key: %w", err)
		}
		return key, nil
	}

	raw, err := ssh.ParseRawPrivateKey(keyBytes)
	if err != nil {
		if key, ferr := x509.ParsePKCS1PrivateKey(block.Bytes); ferr == nil {
			return key, nil
		}
		return nil, fmt.Errorf("warehouse: could not parse private key: %w", err)
	}
	key, ok := raw.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("warehouse: private key is not an RSA key")
	}
	return key, nil
}
