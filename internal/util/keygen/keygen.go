package keygen

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

// DefaultBits is the RSA key size used for node keys.
const DefaultBits = 3072

// KeyPair holds an RSA key pair in ready-to-use formats.
type KeyPair struct {
	// PrivateKey is the RSA private key in PEM-encoded PKCS#1 format.
	PrivateKey []byte
	// PublicKey is the public key in OpenSSH authorized_keys format.
	PublicKey []byte
}

// GenerateRSAKeyPair generates a new RSA key pair with the specified bit size.
func GenerateRSAKeyPair(bits int) (*KeyPair, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA private key: %w", err)
	}

	if err := privateKey.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate RSA private key: %w", err)
	}

	privateKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})

	publicKey, err := ssh.NewPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH public key: %w", err)
	}

	return &KeyPair{
		PrivateKey: privateKeyPEM,
		PublicKey:  ssh.MarshalAuthorizedKey(publicKey),
	}, nil
}

// LoadOrGenerate reads the private key at path, deriving its public half.
// When the file does not exist a new pair is generated and written with
// mode 0600 (the public key goes to path + ".pub"). The returned bool is
// true when a new key was created.
func LoadOrGenerate(path string, bits int) (*KeyPair, bool, error) {
	data, err := os.ReadFile(path) // #nosec G304
	switch {
	case err == nil:
		pair, parseErr := fromPrivatePEM(data)
		if parseErr != nil {
			return nil, false, fmt.Errorf("failed to parse key %s: %w", path, parseErr)
		}
		return pair, false, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, false, fmt.Errorf("failed to read key %s: %w", path, err)
	}

	pair, err := GenerateRSAKeyPair(bits)
	if err != nil {
		return nil, false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, false, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(path, pair.PrivateKey, 0o600); err != nil {
		return nil, false, fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.WriteFile(path+".pub", pair.PublicKey, 0o644); err != nil { // #nosec G306
		return nil, false, fmt.Errorf("failed to write public key: %w", err)
	}
	return pair, true, nil
}

func fromPrivatePEM(data []byte) (*KeyPair, error) {
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		PrivateKey: data,
		PublicKey:  ssh.MarshalAuthorizedKey(signer.PublicKey()),
	}, nil
}
