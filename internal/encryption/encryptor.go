package encryption

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

type Mode string

const (
	ModePublicKey   Mode = "public_key"
	ModePlaceholder Mode = "placeholder"
)

const placeholderPrefix = "encrypted_"

// EncryptionError is a local cryptographic failure while preparing a request.
type EncryptionError struct {
	Err error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("encryption failed: %v", e.Err)
}

func (e *EncryptionError) Unwrap() error { return e.Err }

// Encryptor wraps customer secrets with the gateway's RSA public key.
// Without a key it runs in placeholder mode, which must not be used in production.
type Encryptor struct {
	key *rsa.PublicKey
	log logrus.FieldLogger
}

func New(key *rsa.PublicKey, log logrus.FieldLogger) *Encryptor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Encryptor{key: key, log: log}
}

// Load reads a PEM public key from path. An empty path selects placeholder mode.
func Load(path string, log logrus.FieldLogger) (*Encryptor, error) {
	if path == "" {
		return New(nil, log), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key %s: %w", path, err)
	}
	key, err := ParsePublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key %s: %w", path, err)
	}
	return New(key, log), nil
}

func (e *Encryptor) Mode() Mode {
	if e.key == nil {
		return ModePlaceholder
	}
	return ModePublicKey
}

func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if e.key == nil {
		e.log.Warn("eSADAD encryptor has no public key configured, sending placeholder value")
		return placeholderPrefix + plaintext, nil
	}

	cipher, err := rsa.EncryptPKCS1v15(rand.Reader, e.key, []byte(plaintext))
	if err != nil {
		return "", &EncryptionError{Err: err}
	}
	return base64.StdEncoding.EncodeToString(cipher), nil
}

// ParsePublicKey accepts PKIX, PKCS#1 and certificate PEM blocks.
func ParsePublicKey(raw []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	switch block.Type {
	case "PUBLIC KEY":
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		return asRSA(pub)
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		return asRSA(cert.PublicKey)
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}

func asRSA(pub interface{}) (*rsa.PublicKey, error) {
	key, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, not RSA", pub)
	}
	return key, nil
}
