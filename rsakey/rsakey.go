// Package rsakey provides the RSA public/private key pair used to
// encrypt the login handshake's secure block, plus a log-correlation
// fingerprint for keys configured into a bot group.
package rsakey

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"
)

// blockSize is the fixed plaintext/ciphertext width for RSA-1024
// raw (no-padding) operations, matching the 317 client's expectations.
const blockSize = 128

// KeyPair holds an RSA public key and, optionally, its matching
// private key. A KeyPair built from a reference server's published
// modulus+exponent has Private == nil; it can still Encrypt, which is
// all a bot ever needs to do. A KeyPair produced by Generate also
// carries the private half, useful for test harnesses that stand in
// for a login server and must decrypt what the bot sent.
type KeyPair struct {
	Public  *rsa.PublicKey
	Private *rsa.PrivateKey
}

// Generate creates a new RSA-1024 key pair with the F4 public exponent
// (65537), matching the key size the 317 client expects.
func Generate() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		return nil, fmt.Errorf("rsakey: generating key: %w", err)
	}
	return &KeyPair{Public: &priv.PublicKey, Private: priv}, nil
}

// FromPublic wraps a modulus and exponent as received from a
// reference server's configuration, with no private half.
func FromPublic(modulus *big.Int, exponent int) *KeyPair {
	return &KeyPair{Public: &rsa.PublicKey{N: modulus, E: exponent}}
}

// Encrypt performs the raw (unpadded) RSA operation m^e mod n on
// plaintext, returning a big-endian result of up to blockSize bytes.
// It satisfies buffer.RSAEncoder, so a *KeyPair can be passed directly
// to Buffer.EncodeRSA.
func (k *KeyPair) Encrypt(plaintext []byte) []byte {
	m := new(big.Int).SetBytes(plaintext)
	c := new(big.Int).Exp(m, big.NewInt(int64(k.Public.E)), k.Public.N)
	return c.Bytes()
}

// Decrypt performs the raw (unpadded) RSA operation c^d mod n,
// returning a blockSize-byte big-endian plaintext. Only usable on a
// KeyPair that carries a private half (i.e. one built by Generate).
func (k *KeyPair) Decrypt(ciphertext []byte) ([]byte, error) {
	if k.Private == nil {
		return nil, fmt.Errorf("rsakey: Decrypt requires a private key")
	}
	c := new(big.Int).SetBytes(ciphertext)
	m := new(big.Int).Exp(c, k.Private.D, k.Private.N)

	result := m.Bytes()
	if len(result) < blockSize {
		padded := make([]byte, blockSize)
		copy(padded[blockSize-len(result):], result)
		result = padded
	}
	return result, nil
}

// pemParseGroup collapses concurrent ParsePublicPEM calls for the same
// PEM bytes into one x509 parse, for the case where several bot groups
// are constructed from the same server-supplied PEM at startup.
var pemParseGroup singleflight.Group

// ParsePublicPEM decodes a PEM-encoded PKIX public key (as published
// by a reference server's configuration) into a KeyPair. Concurrent
// calls with identical pemBytes share one underlying parse.
func ParsePublicPEM(pemBytes []byte) (*KeyPair, error) {
	key := string(pemBytes)
	v, err, _ := pemParseGroup.Do(key, func() (any, error) {
		block, _ := pem.Decode(pemBytes)
		if block == nil {
			return nil, fmt.Errorf("rsakey: no PEM block found")
		}
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("rsakey: parsing PKIX public key: %w", err)
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("rsakey: PEM block does not contain an RSA public key")
		}
		return &KeyPair{Public: rsaPub}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*KeyPair), nil
}

// Fingerprint returns a short hex blake2b-256 digest of the public
// modulus, suitable for correlating log lines across a session
// without printing key material.
func (k *KeyPair) Fingerprint() string {
	sum := blake2b.Sum256(k.Public.N.Bytes())
	return hex.EncodeToString(sum[:8])
}
