package key

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"math/big"
)

// RSAPublicKey verifies PKCS#1 v1.5 signatures under the hash fixed by the
// keysize table. On the wire n and e are decimal strings.
type RSAPublicKey struct {
	size int
	hash crypto.Hash
	pub  rsa.PublicKey
}

func (k *RSAPublicKey) Algorithm() string   { return AlgRSA }
func (k *RSAPublicKey) KeySize() int        { return k.size }
func (k *RSAPublicKey) AlgorithmID() string { return algorithmID(AlgRSA, k.size) }

// CryptoKey exposes the underlying stdlib key for the JWT layer.
func (k *RSAPublicKey) CryptoKey() *rsa.PublicKey { return &k.pub }

// Hash returns the digest paired with this keysize.
func (k *RSAPublicKey) Hash() crypto.Hash { return k.hash }

func (k *RSAPublicKey) Verify(message, sig []byte) error {
	digest := hashSum(k.hash, message)
	if err := rsa.VerifyPKCS1v15(&k.pub, k.hash, digest, sig); err != nil {
		return ErrVerification
	}
	return nil
}

func (k *RSAPublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"algorithm": AlgRSA,
		"n":         k.pub.N.String(),
		"e":         fmt.Sprintf("%d", k.pub.E),
	})
}

// RSASecretKey signs with PKCS#1 v1.5. Its JSON form adds the private
// exponent d to the public parameters.
type RSASecretKey struct {
	size int
	hash crypto.Hash
	priv rsa.PrivateKey
}

func (k *RSASecretKey) Algorithm() string   { return AlgRSA }
func (k *RSASecretKey) KeySize() int        { return k.size }
func (k *RSASecretKey) AlgorithmID() string { return algorithmID(AlgRSA, k.size) }

// CryptoKey exposes the underlying stdlib key for the JWT layer.
func (k *RSASecretKey) CryptoKey() *rsa.PrivateKey { return &k.priv }

func (k *RSASecretKey) Sign(message []byte) ([]byte, error) {
	digest := hashSum(k.hash, message)
	return rsa.SignPKCS1v15(rand.Reader, &k.priv, k.hash, digest)
}

func (k *RSASecretKey) Public() PublicKey {
	return &RSAPublicKey{size: k.size, hash: k.hash, pub: k.priv.PublicKey}
}

func (k *RSASecretKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"algorithm": AlgRSA,
		"n":         k.priv.N.String(),
		"e":         fmt.Sprintf("%d", k.priv.E),
		"d":         k.priv.D.String(),
	})
}

// GenerateRSA produces a fresh key pair for the given keysize label.
func GenerateRSA(size int) (SecretKey, error) {
	bits, hash, err := rsaBitsForSize(size)
	if err != nil {
		return nil, err
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate RSA-%d key: %w", bits, err)
	}
	return &RSASecretKey{size: size, hash: hash, priv: *priv}, nil
}

type rsaPublicJSON struct {
	N string `json:"n"`
	E string `json:"e"`
}

type rsaSecretJSON struct {
	N string `json:"n"`
	E string `json:"e"`
	D string `json:"d"`
}

func unmarshalRSAPublic(data []byte) (*RSAPublicKey, error) {
	var raw rsaPublicJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed RSA public key: %w", err)
	}
	n, e, err := parseRSAPublicFields(raw.N, raw.E)
	if err != nil {
		return nil, err
	}
	size, hash, err := rsaSizeForBits(n.BitLen())
	if err != nil {
		return nil, err
	}
	return &RSAPublicKey{size: size, hash: hash, pub: rsa.PublicKey{N: n, E: e}}, nil
}

func unmarshalRSASecret(data []byte) (*RSASecretKey, error) {
	var raw rsaSecretJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed RSA secret key: %w", err)
	}
	n, e, err := parseRSAPublicFields(raw.N, raw.E)
	if err != nil {
		return nil, err
	}
	d, err := parseDecimal(raw.D, "d")
	if err != nil {
		return nil, err
	}
	size, hash, err := rsaSizeForBits(n.BitLen())
	if err != nil {
		return nil, err
	}
	priv := rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: n, E: e},
		D:         d,
	}
	return &RSASecretKey{size: size, hash: hash, priv: priv}, nil
}

func parseRSAPublicFields(nStr, eStr string) (*big.Int, int, error) {
	n, err := parseDecimal(nStr, "n")
	if err != nil {
		return nil, 0, err
	}
	e, err := parseDecimal(eStr, "e")
	if err != nil {
		return nil, 0, err
	}
	if !e.IsInt64() || e.Int64() <= 1 || e.Int64() > int64(1)<<31 {
		return nil, 0, fmt.Errorf("RSA exponent out of range")
	}
	return n, int(e.Int64()), nil
}

func parseDecimal(s, field string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("missing RSA parameter %q", field)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("RSA parameter %q is not a decimal integer", field)
	}
	return v, nil
}

func hashSum(h crypto.Hash, message []byte) []byte {
	hh := h.New()
	hh.Write(message)
	return hh.Sum(nil)
}
