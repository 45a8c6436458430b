package key

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// DSAPublicKey verifies FIPS 186-3 signatures over one of the fixed
// parameter sets. On the wire p, q, g and y are hex strings.
type DSAPublicKey struct {
	params *DSAParams
	y      *big.Int
}

func (k *DSAPublicKey) Algorithm() string   { return AlgDSA }
func (k *DSAPublicKey) KeySize() int        { return k.params.KeySize }
func (k *DSAPublicKey) AlgorithmID() string { return algorithmID(AlgDSA, k.params.KeySize) }

// Verify checks the r‖s signature encoding: the hex forms of r and s, each
// left-padded to bitlen(q)/4 characters, concatenated and hex-decoded.
func (k *DSAPublicKey) Verify(message, sig []byte) error {
	p, q, g := k.params.P, k.params.Q, k.params.G
	qHexLen := q.BitLen() / 4

	sigHex := leftPadHex(hex.EncodeToString(sig), 2*qHexLen)
	if len(sigHex) != 2*qHexLen {
		return ErrVerification
	}
	r, okR := new(big.Int).SetString(sigHex[:qHexLen], 16)
	s, okS := new(big.Int).SetString(sigHex[qHexLen:], 16)
	if !okR || !okS {
		return ErrVerification
	}
	if r.Sign() < 0 || r.Cmp(q) > 0 || s.Sign() < 0 || s.Cmp(q) > 0 {
		return ErrVerification
	}

	w := new(big.Int).ModInverse(s, q)
	if w == nil {
		return ErrVerification
	}
	hm := new(big.Int).SetBytes(hashSum(k.params.Hash, message))

	u1 := new(big.Int).Mul(hm, w)
	u1.Mod(u1, q)
	u2 := new(big.Int).Mul(r, w)
	u2.Mod(u2, q)

	v := new(big.Int).Exp(g, u1, p)
	v.Mul(v, new(big.Int).Exp(k.y, u2, p))
	v.Mod(v, p)
	v.Mod(v, q)

	if v.Cmp(r) != 0 {
		return ErrVerification
	}
	return nil
}

func (k *DSAPublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"algorithm": AlgDSA,
		"p":         k.params.P.Text(16),
		"q":         k.params.Q.Text(16),
		"g":         k.params.G.Text(16),
		"y":         k.y.Text(16),
	})
}

// DSASecretKey signs over one of the fixed parameter sets.
type DSASecretKey struct {
	params *DSAParams
	x      *big.Int
}

func (k *DSASecretKey) Algorithm() string   { return AlgDSA }
func (k *DSASecretKey) KeySize() int        { return k.params.KeySize }
func (k *DSASecretKey) AlgorithmID() string { return algorithmID(AlgDSA, k.params.KeySize) }

// Sign produces an r‖s signature. The per-signature secret k is sampled with
// 64 bits of excess entropy and reduced mod q-1 to keep the reduction bias
// negligible.
func (k *DSASecretKey) Sign(message []byte) ([]byte, error) {
	p, q, g := k.params.P, k.params.Q, k.params.G
	hm := new(big.Int).SetBytes(hashSum(k.params.Hash, message))

	qMinus1 := new(big.Int).Sub(q, big.NewInt(1))
	for {
		nonce, err := randomNonce(q, qMinus1)
		if err != nil {
			return nil, err
		}

		r := new(big.Int).Exp(g, nonce, p)
		r.Mod(r, q)
		if r.Sign() == 0 {
			continue
		}

		kInv := new(big.Int).ModInverse(nonce, q)
		if kInv == nil {
			continue
		}
		s := new(big.Int).Mul(k.x, r)
		s.Add(s, hm)
		s.Mul(s, kInv)
		s.Mod(s, q)
		if s.Sign() == 0 {
			continue
		}

		return encodeDSASignature(r, s, q.BitLen()/4)
	}
}

func (k *DSASecretKey) Public() PublicKey {
	y := new(big.Int).Exp(k.params.G, k.x, k.params.P)
	return &DSAPublicKey{params: k.params, y: y}
}

func (k *DSASecretKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"algorithm": AlgDSA,
		"p":         k.params.P.Text(16),
		"q":         k.params.Q.Text(16),
		"g":         k.params.G.Text(16),
		"x":         k.x.Text(16),
	})
}

// GenerateDSA produces a fresh key pair over the fixed parameter set for the
// given keysize label.
func GenerateDSA(size int) (SecretKey, error) {
	params, err := dsaParamsForSize(size)
	if err != nil {
		return nil, err
	}
	qMinus1 := new(big.Int).Sub(params.Q, big.NewInt(1))
	x, err := randomNonce(params.Q, qMinus1)
	if err != nil {
		return nil, err
	}
	return &DSASecretKey{params: params, x: x}, nil
}

// randomNonce returns a value in [1, q-1]: c is drawn uniformly from
// bitlen(q)+64 random bits, then reduced as (c mod (q-1)) + 1.
func randomNonce(q, qMinus1 *big.Int) (*big.Int, error) {
	buf := make([]byte, (q.BitLen()+64)/8)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("read nonce entropy: %w", err)
	}
	c := new(big.Int).SetBytes(buf)
	c.Mod(c, qMinus1)
	c.Add(c, big.NewInt(1))
	return c, nil
}

func encodeDSASignature(r, s *big.Int, qHexLen int) ([]byte, error) {
	rHex := leftPadHex(r.Text(16), qHexLen)
	sHex := leftPadHex(s.Text(16), qHexLen)
	if len(rHex) != qHexLen || len(sHex) != qHexLen {
		return nil, fmt.Errorf("DSA signature component exceeds %d hex digits", qHexLen)
	}
	return hex.DecodeString(rHex + sHex)
}

func leftPadHex(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

type dsaPublicJSON struct {
	P string `json:"p"`
	Q string `json:"q"`
	G string `json:"g"`
	Y string `json:"y"`
}

type dsaSecretJSON struct {
	P string `json:"p"`
	Q string `json:"q"`
	G string `json:"g"`
	X string `json:"x"`
}

func unmarshalDSAPublic(data []byte) (*DSAPublicKey, error) {
	var raw dsaPublicJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed DSA public key: %w", err)
	}
	params, err := parseDSAParamFields(raw.P, raw.Q, raw.G)
	if err != nil {
		return nil, err
	}
	y, err := parseHex(raw.Y, "y")
	if err != nil {
		return nil, err
	}
	return &DSAPublicKey{params: params, y: y}, nil
}

func unmarshalDSASecret(data []byte) (*DSASecretKey, error) {
	var raw dsaSecretJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed DSA secret key: %w", err)
	}
	params, err := parseDSAParamFields(raw.P, raw.Q, raw.G)
	if err != nil {
		return nil, err
	}
	x, err := parseHex(raw.X, "x")
	if err != nil {
		return nil, err
	}
	return &DSASecretKey{params: params, x: x}, nil
}

func parseDSAParamFields(pStr, qStr, gStr string) (*DSAParams, error) {
	p, err := parseHex(pStr, "p")
	if err != nil {
		return nil, err
	}
	q, err := parseHex(qStr, "q")
	if err != nil {
		return nil, err
	}
	g, err := parseHex(gStr, "g")
	if err != nil {
		return nil, err
	}
	return matchDSAParams(p, q, g)
}

func parseHex(s, field string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("missing DSA parameter %q", field)
	}
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("DSA parameter %q is not hex", field)
	}
	return v, nil
}
