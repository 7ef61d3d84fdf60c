// Copyright 2021 Hailiang Zhao <hliangzhao@zju.edu.cn>
// This file is part of the lightChain.
//
// The lightChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The lightChain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the lightChain. If not, see <http://www.gnu.org/licenses/>.

// Package cryptoutil gathers the node's cryptographic primitives:
// hashing, secp256k1 keypair generation, address derivation, and
// ECDSA sign/verify over a SHA-256 digest.
package cryptoutil

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

// pubKeyLen is the length in bytes of the raw, uncompressed public key
// (32-byte X followed by 32-byte Y, no leading prefix byte).
const pubKeyLen = 64

// Sha256Hex returns the lowercase hex digest of data.
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// GenerateKeypair creates a new secp256k1 keypair. The returned public
// key is the raw 64-byte X||Y coordinate pair, matching the source's
// `ecdsa.SigningKey.generate(curve=SECP256k1)` plus verifying-key bytes.
func GenerateKeypair() (priv *ecdsa.PrivateKey, pub []byte, err error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("cryptoutil: generate keypair: %w", err)
	}
	priv = key.ToECDSA()
	pub = marshalPubKey(&priv.PublicKey)
	return priv, pub, nil
}

// marshalPubKey renders an ECDSA public key as the raw 64-byte X||Y
// coordinate pair used throughout the wire protocol.
func marshalPubKey(pub *ecdsa.PublicKey) []byte {
	out := make([]byte, pubKeyLen)
	xb := pub.X.Bytes()
	yb := pub.Y.Bytes()
	copy(out[32-len(xb):32], xb)
	copy(out[64-len(yb):64], yb)
	return out
}

// unmarshalPubKey reconstructs an ECDSA public key from the raw 64-byte
// X||Y coordinate pair. Returns false for anything that isn't exactly
// pubKeyLen bytes long.
func unmarshalPubKey(raw []byte) (*ecdsa.PublicKey, bool) {
	if len(raw) != pubKeyLen {
		return nil, false
	}
	x := new(big.Int).SetBytes(raw[:32])
	y := new(big.Int).SetBytes(raw[32:])
	curve := btcec.S256()
	if !curve.IsOnCurve(x, y) {
		return nil, false
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, true
}

// Address derives the node's opaque 32-byte address from a raw public
// key: the SHA-256 hex digest of the public key bytes.
func Address(pub []byte) string {
	return Sha256Hex(pub)
}

// Sign signs data with priv using ECDSA over a SHA-256 digest and
// returns the hex-encoded fixed-width r||s signature.
func Sign(priv *ecdsa.PrivateKey, data []byte) (string, error) {
	digest := sha256.Sum256(data)
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		return "", fmt.Errorf("cryptoutil: sign: %w", err)
	}
	sig := make([]byte, 64)
	rb := r.Bytes()
	sb := s.Bytes()
	copy(sig[32-len(rb):32], rb)
	copy(sig[64-len(sb):64], sb)
	return hex.EncodeToString(sig), nil
}

// Verify checks an ECDSA signature over SHA-256(data) against the raw
// public key bytes pubKeyHex (hex of the 64-byte X||Y pair). It never
// errors: malformed signatures, malformed keys, or wrong-length inputs
// simply verify to false.
func Verify(pubKeyHex string, data []byte, sigHex string) bool {
	pubRaw, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false
	}
	pub, ok := unmarshalPubKey(pubRaw)
	if !ok {
		return false
	}
	sigRaw, err := hex.DecodeString(sigHex)
	if err != nil || len(sigRaw) != 64 {
		return false
	}
	r := new(big.Int).SetBytes(sigRaw[:32])
	s := new(big.Int).SetBytes(sigRaw[32:])
	digest := sha256.Sum256(data)
	return ecdsa.Verify(pub, digest[:], r, s)
}

// PubKeyHex renders a raw public key as the lowercase hex string carried
// in a TransactionInput's pubkey field.
func PubKeyHex(pub []byte) string {
	return hex.EncodeToString(pub)
}
