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

// Package minitx defines the transaction data model and its canonical
// JSON encoding. The canonical encoding is the one thing every
// implementation of this protocol must agree on byte-for-byte: it is
// the hash preimage for both transaction ids and block hashes.
package minitx

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hliangzhao/minichain/cryptoutil"
)

// TxOutput is a value bound to an address. Outputs carry no script.
type TxOutput struct {
	Value   uint64 `json:"value"`
	Address string `json:"address"`
}

// TxInput references a prior output plus the spender's signature and
// public key. Coinbase transactions carry no inputs at all.
type TxInput struct {
	PrevTxID    string `json:"prev_txid"`
	OutputIndex uint32 `json:"output_index"`
	Signature   string `json:"signature"`
	PubKey      string `json:"pubkey"`
}

// Transaction is an ordered list of inputs and outputs plus a
// timestamp, a coinbase flag, and the txid that is a pure function of
// the rest of the content.
type Transaction struct {
	Inputs     []TxInput  `json:"inputs"`
	Outputs    []TxOutput `json:"outputs"`
	Timestamp  int64      `json:"timestamp"`
	IsCoinbase bool       `json:"is_coinbase"`
	TxID       string     `json:"txid"`
}

// jsonString renders a Go string as a JSON string literal.
func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// canonicalJSON renders the TxOutput with lexicographically sorted
// keys: address, value.
func (o TxOutput) canonicalJSON() string {
	return fmt.Sprintf(`{"address":%s,"value":%d}`, jsonString(o.Address), o.Value)
}

// canonicalJSON renders the TxInput with lexicographically sorted
// keys: output_index, prev_txid, pubkey, signature.
func (i TxInput) canonicalJSON() string {
	return fmt.Sprintf(`{"output_index":%d,"prev_txid":%s,"pubkey":%s,"signature":%s}`,
		i.OutputIndex, jsonString(i.PrevTxID), jsonString(i.PubKey), jsonString(i.Signature))
}

// CanonicalBody renders the hashable part of the transaction — every
// field except txid itself — with sorted object keys and no
// extraneous whitespace: inputs, is_coinbase, outputs, timestamp.
func (tx *Transaction) CanonicalBody() []byte {
	inputs := make([]string, len(tx.Inputs))
	for idx, in := range tx.Inputs {
		inputs[idx] = in.canonicalJSON()
	}
	outputs := make([]string, len(tx.Outputs))
	for idx, out := range tx.Outputs {
		outputs[idx] = out.canonicalJSON()
	}
	body := fmt.Sprintf(`{"inputs":[%s],"is_coinbase":%s,"outputs":[%s],"timestamp":%d}`,
		joinCommas(inputs), strconv.FormatBool(tx.IsCoinbase), joinCommas(outputs), tx.Timestamp)
	return []byte(body)
}

func joinCommas(parts []string) string {
	out := ""
	for idx, p := range parts {
		if idx > 0 {
			out += ","
		}
		out += p
	}
	return out
}

// ComputeTxID is the SHA-256 hex digest of the transaction's canonical
// body. A transaction's txid is a pure function of its content:
// recomputing it must reproduce the stored value.
func (tx *Transaction) ComputeTxID() string {
	return cryptoutil.Sha256Hex(tx.CanonicalBody())
}

// IsValidTxID reports whether the stored TxID matches a recomputation.
func (tx *Transaction) IsValidTxID() bool {
	return tx.TxID == tx.ComputeTxID()
}

// NewCoinbase builds a coinbase transaction paying reward to
// minerAddress: empty inputs, a single output, the current timestamp,
// and the computed txid.
func NewCoinbase(minerAddress string, reward uint64) *Transaction {
	tx := &Transaction{
		Inputs:     []TxInput{},
		Outputs:    []TxOutput{{Value: reward, Address: minerAddress}},
		Timestamp:  time.Now().Unix(),
		IsCoinbase: true,
	}
	tx.TxID = tx.ComputeTxID()
	return tx
}

// SigningPreimage is the protocol's chosen signing scope: the
// hex-decoded bytes of the prev_txid an input references. This is
// weaker than signing the whole spending transaction, but existing
// txids depend on it and it must be honored exactly.
func SigningPreimage(prevTxID string) ([]byte, error) {
	return hex.DecodeString(prevTxID)
}
