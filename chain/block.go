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

package chain

import (
	"fmt"
	"strings"
	"time"

	"github.com/hliangzhao/minichain/cryptoutil"
	"github.com/hliangzhao/minichain/minitx"
)

// genesisPrevHash is 64 hex zero characters, the prev_hash every
// genesis block carries.
const genesisPrevHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Block is one entry of the chain: a header plus its body of
// transactions, with the coinbase transaction always first.
type Block struct {
	Index        uint64                `json:"index"`
	PrevHash     string                `json:"prev_hash"`
	Transactions []*minitx.Transaction `json:"transactions"`
	Nonce        uint64                `json:"nonce"`
	Timestamp    int64                 `json:"timestamp"`
	Hash         string                `json:"hash"`
}

// CanonicalBody renders the block header and transaction bodies (each
// transaction as its own canonical dict, txid excluded) with sorted
// object keys: index, nonce, prev_hash, timestamp, transactions. The
// hash field itself is excluded from the preimage.
func (b *Block) CanonicalBody() []byte {
	txs := make([]string, len(b.Transactions))
	for idx, tx := range b.Transactions {
		txs[idx] = string(tx.CanonicalBody())
	}
	body := fmt.Sprintf(`{"index":%d,"nonce":%d,"prev_hash":"%s","timestamp":%d,"transactions":[%s]}`,
		b.Index, b.Nonce, b.PrevHash, b.Timestamp, strings.Join(txs, ","))
	return []byte(body)
}

// ComputeHash is the SHA-256 hex digest of the block's canonical body.
func (b *Block) ComputeHash() string {
	return cryptoutil.Sha256Hex(b.CanonicalBody())
}

// HasValidProofOfWork reports whether the block's hash begins with the
// given difficulty prefix and matches a recomputation of its content.
func (b *Block) HasValidProofOfWork(prefix string) bool {
	return strings.HasPrefix(b.Hash, prefix) && b.Hash == b.ComputeHash()
}

// newGenesisBlock builds the height-0 block for a fresh chain: a
// single coinbase transaction paying reward to minerAddress, a
// prev_hash of 64 zero characters, and a nonce of 0. Genesis is
// exempt from the difficulty check, so it is never mined.
func newGenesisBlock(minerAddress string, reward uint64) *Block {
	coinbase := minitx.NewCoinbase(minerAddress, reward)
	block := &Block{
		Index:        0,
		PrevHash:     genesisPrevHash,
		Transactions: []*minitx.Transaction{coinbase},
		Nonce:        0,
		Timestamp:    time.Now().Unix(),
	}
	block.Hash = block.ComputeHash()
	return block
}
