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

	"github.com/hliangzhao/minichain/minitx"
)

// UTXOEntry is an unspent output: its value and the address that can
// spend it.
type UTXOEntry struct {
	Value   uint64 `json:"value"`
	Address string `json:"address"`
}

// UTXOKey identifies a UTXO entry by the transaction that created it
// and the index of the output within that transaction. It is exported
// so the persistence layer can serialize the index without reaching
// into chain package internals.
type UTXOKey struct {
	TxID        string
	OutputIndex uint32
}

func (k UTXOKey) String() string {
	return fmt.Sprintf("%s:%d", k.TxID, k.OutputIndex)
}

// utxoIndex is the mapping from (txid, output_index) to UTXOEntry. It
// is mutated only by block commit (applyBlock) and by full chain
// replacement (rebuild); mempool admission never touches it.
type utxoIndex map[UTXOKey]UTXOEntry

// applyBlock applies every transaction of b in order. This is the
// sole mutation path for the UTXO index besides a full rebuild.
func (u utxoIndex) applyBlock(b *Block) {
	for _, tx := range b.Transactions {
		u.applyTx(tx)
	}
}

// applyTx removes every non-coinbase input's referent, then adds
// every output of tx.
func (u utxoIndex) applyTx(tx *minitx.Transaction) {
	if !tx.IsCoinbase {
		for _, in := range tx.Inputs {
			delete(u, UTXOKey{TxID: in.PrevTxID, OutputIndex: in.OutputIndex})
		}
	}
	for idx, out := range tx.Outputs {
		u[UTXOKey{TxID: tx.TxID, OutputIndex: uint32(idx)}] = UTXOEntry{
			Value:   out.Value,
			Address: out.Address,
		}
	}
}

// rebuildUTXO replays every block of chain in order against an empty
// index and returns the result. Used by ReplaceChain; IsValidChain
// builds its own point-in-time replay block by block.
func rebuildUTXO(blocks []*Block) utxoIndex {
	idx := make(utxoIndex)
	for _, b := range blocks {
		idx.applyBlock(b)
	}
	return idx
}

// balance sums the value of every UTXO entry owned by address.
func (u utxoIndex) balance(address string) uint64 {
	var total uint64
	for _, entry := range u {
		if entry.Address == address {
			total += entry.Value
		}
	}
	return total
}

// lookup resolves an input's referent inside the index.
func (u utxoIndex) lookup(in minitx.TxInput) (UTXOEntry, bool) {
	entry, ok := u[UTXOKey{TxID: in.PrevTxID, OutputIndex: in.OutputIndex}]
	return entry, ok
}

// SpendableOutput is one UTXO owned by a particular address, named for
// wallet-side coin selection.
type SpendableOutput struct {
	Key   UTXOKey
	Value uint64
}

// forAddress lists every entry owned by address, for coin selection.
func (u utxoIndex) forAddress(address string) []SpendableOutput {
	var out []SpendableOutput
	for key, entry := range u {
		if entry.Address == address {
			out = append(out, SpendableOutput{Key: key, Value: entry.Value})
		}
	}
	return out
}

