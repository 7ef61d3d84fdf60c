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

// Package chain is the ledger state machine: it validates and commits
// blocks while maintaining the unspent-output index, and adopts the
// longest valid chain on reorg.
package chain

import (
	"encoding/hex"
	"log"
	"os"
	"sync"

	"github.com/hliangzhao/minichain/cryptoutil"
	"github.com/hliangzhao/minichain/minitx"
)

// Snapshotter is the seam Blockchain uses to trigger a durable
// snapshot after every successful commit, without the chain package
// needing to know anything about file formats or paths. The
// persistence package implements this against a *Blockchain.
type Snapshotter interface {
	Save(blocks []*Block, utxo map[UTXOKey]UTXOEntry) error
}

// LoadedState is what a persistence loader hands back on startup when
// an existing snapshot is found: a chain and the UTXO index it
// implies, skipping genesis creation.
type LoadedState struct {
	Blocks []*Block
	UTXO   map[UTXOKey]UTXOEntry
}

// Blockchain is the single source of truth for the committed chain and
// the UTXO index derived from it. A commit acquires the chain lock for
// the duration of validation, append, and UTXO update, which serializes
// block commits and keeps the UTXO index always in step with the
// committed chain (spec.md §5).
type Blockchain struct {
	mu               sync.RWMutex
	blocks           []*Block
	utxo             utxoIndex
	reward           uint64
	difficultyPrefix string
	snapshotter      Snapshotter
	log              *log.Logger
}

// New constructs a Blockchain. If loaded is non-nil its blocks/UTXO
// index become the starting state (an existing chain.bin was found on
// disk); otherwise a genesis block paying reward to genesisMiner is
// created, matching create_genesis_block in the source.
func New(genesisMiner string, reward uint64, difficultyPrefix string, snapshotter Snapshotter, loaded *LoadedState) *Blockchain {
	bc := &Blockchain{
		reward:           reward,
		difficultyPrefix: difficultyPrefix,
		snapshotter:      snapshotter,
		log:              log.New(os.Stderr, "[chain] ", log.LstdFlags),
	}
	if loaded != nil {
		bc.blocks = loaded.Blocks
		bc.utxo = loaded.UTXO
		if bc.utxo == nil {
			bc.utxo = make(utxoIndex)
		}
		return bc
	}

	genesis := newGenesisBlock(genesisMiner, reward)
	bc.blocks = []*Block{genesis}
	bc.utxo = make(utxoIndex)
	bc.utxo.applyBlock(genesis)
	return bc
}

// Tip returns the highest-indexed committed block.
func (bc *Blockchain) Tip() *Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.blocks[len(bc.blocks)-1]
}

// Height returns the index of the tip.
func (bc *Blockchain) Height() uint64 {
	return bc.Tip().Index
}

// Blocks returns a snapshot copy of the committed chain, oldest first.
func (bc *Blockchain) Blocks() []*Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	out := make([]*Block, len(bc.blocks))
	copy(out, bc.blocks)
	return out
}

// BlockAt returns the block at the given height.
func (bc *Blockchain) BlockAt(height uint64) (*Block, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if height >= uint64(len(bc.blocks)) {
		return nil, false
	}
	return bc.blocks[height], true
}

// FindTransaction scans the chain for a transaction by id.
func (bc *Blockchain) FindTransaction(txid string) (*minitx.Transaction, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	for _, b := range bc.blocks {
		for _, tx := range b.Transactions {
			if tx.TxID == txid {
				return tx, true
			}
		}
	}
	return nil, false
}

// GetBalance sums the value of every UTXO entry owned by address.
func (bc *Blockchain) GetBalance(address string) uint64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.utxo.balance(address)
}

// SpendableOutputsFor lists every UTXO entry owned by address, for a
// wallet choosing which outputs to spend.
func (bc *Blockchain) SpendableOutputsFor(address string) []SpendableOutput {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.utxo.forAddress(address)
}

// AddBlock validates block against the current tip; on success it
// appends the block, updates the UTXO index, and triggers a durable
// snapshot. Validation failures are non-fatal: the block is rejected
// and no state is mutated.
func (bc *Blockchain) AddBlock(block *Block) bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	prev := bc.blocks[len(bc.blocks)-1]
	if !bc.isValidNewBlockLocked(block, prev) {
		return false
	}

	bc.blocks = append(bc.blocks, block)
	bc.utxo.applyBlock(block)

	if bc.snapshotter != nil {
		if err := bc.snapshotter.Save(bc.blocks, bc.utxo); err != nil {
			// Persistence is best-effort: a failed snapshot write is
			// logged but never unwinds an already-committed block.
			bc.log.Printf("snapshot after block %d failed: %v", block.Index, err)
		}
	}
	return true
}

// ValidateTransaction passes unconditionally for coinbase transactions
// except that its single output's value must equal the configured
// block reward (stricter than the Python source — see DESIGN.md).
// Otherwise every input must reference a present UTXO, the input sum
// must cover the output sum, and every input's signature must verify
// against the referenced UTXO's address.
func (bc *Blockchain) ValidateTransaction(tx *minitx.Transaction) bool {
	return bc.validateTransactionAgainst(tx, bc.utxo)
}

func (bc *Blockchain) validateTransactionAgainst(tx *minitx.Transaction, utxo utxoIndex) bool {
	if tx.IsCoinbase {
		return len(tx.Inputs) == 0 && len(tx.Outputs) == 1 && tx.Outputs[0].Value == bc.reward
	}

	var inputSum uint64
	for _, in := range tx.Inputs {
		entry, ok := utxo.lookup(in)
		if !ok {
			return false
		}
		inputSum += entry.Value

		preimage, err := minitx.SigningPreimage(in.PrevTxID)
		if err != nil {
			return false
		}
		if !cryptoutil.Verify(in.PubKey, preimage, in.Signature) {
			return false
		}
		pubKeyBytes, err := hex.DecodeString(in.PubKey)
		if err != nil || cryptoutil.Address(pubKeyBytes) != entry.Address {
			return false
		}
	}

	var outputSum uint64
	for _, out := range tx.Outputs {
		outputSum += out.Value
	}
	return inputSum >= outputSum
}

// IsValidNewBlock enforces prev_hash linkage, sequential index, proof
// of work, hash recomputation, and that every transaction validates
// against the UTXO index as it stands after all prior committed
// blocks.
func (bc *Blockchain) IsValidNewBlock(block, prev *Block) bool {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.isValidNewBlockLocked(block, prev)
}

func (bc *Blockchain) isValidNewBlockLocked(block, prev *Block) bool {
	if block.PrevHash != prev.Hash {
		return false
	}
	if block.Index != prev.Index+1 {
		return false
	}
	if !block.HasValidProofOfWork(bc.difficultyPrefix) {
		return false
	}
	return bc.validateBlockTransactions(block, bc.utxo)
}

// validateBlockTransactions checks every transaction of block in
// order against a scratch copy of base, applying each one to the
// scratch copy as it passes. This catches a block that packs two
// transactions spending the same output: the second fails against
// the scratch state even though each one alone validates against
// base (spec.md §8 scenario 4). base itself is never
// mutated; the real index is only updated once the whole block is
// accepted.
func (bc *Blockchain) validateBlockTransactions(block *Block, base utxoIndex) bool {
	scratch := make(utxoIndex, len(base))
	for k, v := range base {
		scratch[k] = v
	}
	for _, tx := range block.Transactions {
		if !bc.validateTransactionAgainst(tx, scratch) {
			return false
		}
		scratch.applyTx(tx)
	}
	return true
}

// IsValidChain checks structural validity of every block in c plus a
// replayed, point-in-time UTXO index — stricter than the Python
// source, which skips re-validating transactions on a candidate
// replacement chain (spec.md §9 Open Questions; decision recorded in
// DESIGN.md).
func (bc *Blockchain) IsValidChain(c []*Block) bool {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.isValidChainLocked(c)
}

// ReplaceChain accepts a candidate only if it is strictly longer than
// the current chain and passes IsValidChain, then commits by replacing
// the chain and rebuilding the UTXO index from scratch. Equal length
// keeps the local chain: strictly-longer-wins is the only tie-break.
func (bc *Blockchain) ReplaceChain(candidate []*Block) bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if len(candidate) <= len(bc.blocks) {
		return false
	}
	if !bc.isValidChainLocked(candidate) {
		return false
	}

	bc.blocks = candidate
	bc.utxo = rebuildUTXO(candidate)

	if bc.snapshotter != nil {
		if err := bc.snapshotter.Save(bc.blocks, bc.utxo); err != nil {
			bc.log.Printf("snapshot after reorg to height %d failed: %v", bc.blocks[len(bc.blocks)-1].Index, err)
		}
	}
	return true
}

// isValidChainLocked is IsValidChain's body, callable while mu is
// already held for writing (ReplaceChain).
func (bc *Blockchain) isValidChainLocked(c []*Block) bool {
	if len(c) == 0 {
		return false
	}
	localGenesisHash := bc.blocks[0].Hash
	if c[0].Hash != localGenesisHash || c[0].Hash != c[0].ComputeHash() {
		return false
	}

	replay := make(utxoIndex)
	replay.applyBlock(c[0])

	for i := 1; i < len(c); i++ {
		block, prevBlock := c[i], c[i-1]
		if block.PrevHash != prevBlock.Hash {
			return false
		}
		if block.Index != prevBlock.Index+1 {
			return false
		}
		if !block.HasValidProofOfWork(bc.difficultyPrefix) {
			return false
		}
		if !bc.validateBlockTransactions(block, replay) {
			return false
		}
		replay.applyBlock(block)
	}
	return true
}
