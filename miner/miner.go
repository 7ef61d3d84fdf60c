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

// Package miner assembles candidate blocks from the mempool and races
// to extend the tip with a proof-of-work search that is preemptible on
// every attempt.
package miner

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/hliangzhao/minichain/chain"
	"github.com/hliangzhao/minichain/config"
	"github.com/hliangzhao/minichain/mempool"
	"github.com/hliangzhao/minichain/minitx"
)

// Broadcaster is the seam the miner uses to hand a freshly mined block
// to the peer protocol, satisfied by *p2p.Node.
type Broadcaster interface {
	BroadcastBlock(b *chain.Block)
}

// Miner runs the background PoW loop described in spec.md §4.5.
type Miner struct {
	bc               *chain.Blockchain
	pool             *mempool.Mempool
	minerAddress     string
	reward           uint64
	difficultyPrefix string
	broadcaster      Broadcaster
	log              *log.Logger

	retryDelay time.Duration
	drain      int
}

// New builds a Miner targeting minerAddress. broadcaster may be nil
// (a node running without peers still mines, it just never announces).
func New(bc *chain.Blockchain, pool *mempool.Mempool, minerAddress string, reward uint64, difficultyPrefix string, broadcaster Broadcaster) *Miner {
	return &Miner{
		bc:               bc,
		pool:             pool,
		minerAddress:     minerAddress,
		reward:           reward,
		difficultyPrefix: difficultyPrefix,
		broadcaster:      broadcaster,
		log:              log.New(os.Stderr, "[miner] ", log.LstdFlags),
		retryDelay:       config.MiningRetryDelayMS * time.Millisecond,
		drain:            config.MempoolDrain,
	}
}

// Run mines forever until ctx is cancelled. ctx cancellation is the
// stop signal the PoW inner loop polls between attempts (spec.md §4.8).
func (m *Miner) Run(ctx context.Context) {
	m.log.Printf("miner started, address=%s", m.minerAddress)
	for {
		select {
		case <-ctx.Done():
			m.log.Printf("miner stopped")
			return
		default:
		}

		m.mineOneRound(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.retryDelay):
		}
	}
}

// mineOneRound snapshots the tip, assembles one candidate block, and
// searches for a satisfying nonce. It never holds the chain lock
// across the PoW inner loop — Tip()/Height() each take and release
// their own read lock.
func (m *Miner) mineOneRound(ctx context.Context) {
	tip := m.bc.Tip()
	pending := m.pool.Get(m.drain)

	coinbase := minitx.NewCoinbase(m.minerAddress, m.reward)
	txs := make([]*minitx.Transaction, 0, len(pending)+1)
	txs = append(txs, coinbase)
	txs = append(txs, pending...)

	candidate := &chain.Block{
		Index:        tip.Index + 1,
		PrevHash:     tip.Hash,
		Transactions: txs,
		Nonce:        0,
		Timestamp:    time.Now().Unix(),
	}

	hash, found := m.search(ctx, candidate)
	if !found {
		return
	}
	candidate.Hash = hash

	if !m.bc.AddBlock(candidate) {
		m.log.Printf("candidate block #%d rejected at commit time", candidate.Index)
		return
	}
	m.log.Printf("mined block #%d: %s", candidate.Index, candidate.Hash)

	for _, tx := range pending {
		m.pool.Remove(tx.TxID)
	}
	if m.broadcaster != nil {
		m.broadcaster.BroadcastBlock(candidate)
	}
}

// search increments candidate's nonce from zero until its hash begins
// with the difficulty prefix, checking the stop signal and whether the
// chain's height has reached this candidate's height before every
// attempt. It returns found=false when abandoned rather than solved.
func (m *Miner) search(ctx context.Context, candidate *chain.Block) (hash string, found bool) {
	for nonce := uint64(0); ; nonce++ {
		select {
		case <-ctx.Done():
			return "", false
		default:
		}
		if m.bc.Height() >= candidate.Index {
			return "", false
		}

		candidate.Nonce = nonce
		h := candidate.ComputeHash()
		if strings.HasPrefix(h, m.difficultyPrefix) {
			return h, true
		}
	}
}
