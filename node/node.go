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

// Package node wires the ledger, mempool, peer protocol, and miner
// into one running process, the way StartNode did for the source's
// pseudo network (network/pseudo_p2p.go).
package node

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hliangzhao/minichain/chain"
	"github.com/hliangzhao/minichain/config"
	"github.com/hliangzhao/minichain/mempool"
	"github.com/hliangzhao/minichain/miner"
	"github.com/hliangzhao/minichain/minitx"
	"github.com/hliangzhao/minichain/p2p"
	"github.com/hliangzhao/minichain/snapshot"
)

// ChainMeta is the subset of chain state a caller needs to describe
// "where is this node" without handing out the full block list.
type ChainMeta struct {
	Height    uint64
	TipHash   string
	NumBlocks int
}

// NodeAPI is the in-process surface an (unbuilt) HTTP layer would call
// into — one method per route of the source's api.py. It is
// implemented directly by *Node so it can be exercised by tests
// without standing up a transport.
type NodeAPI interface {
	// SubmitTransaction admits tx to the local mempool and gossips it
	// to peers, mirroring POST /transactions/new.
	SubmitTransaction(tx *minitx.Transaction) error
	// Balance mirrors GET /balance/<address>.
	Balance(address string) uint64
	// ChainInfo mirrors GET /chain.
	ChainInfo() ChainMeta
	// BlockAt mirrors GET /block/<height>.
	BlockAt(height uint64) (*chain.Block, bool)
	// Transaction mirrors GET /transaction/<txid>.
	Transaction(txid string) (*minitx.Transaction, bool)
	// PendingTransactions mirrors GET /mempool.
	PendingTransactions() []*minitx.Transaction
	// Identity mirrors GET /node/info: this node's listen address and
	// the peers it currently holds a connection to.
	Identity() (selfAddr string, peers []string)
}

// Node bundles every component started by Run.
type Node struct {
	Chain *chain.Blockchain
	Pool  *mempool.Mempool
	P2P   *p2p.Node
	Miner *miner.Miner

	selfAddr string
	log      *log.Logger
}

// New wires C1 through C7 in order: open the snapshot store, load or
// create genesis state, construct the mempool, the peer node, and the
// miner. Nothing is started yet — call Run for that.
func New(cfg config.Config) (*Node, error) {
	store, err := snapshot.New(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}

	loaded, found, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if !found {
		loaded = nil
	}

	genesisMiner := cfg.MinerAddress
	if genesisMiner == "" {
		// A node started without a miner address still needs somewhere
		// for genesis's coinbase to go. The placeholder is not the hash
		// of any public key, so that output can never be spent.
		genesisMiner = "unclaimed-genesis-reward"
	}

	bc := chain.New(genesisMiner, config.BlockReward, config.DifficultyPrefix, store, loaded)
	pool := mempool.New()

	selfAddr := fmt.Sprintf("localhost:%d", cfg.P2PPort)
	p2pNode, err := p2p.NewNode(selfAddr, bc, pool, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("construct p2p node: %w", err)
	}

	var m *miner.Miner
	if cfg.MinerAddress != "" {
		m = miner.New(bc, pool, cfg.MinerAddress, config.BlockReward, config.DifficultyPrefix, p2pNode)
	}

	return &Node{
		Chain:    bc,
		Pool:     pool,
		P2P:      p2pNode,
		Miner:    m,
		selfAddr: selfAddr,
		log:      log.New(os.Stderr, "[node] ", log.LstdFlags),
	}, nil
}

// Run starts the peer listener, dials seed peers, and — if a miner
// address was configured — starts the mining loop. It returns once
// the listener is up; ctx cancellation is the shutdown signal both the
// listener and the miner poll.
func (n *Node) Run(ctx context.Context, cfg config.Config) error {
	if err := n.P2P.Start(ctx, n.selfAddr, cfg.Peers); err != nil {
		return fmt.Errorf("start p2p: %w", err)
	}
	n.log.Printf("node listening on %s, height=%d", n.selfAddr, n.Chain.Height())

	if n.Miner != nil {
		go n.Miner.Run(ctx)
	}
	return nil
}

func (n *Node) SubmitTransaction(tx *minitx.Transaction) error {
	if !tx.IsValidTxID() {
		return fmt.Errorf("txid does not match transaction content")
	}
	if n.Pool.Has(tx.TxID) {
		return fmt.Errorf("transaction %s already pending", tx.TxID)
	}
	n.Pool.Add(tx)
	n.P2P.BroadcastTx(tx)
	return nil
}

func (n *Node) Balance(address string) uint64 {
	return n.Chain.GetBalance(address)
}

func (n *Node) ChainInfo() ChainMeta {
	blocks := n.Chain.Blocks()
	tip := blocks[len(blocks)-1]
	return ChainMeta{Height: tip.Index, TipHash: tip.Hash, NumBlocks: len(blocks)}
}

func (n *Node) BlockAt(height uint64) (*chain.Block, bool) {
	return n.Chain.BlockAt(height)
}

func (n *Node) Transaction(txid string) (*minitx.Transaction, bool) {
	return n.Chain.FindTransaction(txid)
}

func (n *Node) PendingTransactions() []*minitx.Transaction {
	return n.Pool.Get(0)
}

func (n *Node) Identity() (string, []string) {
	return n.selfAddr, n.P2P.Peers()
}

var _ NodeAPI = (*Node)(nil)
