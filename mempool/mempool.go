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

// Package mempool is the pool of pending transactions: admission is
// cheap and optimistic, with no UTXO validation (spec.md §4.4, §9 —
// a deliberate design choice carried over from the source).
package mempool

import (
	"sync"

	"github.com/hliangzhao/minichain/minitx"
)

// Mempool is a mapping from txid to Transaction with insertion order
// preserved for iteration.
type Mempool struct {
	mu    sync.Mutex
	byID  map[string]*minitx.Transaction
	order []string
}

// New returns an empty Mempool.
func New() *Mempool {
	return &Mempool{
		byID: make(map[string]*minitx.Transaction),
	}
}

// Add inserts tx, returning false if its txid is already present.
func (m *Mempool) Add(tx *minitx.Transaction) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[tx.TxID]; exists {
		return false
	}
	m.byID[tx.TxID] = tx
	m.order = append(m.order, tx.TxID)
	return true
}

// Remove drops txid from the pool. It is idempotent: removing an
// absent id is a no-op.
func (m *Mempool) Remove(txid string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[txid]; !exists {
		return
	}
	delete(m.byID, txid)
	for i, id := range m.order {
		if id == txid {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Get returns up to limit transactions in insertion order. A limit <= 0
// returns every pending transaction.
func (m *Mempool) Get(limit int) []*minitx.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.order)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*minitx.Transaction, 0, n)
	for _, id := range m.order[:n] {
		out = append(out, m.byID[id])
	}
	return out
}

// Len returns the number of pending transactions.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// Has reports whether txid is currently pending.
func (m *Mempool) Has(txid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byID[txid]
	return ok
}
