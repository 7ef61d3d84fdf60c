package mempool

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hliangzhao/minichain/minitx"
)

func TestAddRejectsDuplicateTxID(t *testing.T) {
	pool := New()
	tx := minitx.NewCoinbase("addr", 10)

	assert.True(t, pool.Add(tx))
	assert.False(t, pool.Add(tx))
	assert.Equal(t, 1, pool.Len())
}

func TestAddDoesNotValidateUTXO(t *testing.T) {
	// Mempool admission is optimistic by design: a transaction
	// referencing nothing real is still accepted.
	pool := New()
	spend := &minitx.Transaction{
		Inputs:  []minitx.TxInput{{PrevTxID: "deadbeef", OutputIndex: 0}},
		Outputs: []minitx.TxOutput{{Value: 1, Address: "nobody"}},
	}
	spend.TxID = spend.ComputeTxID()

	assert.True(t, pool.Add(spend))
	assert.True(t, pool.Has(spend.TxID))
}

func TestGetRespectsLimitAndOrder(t *testing.T) {
	pool := New()
	var txids []string
	for i := 0; i < 5; i++ {
		tx := minitx.NewCoinbase("addr", uint64(i))
		pool.Add(tx)
		txids = append(txids, tx.TxID)
	}

	got := pool.Get(3)
	assert.Len(t, got, 3)
	for i, tx := range got {
		assert.Equal(t, txids[i], tx.TxID)
	}

	assert.Len(t, pool.Get(0), 5)
}

func TestRemoveIsIdempotent(t *testing.T) {
	pool := New()
	tx := minitx.NewCoinbase("addr", 1)
	pool.Add(tx)

	pool.Remove(tx.TxID)
	assert.False(t, pool.Has(tx.TxID))
	assert.Equal(t, 0, pool.Len())

	pool.Remove(tx.TxID)
	assert.Equal(t, 0, pool.Len())
}
