package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hliangzhao/minichain/config"
	"github.com/hliangzhao/minichain/minitx"
)

func newTestNode(t *testing.T, minerAddr string) *Node {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.MinerAddress = minerAddr

	n, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.P2P.Close() })
	return n
}

func TestNewWiresGenesisState(t *testing.T) {
	n := newTestNode(t, "alice")

	assert.Equal(t, config.BlockReward, n.Balance("alice"))

	meta := n.ChainInfo()
	assert.Equal(t, uint64(0), meta.Height)
	assert.Equal(t, 1, meta.NumBlocks)

	genesis, ok := n.BlockAt(0)
	require.True(t, ok)
	assert.Len(t, genesis.Transactions, 1)
	assert.Equal(t, meta.TipHash, genesis.Hash)
}

func TestNewWithoutMinerAddressStillProducesGenesis(t *testing.T) {
	n := newTestNode(t, "")
	assert.Nil(t, n.Miner)
	assert.Equal(t, 1, len(n.Chain.Blocks()))
}

func TestSubmitTransactionRejectsMismatchedTxID(t *testing.T) {
	n := newTestNode(t, "alice")

	tx := minitx.NewCoinbase("bob", 1)
	tx.TxID = "not-the-real-hash"

	assert.Error(t, n.SubmitTransaction(tx))
	assert.Empty(t, n.PendingTransactions())
}

func TestSubmitTransactionAdmitsAndRejectsResubmission(t *testing.T) {
	n := newTestNode(t, "alice")

	tx := minitx.NewCoinbase("bob", 1)
	require.NoError(t, n.SubmitTransaction(tx))
	assert.Len(t, n.PendingTransactions(), 1)

	// Resubmitting the same txid is rejected: the mempool already has it.
	assert.Error(t, n.SubmitTransaction(tx))
}

func TestTransactionLooksUpByID(t *testing.T) {
	n := newTestNode(t, "alice")

	genesis, _ := n.BlockAt(0)
	found, ok := n.Transaction(genesis.Transactions[0].TxID)
	require.True(t, ok)
	assert.Equal(t, genesis.Transactions[0].TxID, found.TxID)

	_, ok = n.Transaction("does-not-exist")
	assert.False(t, ok)
}

func TestIdentityReportsSelfAddrAndNoPeersBeforeStart(t *testing.T) {
	n := newTestNode(t, "alice")

	selfAddr, peers := n.Identity()
	assert.NotEmpty(t, selfAddr)
	assert.Empty(t, peers)
}
