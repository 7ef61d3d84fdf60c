package minitx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoinbaseTxIDIsFixedPoint(t *testing.T) {
	tx := NewCoinbase("miner-address", 50)
	assert.True(t, tx.IsValidTxID())
	assert.Equal(t, tx.TxID, tx.ComputeTxID())
}

func TestCanonicalBodyKeyOrderIsStable(t *testing.T) {
	tx := &Transaction{
		Inputs: []TxInput{
			{PrevTxID: "ab", OutputIndex: 1, Signature: "sig", PubKey: "pub"},
		},
		Outputs: []TxOutput{
			{Value: 10, Address: "addr"},
		},
		Timestamp:  1234,
		IsCoinbase: false,
	}
	body := string(tx.CanonicalBody())
	expected := `{"inputs":[{"output_index":1,"prev_txid":"ab","pubkey":"pub","signature":"sig"}],"is_coinbase":false,"outputs":[{"address":"addr","value":10}],"timestamp":1234}`
	assert.Equal(t, expected, body)
}

func TestTxIDChangesWithContent(t *testing.T) {
	tx := NewCoinbase("addr-a", 50)
	tampered := *tx
	tampered.Outputs = []TxOutput{{Value: 999, Address: "addr-a"}}
	assert.NotEqual(t, tx.ComputeTxID(), tampered.ComputeTxID())
}

func TestSigningPreimageIsHexDecodedPrevTxID(t *testing.T) {
	preimage, err := SigningPreimage("ab12")
	assert.NoError(t, err)
	assert.Equal(t, []byte{0xab, 0x12}, preimage)

	_, err = SigningPreimage("not-hex")
	assert.Error(t, err)
}
