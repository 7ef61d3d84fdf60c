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

package p2p

import (
	"github.com/hliangzhao/minichain/chain"
	"github.com/hliangzhao/minichain/minitx"
)

// Message types carried by the "type" field of every newline-delimited
// JSON object on the wire (spec.md §4.6).
const (
	msgNewTx        = "NEW_TX"
	msgNewBlock     = "NEW_BLOCK"
	msgRequestChain = "REQUEST_CHAIN"
	msgSendChain    = "SEND_CHAIN"
)

// typeProbe extracts just the "type" field so the dispatcher can decide
// which concrete message shape to unmarshal into.
type typeProbe struct {
	Type string `json:"type"`
}

type newTxMessage struct {
	Type string              `json:"type"`
	Tx   *minitx.Transaction `json:"tx"`
}

type newBlockMessage struct {
	Type  string       `json:"type"`
	Block *chain.Block `json:"block"`
}

type requestChainMessage struct {
	Type string `json:"type"`
}

type sendChainMessage struct {
	Type  string         `json:"type"`
	Chain []*chain.Block `json:"chain"`
}
