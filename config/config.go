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

// Package config holds the boot-time constants shared by every node
// component: the reward paid to miners, the PoW difficulty prefix, and
// the default listen ports.
package config

const (
	// BlockReward is the number of units minted by the coinbase
	// transaction of each block.
	BlockReward uint64 = 50

	// DifficultyPrefix is the hex prefix a block hash must begin with
	// to be accepted.
	DifficultyPrefix = "0000"

	// P2PPort is the default TCP port the peer server listens on.
	P2PPort = 9000

	// APIPort is the default port the (out-of-scope) admin HTTP layer
	// binds to. Kept here so the CLI flag default matches the rest of
	// the node's port configuration.
	APIPort = 8000

	// DataDir is the default directory holding the chain snapshot.
	DataDir = "./data"

	// MempoolDrain is the maximum number of pending transactions the
	// miner pulls into a single candidate block.
	MempoolDrain = 10

	// MiningRetryDelayMS is the sleep between PoW rounds, taken after
	// every round whether or not it produced a block.
	MiningRetryDelayMS = 100
)

// Config bundles the values a running node needs at boot. P2PPort,
// APIPort and DataDir default to the constants of the same name above;
// Peers and MinerAddress default to empty. main wires CLI flags
// onto this struct the way lightChain's cli.go wires flag.NewFlagSet
// values onto CLI method arguments.
type Config struct {
	P2PPort      int
	APIPort      int
	Peers        []string
	MinerAddress string
	DataDir      string
}

// Default returns a Config populated with the package defaults.
func Default() Config {
	return Config{
		P2PPort: P2PPort,
		APIPort: APIPort,
		DataDir: DataDir,
	}
}
