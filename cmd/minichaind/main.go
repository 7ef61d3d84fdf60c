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

// Command minichaind starts one node of the network: a ledger, a
// mempool, a peer listener, and a background PoW miner paying the
// given miner address, or a freshly generated one if none is given.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hliangzhao/minichain/config"
	"github.com/hliangzhao/minichain/cryptoutil"
	"github.com/hliangzhao/minichain/node"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "wallet" {
		runWallet(os.Args[2:])
		return
	}

	p2pPort := flag.Int("p2p-port", config.P2PPort, "P2P port")
	apiPort := flag.Int("api-port", config.APIPort, "API port")
	peersFlag := flag.String("peers", "", "Comma-separated list of peers (host:port)")
	minerAddr := flag.String("miner-address", "", "Miner address (optional, generates new if not provided)")
	dataDir := flag.String("data-dir", config.DataDir, "Directory holding the chain snapshot and peer book")
	flag.Parse()

	fmt.Printf("Starting minichain node on P2P:%d, API:%d\n", *p2pPort, *apiPort)

	cfg := config.Default()
	cfg.P2PPort = *p2pPort
	cfg.APIPort = *apiPort
	cfg.DataDir = *dataDir
	cfg.Peers = splitPeers(*peersFlag)

	if *minerAddr == "" {
		priv, pub, err := cryptoutil.GenerateKeypair()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to generate miner keypair: %v\n", err)
			os.Exit(1)
		}
		addr := cryptoutil.Address(pub)
		fmt.Printf("Generated new miner address: %s\n", addr)
		fmt.Printf("Private Key (SAVE THIS): %x\n", priv.D.Bytes())
		cfg.MinerAddress = addr
	} else {
		cfg.MinerAddress = *minerAddr
		fmt.Printf("Using miner address: %s\n", cfg.MinerAddress)
	}

	n, err := node.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start node: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := n.Run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run node: %v\n", err)
		os.Exit(1)
	}

	<-ctx.Done()
	fmt.Println("Shutting down...")
}

func splitPeers(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
