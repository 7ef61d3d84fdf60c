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

package main

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/spf13/cobra"

	"github.com/hliangzhao/minichain/chain"
	"github.com/hliangzhao/minichain/config"
	"github.com/hliangzhao/minichain/cryptoutil"
	"github.com/hliangzhao/minichain/minitx"
	"github.com/hliangzhao/minichain/snapshot"
)

var walletDataDir string

// runWallet builds and executes the "wallet" subcommand tree. It is
// invoked directly from main rather than registered on a root cobra
// command, since minichaind's node-start flags are parsed with the
// stdlib flag package and the two styles don't share a flag set.
func runWallet(args []string) {
	root := &cobra.Command{
		Use:   "wallet",
		Short: "Generate keys, query balances, and build transactions against a local node's chain state",
	}
	root.PersistentFlags().StringVar(&walletDataDir, "data-dir", config.DataDir, "Data directory of the node to read chain state from")

	root.AddCommand(newAddressCmd())
	root.AddCommand(balanceCmd())
	root.AddCommand(sendCmd())
	root.AddCommand(chainInfoCmd())

	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newAddressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Generate a new address and private key",
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, pub, err := cryptoutil.GenerateKeypair()
			if err != nil {
				return err
			}
			fmt.Printf("New Address: %s\n", cryptoutil.Address(pub))
			fmt.Printf("Private Key: %x\n", priv.D.Bytes())
			fmt.Println("\nSave your private key. You need it to spend coins.")
			return nil
		},
	}
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance ADDRESS",
		Short: "Check the balance of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bc, err := openChain()
			if err != nil {
				return err
			}
			fmt.Printf("Address: %s\n", args[0])
			fmt.Printf("Balance: %d coins\n", bc.GetBalance(args[0]))
			return nil
		},
	}
}

func chainInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chain",
		Short: "Show chain length and the most recent blocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			bc, err := openChain()
			if err != nil {
				return err
			}
			blocks := bc.Blocks()
			fmt.Printf("Chain Length: %d blocks\n\n", len(blocks))
			start := 0
			if len(blocks) > 5 {
				start = len(blocks) - 5
			}
			for _, b := range blocks[start:] {
				fmt.Printf("  Block #%d: %.16s... (%d txs)\n", b.Index, b.Hash, len(b.Transactions))
			}
			return nil
		},
	}
}

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send PRIVATE_KEY TO_ADDRESS AMOUNT",
		Short: "Build and sign a transaction spending the sender's UTXOs and validate it locally (it is not submitted)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			privHex, toAddr, amountStr := args[0], args[1], args[2]
			var amount uint64
			if _, err := fmt.Sscanf(amountStr, "%d", &amount); err != nil {
				return fmt.Errorf("invalid amount %q: %w", amountStr, err)
			}

			priv, pub, err := recoverKeypair(privHex)
			if err != nil {
				return fmt.Errorf("invalid private key: %w", err)
			}
			fromAddr := cryptoutil.Address(pub)
			pubKeyHex := cryptoutil.PubKeyHex(pub)

			bc, err := openChain()
			if err != nil {
				return err
			}

			spendable := bc.SpendableOutputsFor(fromAddr)
			var inputSum uint64
			var inputs []minitx.TxInput
			for _, u := range spendable {
				preimage, err := minitx.SigningPreimage(u.Key.TxID)
				if err != nil {
					continue
				}
				sig, err := cryptoutil.Sign(priv, preimage)
				if err != nil {
					return fmt.Errorf("sign input %s: %w", u.Key, err)
				}
				inputs = append(inputs, minitx.TxInput{
					PrevTxID:    u.Key.TxID,
					OutputIndex: u.Key.OutputIndex,
					Signature:   sig,
					PubKey:      pubKeyHex,
				})
				inputSum += u.Value
				if inputSum >= amount {
					break
				}
			}
			if inputSum < amount {
				return fmt.Errorf("insufficient balance: have %d, need %d", inputSum, amount)
			}

			outputs := []minitx.TxOutput{{Value: amount, Address: toAddr}}
			if change := inputSum - amount; change > 0 {
				outputs = append(outputs, minitx.TxOutput{Value: change, Address: fromAddr})
			}

			tx := &minitx.Transaction{
				Inputs:    inputs,
				Outputs:   outputs,
				Timestamp: time.Now().Unix(),
			}
			tx.TxID = tx.ComputeTxID()

			if !bc.ValidateTransaction(tx) {
				return fmt.Errorf("constructed transaction fails local validation")
			}

			fmt.Println("Transaction built and validated locally.")
			fmt.Printf("TXID: %s\n", tx.TxID)
			fmt.Println("\nSubmit it to a running node's mempool to broadcast it.")
			return nil
		},
	}
}

// recoverKeypair rebuilds the full keypair from a hex-encoded scalar,
// mirroring the source's ecdsa.SigningKey.from_string + get_verifying_key.
func recoverKeypair(privHex string) (*ecdsa.PrivateKey, []byte, error) {
	raw, err := hex.DecodeString(privHex)
	if err != nil {
		return nil, nil, err
	}
	priv, pub := btcec.PrivKeyFromBytes(raw)
	ecdsaPriv := priv.ToECDSA()
	ecdsaPub := pub.ToECDSA()
	pubBytes := make([]byte, 64)
	xb, yb := ecdsaPub.X.Bytes(), ecdsaPub.Y.Bytes()
	copy(pubBytes[32-len(xb):32], xb)
	copy(pubBytes[64-len(yb):64], yb)
	return ecdsaPriv, pubBytes, nil
}

func openChain() (*chain.Blockchain, error) {
	store, err := snapshot.New(walletDataDir)
	if err != nil {
		return nil, err
	}
	loaded, found, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load chain state from %s: %w", walletDataDir, err)
	}
	if !found {
		return nil, fmt.Errorf("no chain state found under %s; is a node running there?", walletDataDir)
	}
	// A wallet-only query never persists state back out, so it runs
	// with snapshotting disabled (nil Snapshotter).
	return chain.New("", config.BlockReward, config.DifficultyPrefix, nil, loaded), nil
}
