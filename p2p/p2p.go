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

// Package p2p gossips transactions and blocks between nodes over plain
// TCP connections, one newline-delimited JSON object per message
// (spec.md §4.6). Unlike the source's pseudo network there is no
// central node: every peer dials every other peer it knows about and
// the two sides are symmetric after the handshake.
package p2p

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hliangzhao/minichain/chain"
	"github.com/hliangzhao/minichain/mempool"
	"github.com/hliangzhao/minichain/minitx"
)

const peersBucket = "known_peers"

// maxLineSize bounds a single gossip message. bufio.Scanner's default
// buffer is 64 KiB; a chain-sync SEND_CHAIN of any real size needs more
// room, so readLoop grows it well past that.
const maxLineSize = 8 << 20

// peerConn is one active connection, guarded by its own mutex so the
// miner goroutine and the gossip-relay goroutine can both write to it
// without interleaving partial lines.
type peerConn struct {
	addr      string
	conn      net.Conn
	sessionID uuid.UUID
	writeMu   sync.Mutex
}

func (p *peerConn) send(v interface{}) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = p.conn.Write(line)
	return err
}

// Node is one participant in the gossip network. It satisfies
// miner.Broadcaster so the miner package never imports p2p directly.
type Node struct {
	selfAddr string
	bc       *chain.Blockchain
	pool     *mempool.Mempool
	book     *bolt.DB
	log      *logrus.Logger

	mu       sync.Mutex
	peers    map[string]*peerConn
	listener net.Listener
}

// NewNode opens the peer address book at <dataDir>/peers.db (repurposing
// the source's bolt dependency, which originally held per-block chain
// state) and returns a Node ready to Start.
func NewNode(selfAddr string, bc *chain.Blockchain, pool *mempool.Mempool, dataDir string) (*Node, error) {
	db, err := bolt.Open(dataDir+"/peers.db", 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open peer book: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(peersBucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("init peer book: %w", err)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	return &Node{
		selfAddr: selfAddr,
		bc:       bc,
		pool:     pool,
		book:     db,
		log:      log,
		peers:    make(map[string]*peerConn),
	}, nil
}

// Close releases the address book.
func (n *Node) Close() error {
	return n.book.Close()
}

// Start listens on listenAddr and dials every seed peer, requesting
// their chain so a freshly joined node catches up immediately.
func (n *Node) Start(ctx context.Context, listenAddr string, seedPeers []string) error {
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", listenAddr, err)
	}
	n.listener = listener
	n.log.WithField("addr", listenAddr).Info("p2p listening")

	go n.acceptLoop(ctx)

	for _, addr := range seedPeers {
		if addr == n.selfAddr {
			continue
		}
		if err := n.Dial(addr); err != nil {
			n.log.WithFields(logrus.Fields{"peer": addr, "err": err}).Warn("dial seed peer failed")
			continue
		}
	}

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()
	return nil
}

func (n *Node) acceptLoop(ctx context.Context) {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				n.log.WithField("err", err).Warn("accept failed")
				continue
			}
		}
		go n.handleConn(conn, "")
	}
}

// Dial opens an outbound connection to addr, registers it, persists it
// to the address book, and requests addr's chain.
func (n *Node) Dial(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	peer := n.register(addr, conn)
	n.rememberPeer(addr)
	go n.readLoop(peer)

	return peer.send(requestChainMessage{Type: msgRequestChain})
}

func (n *Node) register(addr string, conn net.Conn) *peerConn {
	n.mu.Lock()
	defer n.mu.Unlock()
	peer := &peerConn{addr: addr, conn: conn, sessionID: uuid.New()}
	n.peers[addr] = peer
	n.log.WithFields(logrus.Fields{"peer": addr, "session": peer.sessionID}).Info("peer connected")
	return peer
}

func (n *Node) unregister(peer *peerConn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.peers[peer.addr] == peer {
		delete(n.peers, peer.addr)
	}
	n.log.WithFields(logrus.Fields{"peer": peer.addr, "session": peer.sessionID}).Info("peer disconnected")
	_ = peer.conn.Close()
}

// handleConn wires an inbound connection: its remote address becomes
// the peer key since an inbound connection never learns the peer's
// listen address (no message type carries it). Using
// the raw RemoteAddr is enough for bookkeeping purposes here — gossip
// relay never needs to dial this key back.
func (n *Node) handleConn(conn net.Conn, knownAddr string) {
	addr := knownAddr
	if addr == "" {
		addr = conn.RemoteAddr().String()
	}
	peer := n.register(addr, conn)
	n.readLoop(peer)
}

// readLoop frames the connection as newline-delimited JSON. A line
// that fails to parse is dropped silently; the connection stays open
// since one malformed gossip message shouldn't cost a peer.
func (n *Node) readLoop(peer *peerConn) {
	defer n.unregister(peer)

	scanner := bufio.NewScanner(peer.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		n.dispatch(peer, line)
	}
}

func (n *Node) dispatch(peer *peerConn, line []byte) {
	var probe typeProbe
	if err := json.Unmarshal(line, &probe); err != nil {
		n.log.WithFields(logrus.Fields{"peer": peer.addr, "err": err}).Debug("dropped malformed message")
		return
	}

	switch probe.Type {
	case msgNewTx:
		n.handleNewTx(peer, line)
	case msgNewBlock:
		n.handleNewBlock(peer, line)
	case msgRequestChain:
		n.handleRequestChain(peer)
	case msgSendChain:
		n.handleSendChain(peer, line)
	default:
		n.log.WithFields(logrus.Fields{"peer": peer.addr, "type": probe.Type}).Debug("unknown message type")
	}
}

func (n *Node) handleNewTx(peer *peerConn, line []byte) {
	var msg newTxMessage
	if err := json.Unmarshal(line, &msg); err != nil || msg.Tx == nil {
		return
	}
	if n.pool.Has(msg.Tx.TxID) {
		return
	}
	if !n.pool.Add(msg.Tx) {
		return
	}
	n.log.WithFields(logrus.Fields{"peer": peer.addr, "txid": msg.Tx.TxID}).Info("received new tx")
	n.relayExcept(peer.addr, msg)
}

func (n *Node) handleNewBlock(peer *peerConn, line []byte) {
	var msg newBlockMessage
	if err := json.Unmarshal(line, &msg); err != nil || msg.Block == nil {
		return
	}
	if n.bc.AddBlock(msg.Block) {
		n.log.WithFields(logrus.Fields{"peer": peer.addr, "height": msg.Block.Index}).Info("committed gossiped block")
		for _, tx := range msg.Block.Transactions {
			n.pool.Remove(tx.TxID)
		}
		n.relayExcept(peer.addr, msg)
		return
	}
	// The block didn't extend our tip cleanly; it may belong to a
	// longer fork. Ask the sender for its whole chain so ReplaceChain
	// gets a chance to evaluate it.
	_ = peer.send(requestChainMessage{Type: msgRequestChain})
}

func (n *Node) handleRequestChain(peer *peerConn) {
	_ = peer.send(sendChainMessage{Type: msgSendChain, Chain: n.bc.Blocks()})
}

func (n *Node) handleSendChain(peer *peerConn, line []byte) {
	var msg sendChainMessage
	if err := json.Unmarshal(line, &msg); err != nil || len(msg.Chain) == 0 {
		return
	}
	if n.bc.ReplaceChain(msg.Chain) {
		n.log.WithFields(logrus.Fields{"peer": peer.addr, "height": n.bc.Height()}).Info("adopted longer chain")
	}
}

// relayExcept forwards msg to every connected peer other than from.
func (n *Node) relayExcept(from string, msg interface{}) {
	n.mu.Lock()
	targets := make([]*peerConn, 0, len(n.peers))
	for addr, peer := range n.peers {
		if addr != from {
			targets = append(targets, peer)
		}
	}
	n.mu.Unlock()

	for _, peer := range targets {
		_ = peer.send(msg)
	}
}

// BroadcastTx announces a locally submitted transaction to every peer.
func (n *Node) BroadcastTx(tx *minitx.Transaction) {
	n.relayExcept("", newTxMessage{Type: msgNewTx, Tx: tx})
}

// BroadcastBlock announces a freshly mined block to every peer,
// satisfying miner.Broadcaster.
func (n *Node) BroadcastBlock(b *chain.Block) {
	n.relayExcept("", newBlockMessage{Type: msgNewBlock, Block: b})
}

// Peers lists the addresses of currently connected peers.
func (n *Node) Peers() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.peers))
	for addr := range n.peers {
		out = append(out, addr)
	}
	return out
}

func (n *Node) rememberPeer(addr string) {
	err := n.book.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(peersBucket)).Put([]byte(addr), []byte{1})
	})
	if err != nil {
		n.log.WithField("err", err).Warn("failed to persist peer address")
	}
}

// KnownPeers returns every peer address ever persisted to the address
// book, including ones not currently connected.
func (n *Node) KnownPeers() []string {
	var out []string
	_ = n.book.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(peersBucket)).ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out
}
