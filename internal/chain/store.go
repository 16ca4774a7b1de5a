// Package chain persists committed ledger transactions as a hash-linked
// sequence of blocks in a badger database.  Block N holds the transaction
// with sequence N; the store is the ledger's durable journal.
package chain

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger"

	"github.com/iliyamo/ticket-ledger/internal/model"
)

// ErrCorrupt reports a broken link, a bad hash or a missing block.
var ErrCorrupt = errors.New("chain: corrupt block store")

var (
	lastHashKey   = []byte("lh")
	lastHeightKey = []byte("lht")
	blockPrefix   = []byte("b/")
)

func blockKey(height uint64) []byte {
	k := make([]byte, len(blockPrefix)+8)
	copy(k, blockPrefix)
	binary.BigEndian.PutUint64(k[len(blockPrefix):], height)
	return k
}

// Store is a badger-backed block chain.  Appends are serialized.
type Store struct {
	mu       sync.Mutex
	db       *badger.DB
	lastHash []byte
	height   uint64
	logger   *slog.Logger
}

// Open opens (or creates) the block store in dir.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = badgerLogger{logger.With("component", "badger")}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("chain: open %s: %w", dir, err)
	}
	s := &Store{db: db, logger: logger}
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(lastHashKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if s.lastHash, err = item.ValueCopy(nil); err != nil {
			return err
		}
		item, err = txn.Get(lastHeightKey)
		if err != nil {
			return fmt.Errorf("%w: last hash without height: %v", ErrCorrupt, err)
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if len(raw) != 8 {
			return fmt.Errorf("%w: height record is %d bytes", ErrCorrupt, len(raw))
		}
		s.height = binary.BigEndian.Uint64(raw)
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("block store opened", "dir", dir, "height", s.height)
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Height is the number of blocks stored.
func (s *Store) Height() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.height
}

// LastHash is the hash of the newest block, nil for an empty chain.
func (s *Store) LastHash() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.lastHash...)
}

// Append stores tx as the next block.  tx.Seq must equal the new height.
func (s *Store) Append(ctx context.Context, tx model.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	height := s.height + 1
	if tx.Seq != height {
		return fmt.Errorf("chain: transaction seq %d does not follow height %d", tx.Seq, s.height)
	}
	block, err := NewBlock(height, s.lastHash, tx)
	if err != nil {
		return err
	}
	enc, err := block.Serialize()
	if err != nil {
		return fmt.Errorf("chain: encode block: %w", err)
	}
	var hb [8]byte
	binary.BigEndian.PutUint64(hb[:], height)

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(blockKey(height), enc); err != nil {
			return err
		}
		if err := txn.Set(lastHashKey, block.Hash); err != nil {
			return err
		}
		return txn.Set(lastHeightKey, hb[:])
	})
	if err != nil {
		return fmt.Errorf("chain: write block %d: %w", height, err)
	}
	s.lastHash = block.Hash
	s.height = height
	return nil
}

// Block loads the block at height.
func (s *Store) Block(height uint64) (*Block, error) {
	var block *Block
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		block, err = readBlock(txn, height)
		return err
	})
	return block, err
}

func readBlock(txn *badger.Txn, height uint64) (*Block, error) {
	item, err := txn.Get(blockKey(height))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: block %d missing", ErrCorrupt, height)
	}
	if err != nil {
		return nil, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return Deserialize(raw)
}

// Replay walks the chain from the first block, checking each link and hash,
// and hands every transaction to fn.
func (s *Store) Replay(ctx context.Context, fn func(model.Transaction) error) error {
	s.mu.Lock()
	height, last := s.height, s.lastHash
	s.mu.Unlock()

	return s.db.View(func(txn *badger.Txn) error {
		var prev []byte
		for h := uint64(1); h <= height; h++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			block, err := readBlock(txn, h)
			if err != nil {
				return err
			}
			if block.Height != h {
				return fmt.Errorf("%w: block %d claims height %d", ErrCorrupt, h, block.Height)
			}
			if !bytes.Equal(block.PrevHash, prev) {
				return fmt.Errorf("%w: block %d does not link to its parent", ErrCorrupt, h)
			}
			if !block.Validate() {
				return fmt.Errorf("%w: block %d hash mismatch", ErrCorrupt, h)
			}
			if block.Tx.Seq != h {
				return fmt.Errorf("%w: block %d carries seq %d", ErrCorrupt, h, block.Tx.Seq)
			}
			if err := fn(block.Tx); err != nil {
				return err
			}
			prev = block.Hash
		}
		if !bytes.Equal(prev, last) {
			return fmt.Errorf("%w: tip does not match last hash", ErrCorrupt)
		}
		return nil
	})
}

// Verify checks the whole chain and returns its height.
func (s *Store) Verify(ctx context.Context) (uint64, error) {
	var n uint64
	err := s.Replay(ctx, func(model.Transaction) error {
		n++
		return nil
	})
	return n, err
}

// badgerLogger routes badger's printf-style logging into slog.
type badgerLogger struct{ l *slog.Logger }

func (b badgerLogger) Errorf(f string, v ...interface{})   { b.l.Error(fmt.Sprintf(f, v...)) }
func (b badgerLogger) Warningf(f string, v ...interface{}) { b.l.Warn(fmt.Sprintf(f, v...)) }
func (b badgerLogger) Infof(f string, v ...interface{})    { b.l.Debug(fmt.Sprintf(f, v...)) }
func (b badgerLogger) Debugf(f string, v ...interface{})   { b.l.Debug(fmt.Sprintf(f, v...)) }
