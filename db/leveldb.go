package db

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

const leveldbSizeKey = "ledger-size"

func dup(in []byte) []byte {
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

// ldbConn is a wrapper around a base LevelDB database that handles batching
// writes between commits transparently.
type ldbConn struct {
	conn  *leveldb.DB
	batch map[string][]byte
}

func newLDBConn(conn *leveldb.DB) *ldbConn {
	return &ldbConn{conn, make(map[string][]byte)}
}

func (c *ldbConn) Get(key string) ([]byte, error) {
	if value, ok := c.batch[key]; ok {
		return dup(value), nil
	}
	return c.conn.Get([]byte(key), nil)
}

func (c *ldbConn) Put(key string, value []byte) {
	c.batch[key] = dup(value)
}

func (c *ldbConn) Commit() error {
	b := new(leveldb.Batch)
	for key, value := range c.batch {
		if key == leveldbSizeKey {
			continue
		}
		b.Put([]byte(key), value)
	}
	if err := c.conn.Write(b, nil); err != nil {
		return err
	}
	if value, ok := c.batch[leveldbSizeKey]; ok {
		if err := c.conn.Put([]byte(leveldbSizeKey), value, nil); err != nil {
			return err
		}
	}

	c.batch = make(map[string][]byte)
	return nil
}

// ldbLedgerStore implements the LedgerStore interface over a LevelDB database.
type ldbLedgerStore struct {
	conn *ldbConn
}

// NewLDBLedgerStore opens the LevelDB database at the given path, recovering
// it first if it is corrupted. An empty path opens a database held in memory.
func NewLDBLedgerStore(file string) (LedgerStore, error) {
	var (
		conn *leveldb.DB
		err  error
	)
	if file == "" {
		conn, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		conn, err = leveldb.OpenFile(file, nil)
		if lerrors.IsCorrupted(err) {
			conn, err = leveldb.RecoverFile(file, nil)
		}
	}
	if err != nil {
		return nil, err
	}
	return &ldbLedgerStore{newLDBConn(conn)}, nil
}

func (ldb *ldbLedgerStore) Size() (uint64, error) {
	raw, err := ldb.conn.Get(leveldbSizeKey)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	} else if err != nil {
		return 0, err
	} else if len(raw) != 8 {
		return 0, fmt.Errorf("stored ledger size is malformed")
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (ldb *ldbLedgerStore) SetSize(n uint64) error {
	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, n)
	ldb.conn.Put(leveldbSizeKey, raw)
	return nil
}

func (ldb *ldbLedgerStore) BatchGet(keys []uint64) (map[uint64][]byte, error) {
	out := make(map[uint64][]byte)

	for _, key := range keys {
		value, err := ldb.conn.Get("l" + fmt.Sprint(key))
		if errors.Is(err, leveldb.ErrNotFound) {
			continue
		} else if err != nil {
			return nil, err
		}
		out[key] = value
	}

	return out, nil
}

func (ldb *ldbLedgerStore) BatchPut(data map[uint64][]byte) error {
	for key, value := range data {
		ldb.conn.Put("l"+fmt.Sprint(key), value)
	}
	return nil
}

func (ldb *ldbLedgerStore) Commit() error {
	return ldb.conn.Commit()
}

func (ldb *ldbLedgerStore) Close() error {
	return ldb.conn.conn.Close()
}
