package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/pixperk/rowlock/pkg/table"
	"github.com/pixperk/rowlock/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	tablesBucket = []byte("_tables") // table ID -> TableInfo json
	namesBucket  = []byte("_names")  // table name -> table ID
)

// BoltTable is a persistent single-node lock table
// every table is one bucket of key -> VersionedRow json; a bolt write transaction
// serializes all writers, which makes each conditional put atomic
type BoltTable struct {
	db     *bolt.DB
	logger hclog.Logger
}

func OpenBoltTable(dataDir string, logger hclog.Logger) (*BoltTable, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dataDir, "tables.db"), 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open table db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(tablesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(namesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init table db: %w", err)
	}

	return &BoltTable{db: db, logger: logger.Named("bolttable")}, nil
}

func (b *BoltTable) Close() error {
	return b.db.Close()
}

func (b *BoltTable) CreateTable(_ context.Context, name, scope string) (types.TableInfo, error) {
	if name == "" {
		return types.TableInfo{}, fmt.Errorf("%w: table name required", types.ErrInvalidRequest)
	}
	info := types.TableInfo{ID: "tbl-" + uuid.NewString(), Name: name, Scope: scope}

	err := b.db.Update(func(tx *bolt.Tx) error {
		names := tx.Bucket(namesBucket)
		if names.Get([]byte(name)) != nil {
			return fmt.Errorf("%w: %s", types.ErrTableExists, name)
		}
		data, err := json.Marshal(info)
		if err != nil {
			return err
		}
		if err := tx.Bucket(tablesBucket).Put([]byte(info.ID), data); err != nil {
			return err
		}
		if err := names.Put([]byte(name), []byte(info.ID)); err != nil {
			return err
		}
		_, err = tx.CreateBucket([]byte(info.ID))
		return err
	})
	if err != nil {
		return types.TableInfo{}, err
	}

	b.logger.Debug("table created", "name", name, "id", info.ID)
	return info, nil
}

func (b *BoltTable) GetTable(_ context.Context, nameOrID string) (types.TableInfo, error) {
	var info types.TableInfo
	err := b.db.View(func(tx *bolt.Tx) error {
		var err error
		info, err = lookupTable(tx, nameOrID)
		return err
	})
	return info, err
}

// accepts a table ID or a table name
func lookupTable(tx *bolt.Tx, nameOrID string) (types.TableInfo, error) {
	var info types.TableInfo
	tables := tx.Bucket(tablesBucket)

	data := tables.Get([]byte(nameOrID))
	if data == nil {
		if id := tx.Bucket(namesBucket).Get([]byte(nameOrID)); id != nil {
			data = tables.Get(id)
		}
	}
	if data == nil {
		return info, fmt.Errorf("%w: %s", types.ErrTableNotFound, nameOrID)
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("decode table %s: %w", nameOrID, err)
	}
	return info, nil
}

func rowsBucket(tx *bolt.Tx, nameOrID string) (*bolt.Bucket, error) {
	info, err := lookupTable(tx, nameOrID)
	if err != nil {
		return nil, err
	}
	bucket := tx.Bucket([]byte(info.ID))
	if bucket == nil {
		return nil, fmt.Errorf("%w: bucket for %s missing", types.ErrTableNotFound, info.ID)
	}
	return bucket, nil
}

func decodeRow(data []byte) (types.VersionedRow, error) {
	var stored types.VersionedRow
	if err := json.Unmarshal(data, &stored); err != nil {
		return stored, fmt.Errorf("decode row: %w", err)
	}
	return stored, nil
}

func (b *BoltTable) GetRow(_ context.Context, tableID, key string) (*types.Row, string, error) {
	var (
		row     *types.Row
		version string
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket, err := rowsBucket(tx, tableID)
		if err != nil {
			return err
		}
		data := bucket.Get([]byte(key))
		if data == nil {
			return nil
		}
		stored, err := decodeRow(data)
		if err != nil {
			return err
		}
		row, version = &stored.Row, stored.Version
		return nil
	})
	return row, version, err
}

func (b *BoltTable) PutRow(_ context.Context, tableID string, req types.PutRequest) (types.PutResult, error) {
	if err := table.ValidatePut(req); err != nil {
		return types.PutResult{}, err
	}

	var res types.PutResult
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := rowsBucket(tx, tableID)
		if err != nil {
			return err
		}

		var current *types.VersionedRow
		if data := bucket.Get([]byte(req.Value.Key)); data != nil {
			stored, err := decodeRow(data)
			if err != nil {
				return err
			}
			current = &stored
		}

		next, r, written := table.ApplyPut(current, req, uuid.NewString())
		res = r
		if !written {
			return nil
		}
		data, err := json.Marshal(next)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(req.Value.Key), data)
	})
	return res, err
}

func (b *BoltTable) Scan(_ context.Context, tableID string, q types.ScanQuery) ([]string, error) {
	var keys []string
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket, err := rowsBucket(tx, tableID)
		if err != nil {
			return err
		}
		return bucket.ForEach(func(k, v []byte) error {
			if q.Key != "" && string(k) != q.Key {
				return nil
			}
			stored, err := decodeRow(v)
			if err != nil {
				return err
			}
			if q.Matches(stored.Row) {
				keys = append(keys, string(k))
			}
			return nil
		})
	})
	return keys, err
}

// number of rows across all tables
func (b *BoltTable) Rows() (int, error) {
	total := 0
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(tablesBucket).ForEach(func(id, _ []byte) error {
			bucket := tx.Bucket(id)
			if bucket == nil {
				return errors.New("table bucket missing: " + string(id))
			}
			total += bucket.Stats().KeyN
			return nil
		})
	})
	return total, err
}
