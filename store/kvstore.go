// Package store implements the MetadataStore collaborator spec.md §6
// names ("Tablet metadata"): CreateNew, Load, PersistMasterBlock,
// OpenMasterBlock, backed by common/kvstore's rocksdb-backed engine, the
// way shardserver/store/store.go wraps it for shard metadata.
//
// The on-disk byte layout is explicitly out of scope (spec.md §1
// Non-goals); this package's own encoding is a plain JSON envelope, not a
// reproduction of Kudu's protobuf-based TabletSuperBlockPB. What is in
// scope and implemented here is the *scheme*: an atomic rewrite of
// whichever of the two alternating blocks is not currently active
// (spec.md GLOSSARY, "Master block"; supplemented from
// original_source/.../tablet_metadata.cc CreateNew/PersistMasterBlock/OpenMasterBlock).
package store

import (
	"context"

	"github.com/cubefs/cubefs/blobstore/util/errors"

	"github.com/cubefs/tabletserver/common/kvstore"
)

// Config is the on-disk store's configuration, mirroring
// shardserver/store's own Config shape.
type Config struct {
	Path     string         `json:"path"`
	KVOption kvstore.Option `json:"kv_option"`
}

const (
	metadataCF   = kvstore.CF("tablet_metadata")
	masterBlockCF = kvstore.CF("master_block")
)

// KVStore wraps a common/kvstore.Store for tablet metadata persistence.
type KVStore struct {
	kv kvstore.Store
}

// NewKVStore opens (creating if absent) the rocksdb-backed store at
// cfg.Path, the way shardserver/store.NewStore does.
func NewKVStore(ctx context.Context, cfg *Config) (*KVStore, error) {
	opt := cfg.KVOption
	opt.CreateIfMissing = true
	kv, err := kvstore.NewKVStore(ctx, cfg.Path, kvstore.RocksdbLsmKVType, &opt)
	if err != nil {
		return nil, errors.Info(err, "open tablet metadata store", cfg.Path)
	}
	if !kv.CheckColumns(metadataCF) {
		if err := kv.CreateColumn(metadataCF); err != nil {
			return nil, errors.Info(err, "create metadata column family")
		}
	}
	if !kv.CheckColumns(masterBlockCF) {
		if err := kv.CreateColumn(masterBlockCF); err != nil {
			return nil, errors.Info(err, "create master block column family")
		}
	}
	return &KVStore{kv: kv}, nil
}

// Close releases the underlying rocksdb handles.
func (s *KVStore) Close() { s.kv.Close() }
