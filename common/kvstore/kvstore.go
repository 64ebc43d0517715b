// Copyright 2023 The Cuber Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package kvstore is a column-family key/value store abstraction, trimmed
// to the surface store.KVStore actually exercises: creating and checking
// column families, and point Get/SetRaw against one. It backs the
// two-alternating-blocks master block scheme (spec.md GLOSSARY, "Master
// block") the way shardserver/store used the untrimmed version for shard
// metadata.
package kvstore

import (
	"context"
	"errors"
)

const (
	defaultCF = "default"

	RocksdbLsmKVType = LsmKVType("rocksdb")
)

var ErrNotFound = errors.New("key not found")

type (
	CF        string
	LsmKVType string

	// Store is a column-family-scoped key/value engine.
	Store interface {
		CreateColumn(col CF) error
		CheckColumns(col CF) bool
		Get(ctx context.Context, col CF, key []byte, readOpt ReadOption) (value ValueGetter, err error)
		SetRaw(ctx context.Context, col CF, key []byte, value []byte, writeOpt WriteOption) error
		NewReadOption() (readOption ReadOption)
		NewWriteOption() (writeOption WriteOption)
		Close()
	}
	ValueGetter interface {
		Value() []byte
		Close() error
	}
	ReadOption interface {
		Close()
	}
	WriteOption interface {
		SetSync(value bool)
		Close()
	}

	// Option configures a Store at open time. Only the knobs store.KVStore
	// exercises are exposed; the rocksdb-backed implementation still fills
	// in sane defaults for everything else it needs internally.
	Option struct {
		Sync            bool
		ColumnFamily    []CF `json:"column_family"`
		CreateIfMissing bool
		BlockSize       int
		BlockCache      uint64
		MaxOpenFiles    int
		WriteBufferSize int
	}
)

func NewKVStore(ctx context.Context, path string, lsmType LsmKVType, option *Option) (Store, error) {
	switch lsmType {
	case RocksdbLsmKVType:
		return newRocksdb(ctx, path, option)
	default:
		return nil, ErrNotFound
	}
}

func (cf CF) String() string {
	return string(cf)
}
