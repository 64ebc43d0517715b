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

package kvstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	rdb "github.com/tecbot/gorocksdb"
)

type (
	rocksdb struct {
		path      string
		db        *rdb.DB
		opt       *rdb.Options
		readOpt   *rdb.ReadOptions
		writeOpt  *rdb.WriteOptions
		cfHandles map[CF]*rdb.ColumnFamilyHandle
		lock      sync.RWMutex
	}
	readOption struct {
		opt *rdb.ReadOptions
	}
	writeOption struct {
		opt *rdb.WriteOptions
	}
	valueGetter struct {
		value *rdb.Slice
	}
)

func newRocksdb(ctx context.Context, path string, option *Option) (Store, error) {
	if path == "" {
		return nil, errors.New("path is empty")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}

	dbOpt := genRocksdbOpts(option)

	cfNum := len(option.ColumnFamily) + 1
	cols := make([]CF, 0, cfNum)
	cols = append(cols, defaultCF)
	cols = append(cols, option.ColumnFamily...)

	cfNames := make([]string, 0, cfNum)
	cfOpts := make([]*rdb.Options, 0, cfNum)
	for i := 0; i < cfNum; i++ {
		cfNames = append(cfNames, cols[i].String())
		cfOpts = append(cfOpts, dbOpt)
	}

	db, cfhs, err := rdb.OpenDbColumnFamilies(dbOpt, path, cfNames, cfOpts)
	if err != nil {
		return nil, err
	}

	cfhMap := make(map[CF]*rdb.ColumnFamilyHandle)
	for i, h := range cfhs {
		cfhMap[cols[i]] = h
	}

	wo := rdb.NewDefaultWriteOptions()
	if option.Sync {
		wo.SetSync(option.Sync)
	}

	return &rocksdb{
		db:        db,
		path:      path,
		opt:       dbOpt,
		readOpt:   rdb.NewDefaultReadOptions(),
		writeOpt:  wo,
		cfHandles: cfhMap,
	}, nil
}

func (ro *readOption) Close() {
	ro.opt.Destroy()
}

func (wo *writeOption) SetSync(value bool) {
	wo.opt.SetSync(value)
}

func (wo *writeOption) Close() {
	wo.opt.Destroy()
}

func (vg *valueGetter) Value() []byte {
	return vg.value.Data()
}

func (vg *valueGetter) Close() error {
	vg.value.Free()
	return nil
}

func (s *rocksdb) NewReadOption() ReadOption {
	return &readOption{opt: rdb.NewDefaultReadOptions()}
}

func (s *rocksdb) NewWriteOption() WriteOption {
	return &writeOption{opt: rdb.NewDefaultWriteOptions()}
}

func (s *rocksdb) CreateColumn(col CF) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.cfHandles[col] != nil {
		return nil
	}
	h, err := s.db.CreateColumnFamily(s.opt, col.String())
	if err != nil {
		return err
	}
	s.cfHandles[col] = h
	return nil
}

func (s *rocksdb) Get(ctx context.Context, col CF, key []byte, readOpt ReadOption) (value ValueGetter, err error) {
	cf := s.getColumnFamily(col)
	ro := s.readOpt
	if readOpt != nil {
		ro = readOpt.(*readOption).opt
	}
	v, err := s.db.GetCF(ro, cf, key)
	if err != nil {
		return nil, err
	}
	if !v.Exists() {
		return nil, ErrNotFound
	}
	return &valueGetter{value: v}, nil
}

func (s *rocksdb) SetRaw(ctx context.Context, col CF, key []byte, value []byte, writeOpt WriteOption) error {
	wo := s.writeOpt
	cf := s.getColumnFamily(col)
	if writeOpt != nil {
		wo = writeOpt.(*writeOption).opt
	}
	return s.db.PutCF(wo, cf, key, value)
}

func (s *rocksdb) Close() {
	s.writeOpt.Destroy()
	s.readOpt.Destroy()
	s.opt.Destroy()
	for i := range s.cfHandles {
		s.cfHandles[i].Destroy()
	}
	s.db.Close()
}

func (s *rocksdb) getColumnFamily(col CF) *rdb.ColumnFamilyHandle {
	if col == "" {
		col = defaultCF
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	cf, ok := s.cfHandles[col]
	if !ok {
		panic(fmt.Sprintf("col:%s not exist", col.String()))
	}
	return cf
}

func (s *rocksdb) CheckColumns(col CF) bool {
	if col == "" {
		return true
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	_, ok := s.cfHandles[col]
	return ok
}

func genRocksdbOpts(opt *Option) *rdb.Options {
	opts := rdb.NewDefaultOptions()
	blockBaseOpt := rdb.NewDefaultBlockBasedTableOptions()
	opts.SetCreateIfMissing(opt.CreateIfMissing)
	if opt.BlockSize > 0 {
		blockBaseOpt.SetBlockSize(opt.BlockSize)
	}
	if opt.BlockCache > 0 {
		blockBaseOpt.SetBlockCache(rdb.NewLRUCache(opt.BlockCache))
	}
	if opt.MaxOpenFiles > 0 {
		opts.SetMaxOpenFiles(opt.MaxOpenFiles)
	}
	if opt.WriteBufferSize > 0 {
		opts.SetWriteBufferSize(opt.WriteBufferSize)
	}

	opts.SetStatsDumpPeriodSec(0)
	opts.SetStatsPersistPeriodSec(0)
	opts.SetBlockBasedTableFactory(blockBaseOpt)
	opts.SetCreateIfMissingColumnFamilies(true)

	return opts
}
