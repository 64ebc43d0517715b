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
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubefs/tabletserver/util"
)

type testEg struct {
	engine Store
	path   string
}

func newEngine(ctx context.Context, opt *Option) (*testEg, error) {
	path, err := util.GenTmpPath()
	if err != nil {
		return nil, err
	}
	if opt == nil {
		opt = new(Option)
	}
	opt.CreateIfMissing = true
	opt.Sync = true
	engine, err := newRocksdb(ctx, path, opt)
	if err != nil {
		return nil, err
	}
	return &testEg{engine: engine, path: path}, nil
}

func (eg *testEg) close() {
	eg.engine.Close()
	os.RemoveAll(eg.path)
}

func Test_openRocksdb(t *testing.T) {
	ctx := context.TODO()
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	defer os.RemoveAll(path)

	opt := new(Option)
	opt.CreateIfMissing = true
	opt.BlockSize = 1 << 20
	opt.BlockCache = 1 << 20
	opt.ColumnFamily = []CF{"a", "b", "c"}
	eg, err := newRocksdb(ctx, path, opt)
	require.NoError(t, err)
	eg.Close()

	// open with empty path
	_, err = newRocksdb(ctx, "", opt)
	require.Equal(t, errors.New("path is empty"), err)

	// reopen db
	eg, err = newRocksdb(ctx, path, opt)
	require.NoError(t, err)
	eg.Close()

	// open without listing a column family the existing db already has
	opt.ColumnFamily = []CF{"a", "b"}
	_, err = newRocksdb(ctx, path, opt)
	require.Error(t, err)
}

func TestInstance_CreateColumn(t *testing.T) {
	ctx := context.TODO()
	eg, err := newEngine(ctx, nil)
	require.NoError(t, err)
	defer eg.close()

	require.False(t, eg.engine.CheckColumns("colA"))
	require.NoError(t, eg.engine.CreateColumn("colA"))
	require.True(t, eg.engine.CheckColumns("colA"))
	// creating an already-present column family is a no-op, not an error.
	require.NoError(t, eg.engine.CreateColumn("colA"))
}

func TestInstance_SetGet(t *testing.T) {
	ctx := context.TODO()
	eg, err := newEngine(ctx, nil)
	require.NoError(t, err)
	defer eg.close()

	k := []byte("key1")
	v := []byte("value1")
	require.NoError(t, eg.engine.SetRaw(ctx, defaultCF, k, v, nil))
	got, err := eg.engine.Get(ctx, defaultCF, k, nil)
	require.NoError(t, err)
	defer got.Close()
	require.Equal(t, v, got.Value())

	_, err = eg.engine.Get(ctx, defaultCF, []byte("missing"), nil)
	require.Equal(t, ErrNotFound, err)
}

func TestInstance_SetGetOnCreatedColumn(t *testing.T) {
	ctx := context.TODO()
	eg, err := newEngine(ctx, nil)
	require.NoError(t, err)
	defer eg.close()

	col1 := CF("c1")
	require.NoError(t, eg.engine.CreateColumn(col1))

	require.NoError(t, eg.engine.SetRaw(ctx, col1, []byte("k1"), []byte("v1"), nil))
	got, err := eg.engine.Get(ctx, col1, []byte("k1"), nil)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got.Value())
	got.Close()

	// the same key in a different column family is unaffected.
	_, err = eg.engine.Get(ctx, defaultCF, []byte("k1"), nil)
	require.Equal(t, ErrNotFound, err)
}

func TestInstance_NewReadOption(t *testing.T) {
	ctx := context.TODO()
	eg, err := newEngine(ctx, nil)
	require.NoError(t, err)
	defer eg.close()

	k := []byte("key1")
	v := []byte("value1")
	require.NoError(t, eg.engine.SetRaw(ctx, defaultCF, k, v, nil))

	ro := eg.engine.NewReadOption()
	defer ro.Close()
	got, err := eg.engine.Get(ctx, defaultCF, k, ro)
	require.NoError(t, err)
	require.Equal(t, v, got.Value())
}

func TestInstance_NewWriteOption(t *testing.T) {
	ctx := context.TODO()
	eg, err := newEngine(ctx, nil)
	require.NoError(t, err)
	defer eg.close()

	wo := eg.engine.NewWriteOption()
	wo.SetSync(false)
	defer wo.Close()

	k := []byte("key1")
	v := []byte("value1")
	require.NoError(t, eg.engine.SetRaw(ctx, defaultCF, k, v, wo))
	got, err := eg.engine.Get(ctx, defaultCF, k, nil)
	require.NoError(t, err)
	require.Equal(t, v, got.Value())
}

func TestInstance_Close(t *testing.T) {
	ctx := context.TODO()
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	defer os.RemoveAll(path)

	opt := &Option{CreateIfMissing: true}
	eg, err := newRocksdb(ctx, path, opt)
	require.NoError(t, err)
	require.NoError(t, eg.SetRaw(ctx, defaultCF, []byte("k"), []byte("v"), nil))
	eg.Close()
}
