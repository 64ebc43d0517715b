package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cubefs/cubefs/blobstore/util/errors"

	"github.com/cubefs/tabletserver/common/kvstore"
	"github.com/cubefs/tabletserver/tablet"
)

// masterPointer records which of a tablet's two metadata blocks is
// currently active, the persisted equivalent of Kudu's master block
// pointing at "block_a" or "block_b".
type masterPointer struct {
	ActiveBlock string `json:"active_block"`
}

// CreateNew persists meta for the first time, choosing MasterBlockA as the
// initially active block (spec.md §4.1 "CreateNewTablet").
func (s *KVStore) CreateNew(ctx context.Context, meta tablet.Metadata) error {
	if err := s.writeBlock(ctx, meta.MasterBlockA, meta); err != nil {
		return errors.Info(err, "write initial metadata block", meta.TabletID)
	}
	return s.setActiveBlock(ctx, meta.TabletID, meta.MasterBlockA)
}

// Load resolves the currently active block for tabletID and reads it,
// composing OpenMasterBlock with a metadata read (spec.md §4.1
// "Initialization").
func (s *KVStore) Load(ctx context.Context, tabletID string) (tablet.Metadata, error) {
	return s.OpenMasterBlock(ctx, tabletID)
}

// PersistMasterBlock atomically rewrites whichever of meta's two blocks is
// not currently active, then flips the pointer to it — never touching the
// block a concurrent reader might still be loading (spec.md GLOSSARY,
// "Master block").
func (s *KVStore) PersistMasterBlock(ctx context.Context, meta tablet.Metadata) error {
	active, err := s.getActiveBlock(ctx, meta.TabletID)
	if err != nil {
		return errors.Info(err, "resolve active block", meta.TabletID)
	}

	next := meta.MasterBlockB
	if active == meta.MasterBlockB {
		next = meta.MasterBlockA
	}

	if err := s.writeBlock(ctx, next, meta); err != nil {
		return errors.Info(err, "write metadata block", meta.TabletID)
	}
	return s.setActiveBlock(ctx, meta.TabletID, next)
}

// OpenMasterBlock resolves and reads the currently active block for
// tabletID.
func (s *KVStore) OpenMasterBlock(ctx context.Context, tabletID string) (tablet.Metadata, error) {
	active, err := s.getActiveBlock(ctx, tabletID)
	if err != nil {
		return tablet.Metadata{}, errors.Info(err, "resolve active block", tabletID)
	}
	return s.readBlock(ctx, active)
}

func (s *KVStore) writeBlock(ctx context.Context, blockID string, meta tablet.Metadata) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	opt := s.kv.NewWriteOption()
	defer opt.Close()
	return s.kv.SetRaw(ctx, metadataCF, []byte(blockID), payload, opt)
}

func (s *KVStore) readBlock(ctx context.Context, blockID string) (tablet.Metadata, error) {
	opt := s.kv.NewReadOption()
	defer opt.Close()
	v, err := s.kv.Get(ctx, metadataCF, []byte(blockID), opt)
	if err != nil {
		return tablet.Metadata{}, err
	}
	defer v.Close()

	var meta tablet.Metadata
	if err := json.Unmarshal(v.Value(), &meta); err != nil {
		return tablet.Metadata{}, err
	}
	return meta, nil
}

func (s *KVStore) setActiveBlock(ctx context.Context, tabletID, blockID string) error {
	payload, err := json.Marshal(masterPointer{ActiveBlock: blockID})
	if err != nil {
		return err
	}
	opt := s.kv.NewWriteOption()
	defer opt.Close()
	return s.kv.SetRaw(ctx, masterBlockCF, []byte(tabletID), payload, opt)
}

func (s *KVStore) getActiveBlock(ctx context.Context, tabletID string) (string, error) {
	opt := s.kv.NewReadOption()
	defer opt.Close()
	v, err := s.kv.Get(ctx, masterBlockCF, []byte(tabletID), opt)
	if err != nil {
		if err == kvstore.ErrNotFound {
			return "", fmt.Errorf("tablet: no master block recorded for %s", tabletID)
		}
		return "", err
	}
	defer v.Close()

	var ptr masterPointer
	if err := json.Unmarshal(v.Value(), &ptr); err != nil {
		return "", err
	}
	return ptr.ActiveBlock, nil
}
