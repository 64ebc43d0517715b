package tablet

import "context"

// Metadata is the persisted description of one tablet: table identifier,
// key range, schema and quorum. The physical on-disk byte layout is a
// Non-goal (spec.md §1); this struct is the in-memory shape collaborators
// exchange.
type Metadata struct {
	TableID       string
	TabletID      string
	StartKey      []byte
	EndKey        []byte
	TableName     string
	Schema        []byte
	SchemaVersion uint32
	Quorum        Quorum
	MasterBlockA  string
	MasterBlockB  string
}

// FSManager is the collaborator named in spec.md §6, "Filesystem manager":
// enumerate the metadata directory, generate fresh block identifiers, and
// provide the server's own UUID. It does not compose master-block paths;
// MetadataStore addresses blocks by identifier alone.
type FSManager interface {
	ListMetadataDir(ctx context.Context) ([]string, error)
	GenerateBlockID() string
	ServerUUID() string
}

// MetadataStore is the collaborator named in spec.md §6, "Tablet metadata":
// CreateNew/Load/PersistMasterBlock/OpenMasterBlock, backed by the
// two-alternating-blocks scheme (spec.md GLOSSARY, "Master block").
type MetadataStore interface {
	// CreateNew persists a freshly constructed Metadata, choosing blockA as
	// the initially current block.
	CreateNew(ctx context.Context, meta Metadata) error
	// Load reads the metadata for tabletID from its on-disk master block.
	Load(ctx context.Context, tabletID string) (Metadata, error)
	// PersistMasterBlock atomically rewrites whichever of the two blocks
	// named in meta is not currently active, then flips the active pointer.
	PersistMasterBlock(ctx context.Context, meta Metadata) error
	// OpenMasterBlock resolves the currently active block for tabletID.
	OpenMasterBlock(ctx context.Context, tabletID string) (Metadata, error)
}

// Bootstrapper is the collaborator named in spec.md §6, "Tablet bootstrap":
// given metadata it opens the consensus log, replays entries into a fresh
// in-memory tablet, and reports the highest replayed operation identifiers.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, meta Metadata) (Tablet, ConsensusLog, BootstrapInfo, error)
}
