package tablet

import (
	"fmt"
	"runtime"
)

// Config is the process-wide configuration named in spec.md §6, loaded the
// way cmd/cmd.go loads its Config (JSON file plus flag overrides).
type Config struct {
	// ServerID is this server's identifier, used to validate local (single
	// peer) quorums passed to CreateNewTablet.
	ServerID string `json:"server_id"`

	// NumTabletsToOpenSimultaneously sizes the bootstrap pool.
	NumTabletsToOpenSimultaneously int `json:"num_tablets_to_open_simultaneously"`
	// LeaderApplyPoolSize and ReplicaApplyPoolSize size the two "apply"
	// executors spec.md §5 "Scheduling model" names, handed to each peer's
	// consensus implementation at InitPeer time.
	LeaderApplyPoolSize  int `json:"leader_apply_pool_size"`
	ReplicaApplyPoolSize int `json:"replica_apply_pool_size"`
	// TabletStartWarnThresholdMs is the wall-time threshold past which a
	// slow OpenTablet job logs a warning.
	TabletStartWarnThresholdMs int64 `json:"tablet_start_warn_threshold_ms"`
	// TabletTransactionMemoryLimitMB is the per-tablet transaction admission
	// budget. -1 disables memory tracking entirely.
	TabletTransactionMemoryLimitMB int64 `json:"tablet_transaction_memory_limit_mb"`
	// RPCMaxMessageSizeBytes is used only to cross-validate against
	// TabletTransactionMemoryLimitMB.
	RPCMaxMessageSizeBytes int64 `json:"rpc_max_message_size"`
}

// DefaultConfig returns the defaults spec.md §6 names.
func DefaultConfig() Config {
	return Config{
		NumTabletsToOpenSimultaneously: 50,
		LeaderApplyPoolSize:            runtime.NumCPU(),
		ReplicaApplyPoolSize:           runtime.NumCPU(),
		TabletStartWarnThresholdMs:     500,
		TabletTransactionMemoryLimitMB: 64,
		RPCMaxMessageSizeBytes:         64 << 20,
	}
}

const bytesPerMB = 1 << 20

// Validate applies the cross-flag validator of spec.md §4.2: the per-tablet
// transaction memory limit must be at least the RPC maximum message size
// (rounded up to MB), or a single oversized request would be permanently
// unadmittable.
func (c Config) Validate() error {
	if c.ServerID == "" {
		return fmt.Errorf("tablet: config: server_id must not be empty")
	}
	if c.NumTabletsToOpenSimultaneously <= 0 {
		return fmt.Errorf("tablet: config: num_tablets_to_open_simultaneously must be positive")
	}
	if c.LeaderApplyPoolSize <= 0 {
		return fmt.Errorf("tablet: config: leader_apply_pool_size must be positive")
	}
	if c.ReplicaApplyPoolSize <= 0 {
		return fmt.Errorf("tablet: config: replica_apply_pool_size must be positive")
	}
	if c.TabletTransactionMemoryLimitMB == -1 {
		return nil
	}
	rpcLimitMB := (c.RPCMaxMessageSizeBytes + bytesPerMB - 1) / bytesPerMB
	if c.TabletTransactionMemoryLimitMB < rpcLimitMB {
		return fmt.Errorf("tablet: config: tablet_transaction_memory_limit_mb (%d) must be >= "+
			"rpc_max_message_size rounded up to MB (%d)", c.TabletTransactionMemoryLimitMB, rpcLimitMB)
	}
	return nil
}

// transactionMemoryLimitBytes converts the configured MB limit to the byte
// value txn.Tracker.StartMemoryTracking expects, preserving the -1
// "disabled" sentinel.
func (c Config) transactionMemoryLimitBytes() int64 {
	if c.TabletTransactionMemoryLimitMB == -1 {
		return -1
	}
	return c.TabletTransactionMemoryLimitMB * bytesPerMB
}
