// Copyright 2023 The CubeFS Authors.
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

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/config"
	"github.com/cubefs/cubefs/blobstore/common/profile"
	"github.com/cubefs/cubefs/blobstore/common/rpc"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/cubefs/cubefs/blobstore/util/log"
	"github.com/google/uuid"

	"github.com/cubefs/tabletserver/consensus"
	"github.com/cubefs/tabletserver/metrics"
	"github.com/cubefs/tabletserver/report"
	"github.com/cubefs/tabletserver/store"
	"github.com/cubefs/tabletserver/tablet"
)

// Config is the process-wide configuration loaded from a JSON file, the
// way the teacher's cmd/cmd.go loads its own Config via blobstore's
// config package.
type Config struct {
	tablet.Config

	StoreConfig      store.Config `json:"store_config"`
	MetadataDir      string       `json:"metadata_dir"`
	ControlPlaneAddr string       `json:"control_plane_addr"`
	ReportIntervalMs int64        `json:"report_interval_ms"`

	HTTPBindPort  uint32    `json:"http_bind_port"`
	MaxProcessors int       `json:"max_processors"`
	LogLevel      log.Level `json:"log_level"`
}

// dirFSManager is a minimal FSManager over a single metadata directory: it
// lists tablet identifiers as the directory's file names and generates,
// with google/uuid, the fresh block identifiers CreateNewTablet
// (tablet/manager.go) requests for its two master blocks.
type dirFSManager struct {
	dir      string
	serverID string
}

func (d dirFSManager) ListMetadataDir(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// GenerateBlockID mints a fresh, unique master-block identifier on every
// call, the way CreateNewTablet's two master-block identifiers (spec.md
// §6, "Filesystem manager") are required to be distinct.
func (d dirFSManager) GenerateBlockID() string { return uuid.NewString() }
func (d dirFSManager) ServerUUID() string      { return d.serverID }

// noopPeerHost satisfies tablet.PeerHost without a real replica engine —
// the actual peer runtime (clock, messenger, maintenance scheduler) is out
// of scope (spec.md §1 Non-goals: "row-level mutation execution").
type noopPeerHost struct{}

func (noopPeerHost) InitPeer(ctx context.Context, t tablet.Tablet, log tablet.ConsensusLog, leaderApply, replicaApply tablet.ApplyExecutor) error {
	return nil
}
func (noopPeerHost) StartPeer(ctx context.Context, t tablet.Tablet, info tablet.BootstrapInfo) error {
	return nil
}
func (noopPeerHost) RegisterMaintenanceOps(t tablet.Tablet) {}

func main() {
	config.Init("f", "", "tablet-server.json")

	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		log.Fatal(errors.Detail(err))
	}
	applyDefaults(cfg)
	log.SetOutputLevel(cfg.LogLevel)

	if cfg.MaxProcessors > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcessors)
	}

	metaStore, err := store.NewKVStore(context.Background(), &cfg.StoreConfig)
	if err != nil {
		log.Fatalf("open metadata store: %s", err)
	}
	defer metaStore.Close()

	manager, err := tablet.NewManager(
		cfg.Config,
		dirFSManager{dir: cfg.MetadataDir, serverID: cfg.ServerID},
		metaStore,
		consensus.NewBootstrapper(),
		noopPeerHost{},
	)
	if err != nil {
		log.Fatalf("construct tablet manager: %s", err)
	}

	if err := manager.Init(context.Background()); err != nil {
		log.Errorf("tablet manager init reported errors: %s", err)
	}
	if err := manager.WaitForAllBootstrapsToFinish(); err != nil {
		log.Errorf("bootstrap reported a failed tablet: %s", err)
	}

	registerLogLevel()
	addr := fmtAddr(cfg.HTTPBindPort)
	httpServer := &http.Server{Addr: addr, Handler: profile.NewProfileHandler(addr)}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("http server stopped: %s", err)
		}
	}()

	stopReporting := make(chan struct{})
	go reportLoop(manager, cfg, stopReporting)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	<-ch

	close(stopReporting)
	manager.Shutdown(context.Background())
	_ = httpServer.Close()
}

// reportLoop periodically generates an incremental report and pushes it
// through the ReportSink collaborator, acknowledging on success — the
// control-plane-facing half of spec.md §4.1 "Reporting" this process
// entrypoint drives on a timer.
func reportLoop(manager *tablet.Manager, cfg *Config, stop <-chan struct{}) {
	if cfg.ControlPlaneAddr == "" {
		return
	}
	sink, err := report.DialGRPCSink(cfg.ControlPlaneAddr)
	if err != nil {
		log.Errorf("dial control plane at %s: %s", cfg.ControlPlaneAddr, err)
		return
	}
	defer sink.Close()

	ticker := time.NewTicker(time.Duration(cfg.ReportIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			metrics.SetTabletsByState(manager.StateCounts())

			r := manager.GenerateIncrementalTabletReport()
			ack, err := sink.PushReport(context.Background(), r)
			if err != nil {
				log.Warnf("push tablet report seq=%d: %s", r.SequenceNumber, err)
				continue
			}
			if err := manager.MarkTabletReportAcknowledged(ack); err != nil {
				log.Warnf("acknowledge tablet report seq=%d: %s", ack, err)
			}
		}
	}
}

func registerLogLevel() {
	logLevelPath, logLevelHandler := log.ChangeDefaultLevelHandler()
	profile.HandleFunc(http.MethodPost, logLevelPath, func(c *rpc.Context) {
		logLevelHandler.ServeHTTP(c.Writer, c.Request)
	})
	profile.HandleFunc(http.MethodGet, logLevelPath, func(c *rpc.Context) {
		logLevelHandler.ServeHTTP(c.Writer, c.Request)
	})
}

func applyDefaults(cfg *Config) {
	if cfg.MetadataDir == "" {
		cfg.MetadataDir = "./run/tablet-meta"
	}
	if cfg.StoreConfig.Path == "" {
		cfg.StoreConfig.Path = "./run/store"
	}
	if cfg.ReportIntervalMs == 0 {
		cfg.ReportIntervalMs = 1000
	}
	if cfg.NumTabletsToOpenSimultaneously == 0 {
		cfg.NumTabletsToOpenSimultaneously = 50
	}
	if cfg.TabletStartWarnThresholdMs == 0 {
		cfg.TabletStartWarnThresholdMs = 500
	}
	if cfg.TabletTransactionMemoryLimitMB == 0 {
		cfg.TabletTransactionMemoryLimitMB = 64
	}
	if err := cfg.Config.Validate(); err != nil {
		log.Fatalf("invalid configuration: %s", err)
	}
}

func fmtAddr(port uint32) string {
	return ":" + strconv.Itoa(int(port))
}
