package main

import (
	"time"

	"go.uber.org/zap"

	"github.com/noah-privacy/shielded-core/internal/cryptostate"
	"github.com/noah-privacy/shielded-core/internal/orchestrator"
	"github.com/noah-privacy/shielded-core/internal/store"
	"github.com/noah-privacy/shielded-core/pkg/logger"
)

const snapshotKey = "core/state_snapshot"

// runSnapshotLoop periodically encrypts a summary of the orchestrator's
// counters and writes it to backingStore, so a deployer running Redis
// gets a crash-recoverable hint of where the core was without the core
// itself taking a dependency on any particular backend.
func runSnapshotLoop(orch *orchestrator.Orchestrator, backingStore store.Store, interval time.Duration) {
	contractKey := cryptostate.DeriveContractKey()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var version uint32
	for range ticker.C {
		version++
		snapshot := cryptostate.State{
			ContractKey:     contractKey,
			StateVersion:    version,
			CommitmentCount: uint64(orch.NullifierSetSize()),
			LastUpdate:      uint64(time.Now().Unix()),
		}
		blob := cryptostate.Encrypt(snapshot, contractKey)
		if err := backingStore.Put(snapshotKey, blob); err != nil {
			logger.Warn("state snapshot write failed", zap.Error(err))
			continue
		}
		logger.Info("state snapshot written", zap.Uint32("version", version))
	}
}
