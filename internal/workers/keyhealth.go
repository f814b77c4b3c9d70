// Package workers implements the gateway's three background loops (spec.md
// §4.6, §4.7): key health reconciliation, the periodic tiered health check
// (healthcheck.go) and request-log/health-result retention.
//
// Grounded on internal/keypool/cron_checker.go's CronChecker for the
// periodic-ticker + stoppable-goroutine shape, and on
// internal/services/log_cleanup_service.go's LogCleanupService for the
// retention loop specifically.
package workers

import (
	"context"
	"sync"
	"time"

	"orchestrationapi/internal/keymanager"
	"orchestrationapi/internal/models"
	"orchestrationapi/internal/persistence"
	"orchestrationapi/internal/provider"
	"orchestrationapi/internal/utils"

	"github.com/sirupsen/logrus"
)

const interKeyDelay = 500 * time.Millisecond

// KeyHealthWorker periodically reconciles KeyValidation rows with upstream
// reality: one group at a time, it drops validation rows for keys no
// longer present in the group's key list, then re-probes every key
// currently marked invalid.
type KeyHealthWorker struct {
	persist  persistence.Persistence
	keys     *keymanager.KeyManager
	interval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewKeyHealthWorker builds a worker. interval <= 0 disables the periodic
// tick (only Stop is then meaningful, mirroring an explicitly-disabled
// KeyHealthCheck.Enabled config).
func NewKeyHealthWorker(persist persistence.Persistence, keys *keymanager.KeyManager, interval time.Duration) *KeyHealthWorker {
	return &KeyHealthWorker{persist: persist, keys: keys, interval: interval, stopCh: make(chan struct{})}
}

// Run starts the periodic reconciliation loop. No-op if interval <= 0.
func (w *KeyHealthWorker) Run() {
	if w.interval <= 0 {
		return
	}
	w.wg.Add(1)
	go w.loop()
}

func (w *KeyHealthWorker) loop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.reconcileAll()
	for {
		select {
		case <-ticker.C:
			w.reconcileAll()
		case <-w.stopCh:
			return
		}
	}
}

// Stop signals the loop to exit and waits for it. A pass in progress ends
// after its current group, since reconcileAll checks stopCh between groups.
func (w *KeyHealthWorker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
}

func (w *KeyHealthWorker) reconcileAll() {
	groups, err := w.persist.ListEnabledGroups()
	if err != nil {
		logrus.WithError(err).Error("key health worker: failed to list enabled groups")
		return
	}
	for _, group := range groups {
		select {
		case <-w.stopCh:
			return
		default:
		}
		w.reconcileGroup(group)
	}
}

func (w *KeyHealthWorker) reconcileGroup(group *models.GroupConfig) {
	currentHashes := make([]string, 0, len(group.APIKeyList))
	hashToKey := make(map[string]string, len(group.APIKeyList))
	for _, key := range group.APIKeyList {
		hash := utils.HashAPIKey(key)
		currentHashes = append(currentHashes, hash)
		hashToKey[hash] = key
	}

	if _, err := w.persist.DeleteOrphanKeyValidations(group.ID, currentHashes); err != nil {
		logrus.WithError(err).WithField("group", group.ID).Warn("key health worker: failed to delete orphan validations")
	}

	validations, err := w.persist.ListKeyValidations(group.ID)
	if err != nil {
		logrus.WithError(err).WithField("group", group.ID).Warn("key health worker: failed to list validations")
		return
	}

	adapter, ok := provider.For(group.ProviderType)
	if !ok {
		return
	}
	cfg := provider.Config{BaseURL: group.BaseURL, ConnectTimeout: 10 * time.Second, UnaryResponseTimeout: 15 * time.Second}

	first := true
	for _, v := range validations {
		if v.IsValid {
			continue
		}
		rawKey, ok := hashToKey[v.APIKeyHash]
		if !ok {
			continue // already covered by the orphan delete above; defensive skip
		}

		if !first {
			time.Sleep(interKeyDelay)
		}
		first = false

		ctx, cancel := context.WithTimeout(context.Background(), cfg.UnaryResponseTimeout)
		_, probeErr := adapter.GetModels(ctx, rawKey, cfg)
		cancel()

		if probeErr != nil {
			w.keys.ReportError(group.ID, rawKey, 0, probeErr.Error())
			continue
		}
		w.keys.ResetErrors(group.ID, rawKey)
	}
}
