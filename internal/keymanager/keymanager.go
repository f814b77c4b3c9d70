// Package keymanager owns per-group API key selection, availability, rpm
// limiting, and the proxy-key validation cache. It is the gateway's only
// writer of KeyValidation and KeyUsageStats rows.
package keymanager

import (
	"runtime"
	"sync"
	"time"

	apperrors "orchestrationapi/internal/errors"
	"orchestrationapi/internal/models"
	"orchestrationapi/internal/store"
	"orchestrationapi/internal/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// reportTask is an async error/usage update, processed off the request path
// so a slow DB write never adds latency to the client response.
type reportTask struct {
	groupID    string
	apiKeyHash string
	isSuccess  bool
	statusCode int
	errMsg     string
}

// KeyManager selects, reports on, and validates API keys for groups, and
// validates proxy keys presented by clients.
type KeyManager struct {
	db    *gorm.DB
	store store.Store

	cursorMu sync.Mutex // serializes the round-robin seed-then-Rotate sequence on the store list

	reportChan chan reportTask
	stopOnce   sync.Once
	stopChan   chan struct{}
	wg         sync.WaitGroup

	proxyKeyCache *proxyKeyCache
}

// NewKeyManager builds a KeyManager with a bounded async worker pool for
// error/usage reporting, sized the way the teacher's KeyProvider sizes its
// status-update workers.
func NewKeyManager(db *gorm.DB, st store.Store) *KeyManager {
	workerCount := runtime.NumCPU() * 2
	if workerCount < 4 {
		workerCount = 4
	}
	if workerCount > 16 {
		workerCount = 16
	}

	km := &KeyManager{
		db:            db,
		store:         st,
		reportChan:    make(chan reportTask, 1000),
		stopChan:      make(chan struct{}),
		proxyKeyCache: newProxyKeyCache(5 * time.Minute),
	}

	for i := 0; i < workerCount; i++ {
		km.wg.Add(1)
		go km.reportWorker()
	}

	return km
}

// Stop drains in-flight reports and shuts the worker pool down.
func (km *KeyManager) Stop() {
	km.stopOnce.Do(func() {
		close(km.stopChan)
		km.wg.Wait()
	})
}

func (km *KeyManager) reportWorker() {
	defer km.wg.Done()
	for {
		select {
		case task := <-km.reportChan:
			km.processReport(task)
		case <-km.stopChan:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case task := <-km.reportChan:
					km.processReport(task)
				default:
					return
				}
			}
		}
	}
}

func (km *KeyManager) submit(task reportTask) {
	select {
	case km.reportChan <- task:
	default:
		logrus.WithFields(logrus.Fields{
			"group_id": task.groupID,
		}).Warn("key manager report channel full, processing synchronously")
		km.processReport(task)
	}
}

// NextKey selects the next API key for the group according to its
// configured balance policy, skipping keys whose KeyValidation row marks
// them unavailable per IsAvailable. Returns apperrors.ErrNoAvailableKey
// (carrying the group id) when every key is currently unavailable.
func (km *KeyManager) NextKey(group *models.GroupConfig) (string, error) {
	if len(group.APIKeyList) == 0 {
		return "", apperrors.NewAPIError(apperrors.ErrNoAvailableKey, "no available key for group "+group.ID)
	}

	candidates := group.APIKeyList
	validations, err := km.loadValidations(group.ID, candidates)
	if err != nil {
		return "", err
	}

	available := make([]string, 0, len(candidates))
	for _, key := range candidates {
		hash := utils.HashAPIKey(key)
		if isAvailable(validations[hash]) {
			available = append(available, key)
		}
	}
	if len(available) == 0 {
		return "", apperrors.NewAPIError(apperrors.ErrNoAvailableKey, "no available key for group "+group.ID)
	}

	key, err := km.selectByPolicy(group, available)
	if err != nil {
		return "", err
	}

	// least_used needs select-then-increment in the same call to keep its own
	// next pick consistent; round_robin/random don't read usage_count at
	// selection time, so their counter is left solely to the dispatcher's
	// post-success UpdateUsage call (see internal/dispatcher) — incrementing
	// here too would double-count every successful request.
	if group.BalancePolicy.Normalize() == models.BalanceLeastUsed {
		km.UpdateUsage(group.ID, key)
	}
	return key, nil
}

// validationChunkSize caps how many hashes go into a single IN clause. A
// group's key pool can run into the thousands; most SQL dialects (and
// sqlite's default SQLITE_MAX_VARIABLE_NUMBER) start rejecting or slowing
// down well before that, so the lookup is batched instead of issued as one
// giant query.
const validationChunkSize = 500

func (km *KeyManager) loadValidations(groupID string, keys []string) (map[string]*models.KeyValidation, error) {
	hashes := make([]string, len(keys))
	for i, k := range keys {
		hashes[i] = utils.HashAPIKey(k)
	}

	byHash := make(map[string]*models.KeyValidation, len(hashes))
	err := utils.ProcessInChunks(hashes, validationChunkSize, func(chunk []string) error {
		var rows []models.KeyValidation
		if err := km.db.Where("group_id = ? AND api_key_hash IN ?", groupID, chunk).Find(&rows).Error; err != nil {
			return err
		}
		for i := range rows {
			byHash[rows[i].APIKeyHash] = &rows[i]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return byHash, nil
}
