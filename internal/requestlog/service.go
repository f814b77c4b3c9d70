// Package requestlog implements the Request Logger (spec.md §4.5): a
// Start/End pair that records one RequestLog row per proxied request, with
// content truncation/masking and an optional bounded async queue in front
// of the database write.
//
// Grounded on internal/services/request_log_service.go's RequestLogService:
// the same Start-row-before-End-row ordering guarantee, the same
// memory-pressure backpressure idea (here expressed as a bounded Go channel
// and FullStrategy rather than the teacher's Redis pending-set), and the
// same batched-ticker drain shape. The worker-pool/buffered-channel
// plumbing itself follows internal/keypool/provider.go's statusUpdateChan
// pattern, since the teacher's own log service is queued through Redis
// rather than an in-process channel; this service keeps its queue
// in-process even when a Redis store is configured.
package requestlog

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"orchestrationapi/internal/config"
	"orchestrationapi/internal/dispatcher"
	"orchestrationapi/internal/models"
	"orchestrationapi/internal/persistence"
	"orchestrationapi/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	opInsert = iota
	opUpdate
)

type queueItem struct {
	op  int
	log *models.RequestLog
}

// Service implements dispatcher.Logger against the persistence port.
type Service struct {
	persist persistence.Persistence
	cfg     config.RequestLoggingConfig

	queue   chan queueItem
	stopCh  chan struct{}
	wg      sync.WaitGroup
	dropped int64

	pending   map[string]*models.RequestLog
	pendingMu sync.Mutex
}

// New builds a Service. If cfg.Queue.Enabled is false, Start/End write
// synchronously and no background goroutine is started.
func New(persist persistence.Persistence, cfg config.RequestLoggingConfig) *Service {
	capacity := cfg.Queue.MaxCapacity
	if capacity <= 0 {
		capacity = 10000
	}
	return &Service{
		persist: persist,
		cfg:     cfg,
		queue:   make(chan queueItem, capacity),
		stopCh:  make(chan struct{}),
		pending: make(map[string]*models.RequestLog),
	}
}

// Run launches the batched drain loop. No-op if queueing is disabled.
func (s *Service) Run() {
	if !s.cfg.Enabled || !s.cfg.Queue.Enabled {
		return
	}
	s.wg.Add(1)
	go s.drainLoop()
}

// Stop signals the drain loop to exit, waiting up to
// GracefulShutdownTimeoutMs for it to flush remaining items.
func (s *Service) Stop(ctx context.Context) {
	close(s.stopCh)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timeout := time.Duration(s.cfg.Queue.GracefulShutdownTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case <-done:
	case <-time.After(timeout):
		logrus.Warn("request log queue drain timed out during shutdown")
	case <-ctx.Done():
	}
}

// Start records a request's beginning and returns its RequestLog id, or ""
// if logging is disabled or the path is excluded. Satisfies
// dispatcher.Logger.
func (s *Service) Start(ctx context.Context, in dispatcher.StartInfo) string {
	if !s.cfg.Enabled {
		return ""
	}
	if s.cfg.ExcludeHealthChecks && isHealthCheckPath(in.Endpoint) {
		return ""
	}

	log := &models.RequestLog{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Method:    in.Method,
		Endpoint:  in.Endpoint,
		SourceIP:  in.SourceIP,
		UserAgent: in.UserAgent,
	}
	if in.ProxyKeyID != nil {
		log.ProxyKeyID = *in.ProxyKeyID
	}

	truncated := s.applyRequestBody(log, in.Body)
	log.ContentTruncated = truncated

	s.rememberPending(log)
	s.enqueueOrWrite(opInsert, log)
	return log.ID
}

// End finalizes a request's log row. requestID == "" (logging was disabled,
// or excluded) is a silent no-op. Satisfies dispatcher.Logger.
func (s *Service) End(ctx context.Context, requestID string, out dispatcher.EndInfo) {
	if requestID == "" || !s.cfg.Enabled {
		return
	}

	log := s.takePending(requestID)
	if log == nil {
		log = &models.RequestLog{ID: requestID, Timestamp: time.Now()}
	}

	log.StatusCode = out.StatusCode
	log.IsSuccess = out.StatusCode >= 200 && out.StatusCode < 300
	log.GroupID = out.GroupID
	log.ProviderType = out.ProviderType
	log.Model = out.Model
	log.IsStreaming = out.IsStreaming
	log.PromptTokens = out.PromptTokens
	log.CompletionTokens = out.CompletionTokens
	log.TotalTokens = out.TotalTokens
	log.Duration = time.Since(log.Timestamp).Milliseconds()
	if out.Err != nil {
		log.ErrorMessage = utils.SanitizeErrorBody(out.Err.Error())
	}
	if out.UpstreamKey != "" {
		log.KeyHash = utils.HashAPIKey(out.UpstreamKey)
		log.MaskedKey = utils.MaskAPIKey(out.UpstreamKey)
	}

	endTruncated := s.applyResponseBody(log, out.Body)
	log.ContentTruncated = log.ContentTruncated || endTruncated

	s.enqueueOrWrite(opUpdate, log)
}

func (s *Service) rememberPending(log *models.RequestLog) {
	s.pendingMu.Lock()
	s.pending[log.ID] = log
	s.pendingMu.Unlock()
}

func (s *Service) takePending(id string) *models.RequestLog {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	log := s.pending[id]
	delete(s.pending, id)
	return log
}

// applyRequestBody truncates the request body into log.RequestBody per
// EnableDetailedContent/MaxContentLength, reporting whether truncation
// occurred.
// applyRequestBody truncates the request body into log.RequestBody per
// EnableDetailedContent/MaxContentLength, reporting whether truncation
// occurred. Sanitization runs before truncation, not after: truncating
// first could cut an API key or bearer token in half and leave the
// remaining fragment past a sanitizer regex's match boundary.
func (s *Service) applyRequestBody(log *models.RequestLog, body []byte) bool {
	if !s.cfg.EnableDetailedContent || len(body) == 0 {
		return false
	}
	text, truncated := truncateContent(utils.SanitizeErrorBody(string(body)), s.cfg.MaxContentLength)
	log.RequestBody = text
	log.HasTools = strings.Contains(text, `"tools"`) || strings.Contains(text, `"tool_choice"`)
	return truncated
}

func (s *Service) applyResponseBody(log *models.RequestLog, body []byte) bool {
	if !s.cfg.EnableDetailedContent || len(body) == 0 {
		return false
	}
	text, truncated := truncateContent(utils.SanitizeErrorBody(string(body)), s.cfg.MaxContentLength)
	log.ResponseBody = text
	return truncated
}

// truncateContent applies spec.md §4.5's visible-marker truncation rule.
func truncateContent(s string, maxLen int) (string, bool) {
	if maxLen <= 0 || len(s) <= maxLen {
		return s, false
	}
	return s[:maxLen] + "...[truncated]", true
}

func isHealthCheckPath(endpoint string) bool {
	return strings.Contains(endpoint, "/health")
}

func (s *Service) enqueueOrWrite(op int, log *models.RequestLog) {
	if !s.cfg.Queue.Enabled {
		s.write(op, log)
		return
	}

	item := queueItem{op: op, log: log}
	select {
	case s.queue <- item:
		return
	default:
	}

	switch s.cfg.Queue.FullStrategy {
	case "DropOldest":
		select {
		case <-s.queue:
		default:
		}
		select {
		case s.queue <- item:
		default:
			s.recordDrop()
		}
	case "Block":
		s.queue <- item
	default: // RejectNew
		s.recordDrop()
	}
}

func (s *Service) recordDrop() {
	dropped := atomic.AddInt64(&s.dropped, 1)
	if dropped%100 == 1 {
		logrus.Warnf("dropping request log, queue full (dropped total: %d)", dropped)
	}
}

func (s *Service) drainLoop() {
	defer s.wg.Done()

	interval := time.Duration(s.cfg.Queue.ProcessingIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	batchSize := s.cfg.Queue.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	for {
		select {
		case <-ticker.C:
			s.drainBatch(batchSize)
		case <-s.stopCh:
			for {
				if !s.drainBatch(batchSize) {
					return
				}
			}
		}
	}
}

// drainBatch pulls up to n items off the queue and writes them, returning
// whether anything was drained (used by the shutdown path to know when to
// stop looping).
func (s *Service) drainBatch(n int) bool {
	drained := false
	for i := 0; i < n; i++ {
		select {
		case item := <-s.queue:
			s.writeWithRetry(item.op, item.log)
			drained = true
		default:
			return drained
		}
	}
	return drained
}

func (s *Service) writeWithRetry(op int, log *models.RequestLog) {
	maxRetries := s.cfg.Queue.MaxRetries
	delay := time.Duration(s.cfg.Queue.RetryDelayMs) * time.Millisecond
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err = s.write(op, log); err == nil {
			return
		}
		// A non-transient error (bad row data, schema mismatch) will fail the
		// same way on every retry; only lock contention/timeout/cancellation
		// is worth spinning on.
		if !utils.IsTransientDBError(err) {
			break
		}
		if attempt < maxRetries {
			time.Sleep(delay)
		}
	}
	logrus.WithError(err).WithField("request_id", log.ID).Error("request log write failed after retries, dropping")
}

func (s *Service) write(op int, log *models.RequestLog) error {
	var err error
	if op == opInsert {
		err = s.persist.CreateRequestLog(log)
	} else {
		err = s.persist.UpdateRequestLog(log)
	}
	if err != nil {
		logrus.WithError(err).WithField("request_id", log.ID).Warn("failed to persist request log")
	}
	return err
}
