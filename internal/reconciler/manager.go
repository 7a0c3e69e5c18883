package reconciler

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"buildwarden/internal/api"
	"buildwarden/pkg/logging"
)

const subsystem = "ReconcileManager"

// Manager schedules passes for the registered domains.
//
// It manages:
//   - an optional filesystem change detector
//   - a periodic resync
//   - a work queue that runs each domain at most once at a time
//   - retries: a fixed delay after a busy remote, exponential backoff otherwise
type Manager struct {
	mu sync.RWMutex

	config ManagerConfig

	changeDetector ChangeDetector
	reconcilers    map[Domain]Reconciler
	queue          *workQueue
	statusTracker  map[Domain]*ReconcileStatus
	metrics        *Metrics
	changeChan     chan ChangeEvent

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	running    bool
}

// NewManager creates a manager, applying defaults to zero config values.
func NewManager(config ManagerConfig) *Manager {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 2
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 5
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = time.Second
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = 5 * time.Minute
	}
	if config.DebounceInterval == 0 {
		config.DebounceInterval = 500 * time.Millisecond
	}
	if config.RetryAfterBusy == 0 {
		config.RetryAfterBusy = time.Minute
	}
	if config.PassTimeout == 0 {
		config.PassTimeout = 30 * time.Minute
	}
	if config.DisabledDomains == nil {
		config.DisabledDomains = make(map[Domain]bool)
	}

	return &Manager{
		config:        config,
		reconcilers:   make(map[Domain]Reconciler),
		queue:         newWorkQueue(),
		statusTracker: make(map[Domain]*ReconcileStatus),
		metrics:       NewMetrics(),
		changeChan:    make(chan ChangeEvent, 100),
	}
}

// RegisterReconciler registers the reconciler of one domain.
func (m *Manager) RegisterReconciler(r Reconciler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	domain := r.GetDomain()
	if _, exists := m.reconcilers[domain]; exists {
		return fmt.Errorf("reconciler for %s already registered", domain)
	}
	m.reconcilers[domain] = r
	logging.Info(subsystem, "Registered reconciler for %s", domain)
	return nil
}

// Start launches the detector, the resync loop and the workers, and queues
// an initial pass for every enabled domain.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.ctx, m.cancelFunc = context.WithCancel(ctx)

	if len(m.config.WatchFiles) > 0 {
		m.changeDetector = NewFilesystemDetector(m.config.WatchFiles, m.config.DebounceInterval)
		if err := m.changeDetector.Start(m.ctx, m.changeChan); err != nil {
			m.cancelFunc()
			m.mu.Unlock()
			return fmt.Errorf("failed to start change detector: %w", err)
		}
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.processChangeEvents()

	if m.config.ResyncInterval > 0 {
		m.wg.Add(1)
		go m.resyncLoop(m.config.ResyncInterval)
	}

	for i := 0; i < m.config.WorkerCount; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}

	for _, domain := range m.EnabledDomains() {
		m.TriggerReconcile(domain)
	}

	logging.Info(subsystem, "Started with %d workers", m.config.WorkerCount)
	return nil
}

func (m *Manager) processChangeEvents() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case event := <-m.changeChan:
			m.handleChangeEvent(event)
		}
	}
}

func (m *Manager) resyncLoop(interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			for _, domain := range m.EnabledDomains() {
				m.handleChangeEvent(ChangeEvent{
					Domain:    domain,
					Operation: OperationUpdate,
					Timestamp: time.Now(),
					Source:    SourceResync,
				})
			}
		}
	}
}

func (m *Manager) handleChangeEvent(event ChangeEvent) {
	if !m.IsDomainEnabled(event.Domain) {
		logging.Debug(subsystem, "Skipping change event for disabled domain %s", event.Domain)
		return
	}
	logging.Debug(subsystem, "Handling %s change event for %s", event.Source, event.Domain)

	m.updateStatus(event.Domain, StatePending, "")
	m.queue.Add(ReconcileRequest{Domain: event.Domain, Attempt: 1})
}

func (m *Manager) worker(id int) {
	defer m.wg.Done()
	logging.Debug(subsystem, "Worker %d started", id)

	for {
		req, ok := m.queue.Get(m.ctx)
		if !ok {
			logging.Debug(subsystem, "Worker %d shutting down", id)
			return
		}
		m.processRequest(req)
		m.queue.Done(req)
	}
}

func (m *Manager) processRequest(req ReconcileRequest) {
	m.mu.RLock()
	r, ok := m.reconcilers[req.Domain]
	m.mu.RUnlock()
	if !ok {
		logging.Warn(subsystem, "No reconciler for domain %s", req.Domain)
		return
	}

	passID := uuid.NewString()
	log := logging.ForPass(subsystem, passID)
	ctx, cancel := context.WithTimeout(logging.WithPassID(m.ctx, passID), m.config.PassTimeout)
	defer cancel()

	m.updateStatus(req.Domain, StateReconciling, "")
	m.metrics.RecordAttempt(req.Domain)
	log.Debug("Reconciling %s (attempt %d)", req.Domain, req.Attempt)

	started := time.Now()
	result := r.Reconcile(ctx, req)
	took := time.Since(started)

	if result.Error == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.Error = fmt.Errorf("pass timed out after %v", m.config.PassTimeout)
	}
	if m.ctx.Err() != nil {
		// Shutting down; the pass was interrupted, not failed.
		return
	}

	switch {
	case result.Error == nil:
		m.metrics.RecordSuccess(req.Domain, took)
		m.updateStatus(req.Domain, StateSynced, "")
		log.Info("%s converged in %v", req.Domain, took.Round(time.Millisecond))
		if result.RequeueAfter > 0 {
			m.queue.AddAfter(ReconcileRequest{Domain: req.Domain, Attempt: 1}, result.RequeueAfter)
		}

	case api.IsRemoteBusy(result.Error):
		m.metrics.RecordBusy(req.Domain)
		m.updateStatus(req.Domain, StateBusy, SanitizeErrorMessage(result.Error.Error()))
		log.Info("%s deferred for %v: %v", req.Domain, m.config.RetryAfterBusy, result.Error)
		req.LastError = result.Error
		m.queue.AddAfter(req, m.config.RetryAfterBusy)

	default:
		m.metrics.RecordFailure(req.Domain, took, result.Error.Error())
		m.handleReconcileError(log, req, result.Error)
	}
}

func (m *Manager) handleReconcileError(log logging.Scope, req ReconcileRequest, err error) {
	sanitized := SanitizeErrorMessage(err.Error())

	if req.Attempt >= m.config.MaxRetries {
		log.Error(err, "Max retries exceeded for %s", req.Domain)
		m.updateStatus(req.Domain, StateFailed, sanitized)
		return
	}

	m.updateStatus(req.Domain, StateError, sanitized)
	backoff := m.calculateBackoff(req.Attempt)
	log.Warn("%s pass failed, retrying in %v (attempt %d): %v", req.Domain, backoff, req.Attempt+1, err)

	req.Attempt++
	req.LastError = err
	m.queue.AddAfter(req, backoff)
}

// calculateBackoff returns InitialBackoff * 2^(attempt-1), capped at MaxBackoff.
func (m *Manager) calculateBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := m.config.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= m.config.MaxBackoff {
			return m.config.MaxBackoff
		}
	}
	if backoff > m.config.MaxBackoff {
		return m.config.MaxBackoff
	}
	return backoff
}

func (m *Manager) updateStatus(domain Domain, state ReconcileState, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status, ok := m.statusTracker[domain]
	if !ok {
		status = &ReconcileStatus{Domain: domain}
		m.statusTracker[domain] = status
	}
	status.State = state
	status.LastError = errMsg

	switch state {
	case StateSynced:
		now := time.Now()
		status.LastReconcileTime = &now
		status.RetryCount = 0
	case StateError, StateFailed:
		status.RetryCount++
	}
}

// Stop cancels running passes and waits for workers to exit.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	detector := m.changeDetector
	m.mu.Unlock()

	logging.Info(subsystem, "Stopping reconciliation manager...")
	m.cancelFunc()

	if detector != nil {
		if err := detector.Stop(); err != nil {
			logging.Error(subsystem, err, "Error stopping change detector")
		}
	}
	m.queue.Shutdown()
	m.wg.Wait()

	logging.Info(subsystem, "Reconciliation manager stopped")
	return nil
}

// GetStatus returns a copy of the status of domain.
func (m *Manager) GetStatus(domain Domain) (ReconcileStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statusTracker[domain]
	if !ok {
		return ReconcileStatus{}, false
	}
	return *status, true
}

// GetAllStatuses returns all statuses sorted by domain.
func (m *Manager) GetAllStatuses() []ReconcileStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]ReconcileStatus, 0, len(m.statusTracker))
	for _, status := range m.statusTracker {
		statuses = append(statuses, *status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Domain < statuses[j].Domain })
	return statuses
}

// TriggerReconcile queues a pass for domain.
func (m *Manager) TriggerReconcile(domain Domain) {
	m.handleChangeEvent(ChangeEvent{
		Domain:    domain,
		Operation: OperationUpdate,
		Timestamp: time.Now(),
		Source:    SourceManual,
	})
}

// IsRunning returns whether the manager is running.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// GetQueueLength returns the number of queued passes.
func (m *Manager) GetQueueLength() int {
	return m.queue.Len()
}

// Metrics returns the pass counters.
func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

// EnabledDomains returns the registered, enabled domains sorted by name.
func (m *Manager) EnabledDomains() []Domain {
	m.mu.RLock()
	defer m.mu.RUnlock()

	domains := make([]Domain, 0, len(m.reconcilers))
	for d := range m.reconcilers {
		if !m.config.DisabledDomains[d] {
			domains = append(domains, d)
		}
	}
	sort.Slice(domains, func(i, j int) bool { return domains[i] < domains[j] })
	return domains
}

// IsDomainEnabled reports whether domain is registered and not disabled.
func (m *Manager) IsDomainEnabled(domain Domain) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, registered := m.reconcilers[domain]
	return registered && !m.config.DisabledDomains[domain]
}

var (
	credentialPattern = regexp.MustCompile(`(?i)\b(password|passwd|token|secret|apikey|api_key)(\s*[=:]\s*)\S+`)
	basicAuthPattern  = regexp.MustCompile(`(?i)(https?://)[^/\s:@]+:[^/\s@]+@`)
	longTokenPattern  = regexp.MustCompile(`[A-Za-z0-9+/_\-.]{40,}={0,2}`)
)

// SanitizeErrorMessage redacts credentials from an error message before it
// is stored in a status.
func SanitizeErrorMessage(msg string) string {
	msg = credentialPattern.ReplaceAllString(msg, "$1$2[REDACTED]")
	msg = basicAuthPattern.ReplaceAllString(msg, "$1[REDACTED]@")
	return longTokenPattern.ReplaceAllString(msg, "[REDACTED]")
}
