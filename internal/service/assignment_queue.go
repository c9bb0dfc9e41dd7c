package service

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"team-roles/internal/metrics"
)

// PipelineRunner es la unidad de trabajo que la cola agenda.
type PipelineRunner interface {
	ProcessTeam(ctx context.Context, teamID string) error
}

// QueueConfig limita la concurrencia y define el backoff de reintentos de la cola.
type QueueConfig struct {
	MaxConcurrent   int
	MaxRetries      int
	RetryBaseDelay  time.Duration
	RetryMultiplier float64
}

// DefaultQueueConfig: 3 equipos en paralelo, 3 reintentos, 5s x 2^n.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxConcurrent:   3,
		MaxRetries:      3,
		RetryBaseDelay:  5 * time.Second,
		RetryMultiplier: 2,
	}
}

// QueueItem es un equipo en la lista de espera.
type QueueItem struct {
	TeamID     string    `json:"team_id"`
	RetryCount int       `json:"retry_count"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// QueueStatus es una foto del estado de la cola.
type QueueStatus struct {
	MaxConcurrent     int         `json:"max_concurrent"`
	Processing        []string    `json:"processing"`
	Waiting           []QueueItem `json:"waiting"`
	PendingRetries    []QueueItem `json:"pending_retries"`
	Succeeded         int         `json:"succeeded"`
	Failed            int         `json:"failed"`
	PermanentlyFailed []string    `json:"permanently_failed"`
}

type pendingRetry struct {
	item  QueueItem
	timer *time.Timer
}

// AssignmentQueue admite equipos listos para asignacion con concurrencia acotada,
// espera FIFO y reintentos con backoff exponencial que vuelven al frente de la cola.
type AssignmentQueue struct {
	runner  PipelineRunner
	cfg     QueueConfig
	logger  *zap.Logger
	metrics *metrics.Pipeline
	lock    TeamLock
	now     func() time.Time

	mu                sync.Mutex
	processing        map[string]struct{}
	waiting           []QueueItem
	retries           map[string]*pendingRetry
	permanentlyFailed map[string]struct{}
	succeeded         int
	failed            int
	stopped           bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// QueueOption configura dependencias opcionales de la cola.
type QueueOption func(*AssignmentQueue)

// WithTeamLock agrega un lock por equipo entre instancias.
func WithTeamLock(lock TeamLock) QueueOption {
	return func(q *AssignmentQueue) {
		if lock != nil {
			q.lock = lock
		}
	}
}

// WithQueueMetrics registra profundidad y eventos de la cola.
func WithQueueMetrics(m *metrics.Pipeline) QueueOption {
	return func(q *AssignmentQueue) { q.metrics = m }
}

func NewAssignmentQueue(runner PipelineRunner, cfg QueueConfig, logger *zap.Logger, opts ...QueueOption) *AssignmentQueue {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryMultiplier < 1 {
		cfg.RetryMultiplier = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &AssignmentQueue{
		runner:            runner,
		cfg:               cfg,
		logger:            logger,
		lock:              NewNoopTeamLock(),
		now:               time.Now,
		processing:        make(map[string]struct{}),
		retries:           make(map[string]*pendingRetry),
		permanentlyFailed: make(map[string]struct{}),
		ctx:               ctx,
		cancel:            cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue admite el equipo. Devuelve false si ya esta en proceso, en espera,
// con un reintento pendiente, o si la cola fue detenida.
func (q *AssignmentQueue) Enqueue(teamID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped || teamID == "" || q.knownLocked(teamID) {
		return false
	}
	delete(q.permanentlyFailed, teamID)

	item := QueueItem{TeamID: teamID, EnqueuedAt: q.now().UTC()}
	if len(q.processing) < q.cfg.MaxConcurrent {
		q.startLocked(item)
	} else {
		q.waiting = append(q.waiting, item)
		q.logger.Info("team queued", zap.String("team_id", teamID), zap.Int("position", len(q.waiting)))
	}
	q.metrics.QueueEvent(metrics.QueueEnqueued)
	q.syncGaugesLocked()
	return true
}

func (q *AssignmentQueue) knownLocked(teamID string) bool {
	if _, ok := q.processing[teamID]; ok {
		return true
	}
	if _, ok := q.retries[teamID]; ok {
		return true
	}
	for _, it := range q.waiting {
		if it.TeamID == teamID {
			return true
		}
	}
	return false
}

func (q *AssignmentQueue) startLocked(item QueueItem) {
	q.processing[item.TeamID] = struct{}{}
	q.wg.Add(1)
	go q.run(item)
	q.logger.Info("team processing started",
		zap.String("team_id", item.TeamID),
		zap.Int("retry_count", item.RetryCount),
		zap.Int("processing", len(q.processing)),
	)
}

func (q *AssignmentQueue) run(item QueueItem) {
	defer q.wg.Done()

	unlock, ok := q.lock.TryLock(q.ctx, item.TeamID)
	if !ok {
		q.logger.Info("team locked by another instance, skipping", zap.String("team_id", item.TeamID))
		q.release(item.TeamID)
		return
	}
	defer unlock()

	err := q.runner.ProcessTeam(q.ctx, item.TeamID)
	q.finish(item, err)
}

// release libera el slot sin contar exito ni fallo.
func (q *AssignmentQueue) release(teamID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processing, teamID)
	q.admitNextLocked()
	q.syncGaugesLocked()
}

func (q *AssignmentQueue) finish(item QueueItem, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.processing, item.TeamID)

	if err == nil {
		q.succeeded++
		q.metrics.QueueEvent(metrics.QueueCompleted)
		q.logger.Info("team processing completed", zap.String("team_id", item.TeamID))
	} else {
		q.failed++
		q.metrics.QueueEvent(metrics.QueueFailed)
		if item.RetryCount < q.cfg.MaxRetries && !q.stopped {
			q.scheduleRetryLocked(item, err)
		} else {
			q.permanentlyFailed[item.TeamID] = struct{}{}
			q.metrics.QueueEvent(metrics.QueuePermanentFailed)
			q.logger.Error("team processing failed permanently",
				zap.String("team_id", item.TeamID),
				zap.Int("retry_count", item.RetryCount),
				zap.Error(err),
			)
		}
	}

	q.admitNextLocked()
	q.syncGaugesLocked()
}

// RetryDelay devuelve base x multiplier^retryCount.
func (q *AssignmentQueue) RetryDelay(retryCount int) time.Duration {
	factor := math.Pow(q.cfg.RetryMultiplier, float64(retryCount))
	return time.Duration(float64(q.cfg.RetryBaseDelay) * factor)
}

func (q *AssignmentQueue) scheduleRetryLocked(item QueueItem, cause error) {
	delay := q.RetryDelay(item.RetryCount)
	next := QueueItem{TeamID: item.TeamID, RetryCount: item.RetryCount + 1, EnqueuedAt: item.EnqueuedAt}
	pr := &pendingRetry{item: next}
	pr.timer = time.AfterFunc(delay, func() { q.readmit(next) })
	q.retries[item.TeamID] = pr
	q.metrics.QueueEvent(metrics.QueueRetried)
	q.logger.Warn("team processing failed, retry scheduled",
		zap.String("team_id", item.TeamID),
		zap.Int("retry_count", next.RetryCount),
		zap.Duration("delay", delay),
		zap.Error(cause),
	)
}

// readmit reinserta el reintento al frente de la lista de espera.
func (q *AssignmentQueue) readmit(item QueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.retries, item.TeamID)
	if q.stopped {
		return
	}
	q.waiting = append([]QueueItem{item}, q.waiting...)
	q.admitNextLocked()
	q.syncGaugesLocked()
}

func (q *AssignmentQueue) admitNextLocked() {
	for !q.stopped && len(q.processing) < q.cfg.MaxConcurrent && len(q.waiting) > 0 {
		next := q.waiting[0]
		q.waiting = q.waiting[1:]
		q.startLocked(next)
	}
}

func (q *AssignmentQueue) syncGaugesLocked() {
	q.metrics.SetQueueDepth(len(q.processing), len(q.waiting))
}

// Status devuelve una copia del estado actual.
func (q *AssignmentQueue) Status() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := QueueStatus{
		MaxConcurrent:     q.cfg.MaxConcurrent,
		Processing:        make([]string, 0, len(q.processing)),
		Waiting:           append([]QueueItem{}, q.waiting...),
		PendingRetries:    make([]QueueItem, 0, len(q.retries)),
		Succeeded:         q.succeeded,
		Failed:            q.failed,
		PermanentlyFailed: make([]string, 0, len(q.permanentlyFailed)),
	}
	for id := range q.processing {
		st.Processing = append(st.Processing, id)
	}
	for _, pr := range q.retries {
		st.PendingRetries = append(st.PendingRetries, pr.item)
	}
	for id := range q.permanentlyFailed {
		st.PermanentlyFailed = append(st.PermanentlyFailed, id)
	}
	return st
}

// Stop deja de admitir equipos, cancela reintentos pendientes y espera a los
// pipelines en curso. Si ctx vence antes, cancela el contexto de los pipelines.
func (q *AssignmentQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	q.stopped = true
	for id, pr := range q.retries {
		pr.timer.Stop()
		delete(q.retries, id)
	}
	dropped := len(q.waiting)
	q.waiting = nil
	q.syncGaugesLocked()
	q.mu.Unlock()

	if dropped > 0 {
		q.logger.Warn("queue stopped with waiting teams", zap.Int("dropped", dropped))
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		return ctx.Err()
	}
}

// IsActive indica si el equipo esta en proceso, en espera o con un reintento pendiente.
func (q *AssignmentQueue) IsActive(teamID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.knownLocked(teamID)
}
