package syncer

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/eqtlab/paycache-syncer/pkg/output"
)

type Phase string

const (
	PhaseBackfill  Phase = "backfill"
	PhaseRefresh   Phase = "refresh"
	PhaseCoverage  Phase = "coverage"
	PhaseRehydrate Phase = "rehydrate"
)

type Stage string

const (
	StageStart Stage = "start"
	StagePage  Stage = "page"
	StageDone  Stage = "done"
)

// Progress is one notification of a running sync call; it is telemetry, not part of the result.
type Progress struct {
	RunID     uuid.UUID
	AccountID string
	Phase     Phase
	Stage     Stage
	Page      int    // pages processed so far
	Records   int    // records processed so far in this phase
	Total     int    // expected records, zero when unknown
	Newest    string // newest created_at of the last page
	Oldest    string // oldest created_at of the last page
	Extended  bool   // coverage: whether a backfill ran
	Elapsed   time.Duration
}

type ProgressFunc func(Progress)

type callOptions struct {
	progress ProgressFunc
}

type CallOption func(*callOptions)

// WithProgress registers a callback invoked synchronously at page/record granularity.
// It must not block; a panic inside it is logged and swallowed.
func WithProgress(fn ProgressFunc) CallOption {
	return func(o *callOptions) { o.progress = fn }
}

// run tracks one entry point call and fans its notifications out.
type run struct {
	id        uuid.UUID
	accountID string
	phase     Phase
	started   time.Time
	fn        ProgressFunc
	emitter   *Emitter
	logger    *zap.Logger
}

func (e *Engine) newRun(accountID string, phase Phase, opts []CallOption) *run {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &run{
		id:        uuid.New(),
		accountID: accountID,
		phase:     phase,
		started:   time.Now(),
		fn:        o.progress,
		emitter:   e.emitter,
		logger:    e.logger,
	}
}

// child starts a nested phase sharing the run id and the callback.
func (r *run) child(phase Phase) *run {
	c := *r
	c.phase = phase
	c.started = time.Now()
	return &c
}

func (r *run) emit(stage Stage, p Progress) {
	p.RunID = r.id
	p.AccountID = r.accountID
	p.Phase = r.phase
	p.Stage = stage
	p.Elapsed = time.Since(r.started)

	if r.emitter != nil {
		r.emitter.Publish(p)
	}
	if r.fn == nil {
		return
	}

	var pc panics.Catcher
	pc.Try(func() { r.fn(p) })
	if err := pc.Recovered().AsError(); err != nil {
		r.logger.Warn("progress callback panicked", zap.Error(err), zap.String("phase", string(r.phase)))
	}
}

// Emitter fans progress out to subscribers. Publishing never blocks: a subscriber that does not keep up
// loses its oldest pending notifications.
type Emitter struct {
	mu   sync.RWMutex
	next int
	subs map[int]output.LimitedChan[Progress]
}

func NewEmitter() *Emitter {
	return &Emitter{subs: make(map[int]output.LimitedChan[Progress])}
}

// Subscribe returns a channel receiving every notification published after the call,
// and a cancel func closing it.
func (em *Emitter) Subscribe(buffer int) (<-chan Progress, func()) {
	ch := output.NewLimitedChan[Progress](buffer)

	em.mu.Lock()
	id := em.next
	em.next++
	em.subs[id] = ch
	em.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			em.mu.Lock()
			delete(em.subs, id)
			em.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (em *Emitter) Publish(p Progress) {
	em.mu.RLock()
	defer em.mu.RUnlock()
	for _, ch := range em.subs {
		ch.Push(p)
	}
}
