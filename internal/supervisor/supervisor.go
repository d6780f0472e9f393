// Package supervisor owns the trading lifecycle: it validates the
// configuration, connects to the node, discovers every token's pool, runs one
// order engine per tradeable token and persists what they produce until a
// stop condition is reached.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"amm-limitbot/internal/chain"
	"amm-limitbot/internal/dex"
	"amm-limitbot/internal/jsonl"
	"amm-limitbot/internal/metrics"
	"amm-limitbot/internal/model"
)

var ErrRunning = errors.New("trading is already running")

const (
	DefaultWorkers          = 5
	DefaultConnectRetry     = 3 * time.Second
	DefaultRateLimitBackoff = 5 * time.Second
	DefaultPollInterval     = time.Second

	eventBuffer = 256
)

// Dialer connects to the node named in settings with the run's credentials.
type Dialer func(ctx context.Context, settings model.Settings, creds Credentials) (chain.Client, error)

// Store persists what a run produces.
type Store interface {
	SaveTokens([]model.TokenConfig) error
	AppendTransactions([]model.TransactionRecord) error
}

// Config wires a Supervisor. Dial, Store, Contracts and Exchanges are
// required.
type Config struct {
	Dial      Dialer
	Store     Store
	Contracts *dex.Contracts
	Exchanges *dex.Table

	Metrics  *metrics.Metrics
	EventLog *jsonl.Writer

	// Workers bounds concurrent discovery and evaluation calls.
	Workers          int
	ConnectRetry     time.Duration
	RateLimitBackoff time.Duration
	// PollInterval is the shortest time between two trading iterations.
	PollInterval time.Duration
	Now          func() time.Time
}

// State is the lifecycle phase of the supervisor.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

// Status is a point-in-time view of the current or last run.
type Status struct {
	State      State
	RunID      string
	Stage      string
	Iteration  int
	Tokens     int
	FailStreak int
	StartedAt  time.Time
	StopReason string
	Err        error
}

type Supervisor struct {
	cfg      Config
	metrics  *metrics.Metrics
	eventLog *jsonl.Writer
	now      func() time.Time

	settings atomic.Pointer[model.Settings]
	tokens   atomic.Pointer[[]model.TokenConfig]

	events  chan Event
	dropped atomic.Int64

	mu     sync.Mutex
	status Status
	done   chan struct{}
	stopCh chan struct{}
}

func New(cfg Config, settings model.Settings, tokens []model.TokenConfig) *Supervisor {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.ConnectRetry <= 0 {
		cfg.ConnectRetry = DefaultConnectRetry
	}
	if cfg.RateLimitBackoff <= 0 {
		cfg.RateLimitBackoff = DefaultRateLimitBackoff
	}
	if cfg.PollInterval < 0 {
		cfg.PollInterval = 0
	}
	if cfg.Exchanges == nil {
		cfg.Exchanges = dex.Builtin()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Supervisor{
		cfg:      cfg,
		metrics:  cfg.Metrics,
		eventLog: cfg.EventLog,
		now:      cfg.Now,
		events:   make(chan Event, eventBuffer),
		status:   Status{State: StateIdle},
	}
	s.UpdateSettings(settings)
	s.UpdateTokens(tokens)
	closed := make(chan struct{})
	close(closed)
	s.done = closed
	return s
}

// UpdateSettings replaces the settings snapshot. Gas, deadline and fail budget
// changes apply from the next iteration; wallet, key and node changes apply
// from the next Start.
func (s *Supervisor) UpdateSettings(settings model.Settings) {
	s.settings.Store(&settings)
}

// UpdateTokens replaces the token list. Plan edits reach running engines on
// the next iteration; tokens added while running trade from the next Start.
func (s *Supervisor) UpdateTokens(tokens []model.TokenConfig) {
	cp := model.CloneTokens(tokens)
	s.tokens.Store(&cp)
}

// Settings returns the current snapshot.
func (s *Supervisor) Settings() model.Settings { return *s.settings.Load() }

// Tokens returns a copy of the current token list, including the progress
// written by running engines.
func (s *Supervisor) Tokens() []model.TokenConfig { return model.CloneTokens(*s.tokens.Load()) }

// Events delivers progress events. The channel is never closed; events are
// dropped while it is full.
func (s *Supervisor) Events() <-chan Event { return s.events }

// Done is closed when the current run has finished.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Start validates the configuration and launches a run in the background.
// Validation errors are returned and nothing starts. ctx bounds the run's
// remote calls; use Stop for a graceful halt.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.cfg.Dial == nil || s.cfg.Store == nil || s.cfg.Contracts == nil {
		return fmt.Errorf("supervisor: Dial, Store and Contracts are required")
	}
	s.mu.Lock()
	if s.status.State == StateRunning || s.status.State == StateStopping {
		s.mu.Unlock()
		return ErrRunning
	}
	settings := s.Settings()
	tokens := s.Tokens()
	creds, err := Validate(settings, tokens, s.cfg.Exchanges)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	rc := &runContext{
		ctx:       ctx,
		id:        uuid.NewString(),
		startedAt: s.now(),
		creds:     creds,
		stopCh:    make(chan struct{}),
	}
	s.stopCh = rc.stopCh
	s.done = make(chan struct{})
	s.status = Status{State: StateRunning, RunID: rc.id, StartedAt: rc.startedAt}
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.run(rc)
	}()
	return nil
}

// Stop asks the run to halt. The iteration in flight completes first; pending
// transactions are not abandoned mid-call.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.State != StateRunning {
		return
	}
	close(s.stopCh)
	s.status.State = StateStopping
	log.Printf("Please wait while finishing pending work . . .")
}

func (s *Supervisor) setStage(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Stage = name
}

func (s *Supervisor) updateStatus(fn func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
}

func (s *Supervisor) run(rc *runContext) {
	s.emit(rc, Event{Event: EventStart})
	log.Printf("[info] run %s started for wallet %s", rc.id, rc.creds.Wallet.Hex())

	err := s.runPipeline(rc, []stage{
		{name: "connect", run: s.connect},
		{name: "balances", run: s.balances},
		{name: "discover", run: s.discoverAll},
		{name: "engines", run: s.startEngines},
		{name: "trade", run: s.trade},
	})
	if closer, ok := rc.client.(interface{ Close() }); ok {
		closer.Close()
	}

	reason := rc.stopReason
	if reason == "" && rc.stopRequested() {
		reason = "stop requested"
	}
	if err != nil {
		log.Printf("[warn] run %s: %v", rc.id, err)
		if reason == "" {
			reason = "error"
		}
	}
	log.Printf("========================================")
	log.Printf("Info: Bot stopped trading (%s, uptime %s).", reason, uptime(rc.startedAt, s.now()))
	s.emit(rc, Event{Event: EventStopped, Reason: reason, Err: errString(err), FailStreak: rc.failStreak})
	if n := s.dropped.Swap(0); n > 0 {
		log.Printf("[warn] %d progress events dropped (channel full)", n)
	}
	s.updateStatus(func(st *Status) {
		st.State = StateStopped
		st.Stage = ""
		st.StopReason = reason
		st.Err = err
	})
}
