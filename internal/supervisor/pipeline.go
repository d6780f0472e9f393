package supervisor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"amm-limitbot/internal/chain"
	"amm-limitbot/internal/discovery"
	"amm-limitbot/internal/model"
	"amm-limitbot/internal/order"
)

const divider = "========================================"

// runContext is the state of one run, shared by its stages. Only the run
// goroutine touches it.
type runContext struct {
	ctx       context.Context
	id        string
	startedAt time.Time
	creds     Credentials
	stopCh    chan struct{}

	client    chain.Client
	settings  model.Settings
	nativeUSD decimal.Decimal

	discovered []*discovery.Result
	nonces     *order.Nonces
	engines    map[common.Address]*order.Engine
	// keys fixes the evaluation and logging order of engines.
	keys []common.Address
	// seen is the list entry each engine last wrote, to tell operator edits
	// apart from its own progress.
	seen map[common.Address]model.TokenFields

	iteration  int
	failStreak int
	unsaved    []model.TransactionRecord
	stopReason string
}

func (rc *runContext) stopRequested() bool {
	select {
	case <-rc.stopCh:
		return true
	default:
		return false
	}
}

// halt records why the run ends. The first reason wins.
func (rc *runContext) halt(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("%s", msg)
	if rc.stopReason == "" {
		rc.stopReason = msg
	}
}

func (rc *runContext) halted() bool {
	return rc.stopReason != "" || rc.stopRequested() || rc.ctx.Err() != nil
}

type stage struct {
	name string
	run  func(*runContext) error
}

// runPipeline runs stages in order. A halted run skips the remaining stages;
// a stage error ends the run.
func (s *Supervisor) runPipeline(rc *runContext, stages []stage) error {
	for _, st := range stages {
		if rc.halted() {
			return rc.ctx.Err()
		}
		s.setStage(st.name)
		s.emit(rc, Event{Event: EventStage, Stage: st.name})
		log.Printf(divider)
		started := s.now()
		err := st.run(rc)
		log.Printf("[info] %s finished in %s", st.name, s.now().Sub(started).Round(time.Millisecond))
		if err != nil {
			return fmt.Errorf("%s: %w", st.name, err)
		}
	}
	return nil
}

// sleep waits d unless the run is stopped first. It reports whether the run
// may continue.
func (s *Supervisor) sleep(rc *runContext, d time.Duration) bool {
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-rc.ctx.Done():
		case <-rc.stopCh:
		case <-t.C:
		}
	}
	return !rc.halted()
}
