package supervisor

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"amm-limitbot/internal/chain"
	"amm-limitbot/internal/ethutil"
	"amm-limitbot/internal/model"
	"amm-limitbot/internal/order"
)

const minuteInterval = time.Minute

// trade drives every engine once per iteration until a stop condition holds.
// Once the run is halted, iterations continue for engines with a pending
// transaction only, until each has settled.
func (s *Supervisor) trade(rc *runContext) error {
	notes := newStatusTracker("[info]", minuteInterval)
	for rc.iteration = 1; ; rc.iteration++ {
		if rc.ctx.Err() != nil {
			return rc.ctx.Err()
		}
		draining := rc.halted()
		if draining && !s.anyPending(rc) {
			return nil
		}
		if draining {
			notes.Set("drain", fmt.Sprintf("Waiting for %d pending transaction(s) before stopping . . .", s.countPending(rc)))
		}

		started := s.now()
		rc.settings = s.Settings()
		listed := s.listedTokens(rc, notes)
		rateLimited := false
		var stale map[common.Address]bool
		if rc.iteration > 1 && !draining {
			rateLimited, stale = s.refresh(rc, listed, notes)
		}

		log.Printf(divider)
		deltas, active := s.evaluate(rc, listed, stale, draining)
		changed, limited := s.apply(rc, deltas, active)
		rateLimited = rateLimited || limited
		if changed {
			s.persist(rc)
		}

		s.metrics.ObserveIteration(s.now().Sub(started))
		s.metrics.SetFailStreak(rc.failStreak)
		s.updateStatus(func(st *Status) {
			st.Iteration = rc.iteration
			st.FailStreak = rc.failStreak
		})

		if !draining {
			s.checkStop(rc, listed)
			if changed && !rc.halted() {
				if err := s.readBalances(rc); err != nil {
					log.Printf("[warn] %v", err)
					rateLimited = rateLimited || chain.IsRateLimited(err)
				}
			}
		}

		wait := s.cfg.PollInterval - s.now().Sub(started)
		if rateLimited {
			log.Printf("Warning: Too many requests, retry in %s . . .", s.cfg.RateLimitBackoff)
			wait = s.cfg.RateLimitBackoff
		}
		if !s.pause(rc, wait) {
			return rc.ctx.Err()
		}
	}
}

// pause waits d. Only ctx cancels it, so a draining run keeps polling.
func (s *Supervisor) pause(rc *runContext, d time.Duration) bool {
	if d <= 0 {
		return rc.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-rc.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *Supervisor) anyPending(rc *runContext) bool {
	return s.countPending(rc) > 0
}

func (s *Supervisor) countPending(rc *runContext) int {
	n := 0
	for _, k := range rc.keys {
		if rc.engines[k].Pending() != nil {
			n++
		}
	}
	return n
}

// listedTokens maps the current token list by address. Entries without an
// engine were added after the run started and are noted once a minute.
func (s *Supervisor) listedTokens(rc *runContext, notes *statusTracker) map[common.Address]model.TokenConfig {
	tokens := s.Tokens()
	listed := make(map[common.Address]model.TokenConfig, len(tokens))
	for _, t := range tokens {
		addr, err := ethutil.ChecksumAddress(t.Address)
		if err != nil {
			notes.Set("invalid:"+t.Name, fmt.Sprintf("Token '%s' has an invalid address and is ignored: %v", t.Name, err))
			continue
		}
		if _, ok := listed[addr]; ok {
			continue
		}
		listed[addr] = t
		if _, ok := rc.engines[addr]; !ok {
			notes.Set("new:"+addr.Hex(), fmt.Sprintf("Token '%s' was added while trading; it trades after the next start.", t.Name))
		}
	}
	return listed
}

// effectiveToken is the list entry as the engine will run it: the operator's
// plan over the engine's progress. While a position is open the exchange and
// pay currency it was bought with are kept.
func effectiveToken(e *order.Engine, listed model.TokenConfig) model.TokenConfig {
	cur := e.Token()
	next := listed.WithOrder(cur.Order.Reconfigure(listed.Order))
	next.Address = cur.Address
	if cur.Order.Holding() {
		next.Exchange = cur.Exchange
	}
	return next
}

// refresh rediscovers every listed token that has an engine and hands the
// result to it. Tokens whose discovery failed are returned as stale; they sit
// out this iteration unless a receipt is pending.
func (s *Supervisor) refresh(rc *runContext, listed map[common.Address]model.TokenConfig, notes *statusTracker) (bool, map[common.Address]bool) {
	var keys []common.Address
	var tokens []model.TokenConfig
	for _, k := range rc.keys {
		t, ok := listed[k]
		if !ok {
			continue
		}
		keys = append(keys, k)
		tokens = append(tokens, effectiveToken(rc.engines[k], t))
	}
	stale := make(map[common.Address]bool)
	if len(tokens) == 0 {
		return false, stale
	}
	results, err := s.discover(rc, tokens)
	if err != nil {
		log.Printf("[warn] discovery: %v", err)
		for _, k := range keys {
			stale[k] = true
		}
		return chain.IsRateLimited(err), stale
	}
	rateLimited := false
	for i, r := range results {
		e := rc.engines[keys[i]]
		switch {
		case r.terminal:
			// Terminal engines keep their state; Evaluate reports it.
		case r.err != nil:
			notes.Set("refresh:"+keys[i].Hex(), fmt.Sprintf("%s: discovery failed, skipped this iteration: %v", e.Symbol(), r.err))
			rateLimited = rateLimited || chain.IsRateLimited(r.err)
			stale[keys[i]] = true
		default:
			e.Refresh(r.res)
			rc.seen[keys[i]] = listed[keys[i]].Fields()
			notes.Clear("refresh:" + keys[i].Hex())
		}
	}
	return rateLimited, stale
}

// evaluate runs one Evaluate per engine on the worker pool and joins them.
func (s *Supervisor) evaluate(rc *runContext, listed map[common.Address]model.TokenConfig, stale map[common.Address]bool, draining bool) ([]order.Delta, []bool) {
	deltas := make([]order.Delta, len(rc.keys))
	active := make([]bool, len(rc.keys))
	settings := rc.settings

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, k := range rc.keys {
		e := rc.engines[k]
		_, isListed := listed[k]
		pending := e.Pending() != nil
		if (draining || stale[k]) && !pending {
			continue
		}
		// A removed token is only polled until its last transaction settles.
		if !isListed && !pending {
			continue
		}
		active[i] = true
		i := i
		g.Go(func() error {
			deltas[i] = e.Evaluate(rc.ctx, settings)
			return nil
		})
	}
	_ = g.Wait()
	return deltas, active
}

// apply logs the joined deltas in token order, updates the fail streak and
// queues records. It reports whether anything must be persisted and whether a
// call was throttled.
func (s *Supervisor) apply(rc *runContext, deltas []order.Delta, active []bool) (changed, rateLimited bool) {
	for i, d := range deltas {
		if !active[i] {
			continue
		}
		e := rc.engines[rc.keys[i]]
		sym := e.Symbol()
		for _, line := range d.Log {
			log.Printf("[%s] %s", sym, line)
		}

		if p := d.Submitted; p != nil {
			s.metrics.IncSubmitted(string(p.Kind))
			s.emit(rc, Event{Event: EventSubmitted, Token: sym, Kind: string(p.Kind), TxHash: p.Hash.Hex(), Nonce: p.Nonce, Iteration: rc.iteration})
		}
		if d.Err != nil {
			rateLimited = rateLimited || chain.IsRateLimited(d.Err)
			var se *chain.SubmitError
			if errors.As(d.Err, &se) {
				s.metrics.IncSubmitError(se.Kind.String())
			}
			log.Printf("[warn] %s: %v", sym, d.Err)
			s.emit(rc, Event{Event: EventError, Token: sym, Err: d.Err.Error(), Iteration: rc.iteration})
		}
		if d.Settled {
			if d.Failed {
				rc.failStreak++
			} else {
				rc.failStreak = 0
			}
			ev := Event{Event: EventSettled, Token: sym, Record: d.Record, FailStreak: rc.failStreak, Iteration: rc.iteration}
			if p := d.Resolved; p != nil {
				ev.Kind, ev.TxHash, ev.Nonce = string(p.Kind), p.Hash.Hex(), p.Nonce
				s.metrics.IncSettled(string(p.Kind), !d.Failed)
			}
			if d.Record != nil {
				ev.Status = string(d.Record.Status)
			}
			s.emit(rc, ev)
		}
		if d.Record != nil {
			rc.unsaved = append(rc.unsaved, *d.Record)
		}
		if d.Changed {
			changed = true
		}
		log.Printf("--------------------")
	}
	return changed, rateLimited
}

// persist merges engine progress into the token list, writes it whole and
// appends the queued records. Records stay queued until a write succeeds.
func (s *Supervisor) persist(rc *runContext) {
	if err := s.cfg.Store.SaveTokens(s.mergeTokens(rc)); err != nil {
		log.Printf("Error (Save tokens): %v", err)
	}
	if len(rc.unsaved) == 0 {
		return
	}
	if err := s.cfg.Store.AppendTransactions(rc.unsaved); err != nil {
		log.Printf("Error (Writing transaction file): %v", err)
		return
	}
	log.Printf("Info: Transaction(s) saved in file successfully.")
	rc.unsaved = nil
}

// mergeTokens writes each engine's token into the shared list. An entry the
// operator edited since the engine last wrote it keeps the edited plan with
// the engine's progress. The swap retries if the list is replaced meanwhile.
func (s *Supervisor) mergeTokens(rc *runContext) []model.TokenConfig {
	for {
		cur := s.tokens.Load()
		next := model.CloneTokens(*cur)
		seen := make(map[common.Address]model.TokenFields)
		for i, t := range next {
			addr, err := ethutil.ChecksumAddress(t.Address)
			if err != nil {
				continue
			}
			e, ok := rc.engines[addr]
			if !ok {
				continue
			}
			if prev, ok := rc.seen[addr]; ok && prev == t.Fields() {
				next[i] = e.Token()
				seen[addr] = next[i].Fields()
				continue
			}
			next[i] = effectiveToken(e, t)
		}
		if s.tokens.CompareAndSwap(cur, &next) {
			for k, f := range seen {
				rc.seen[k] = f
			}
			return model.CloneTokens(next)
		}
	}
}

// checkStop applies the run-level stop conditions after an iteration.
func (s *Supervisor) checkStop(rc *runContext, listed map[common.Address]model.TokenConfig) {
	if budget := rc.settings.MaxFailAttempts; rc.failStreak >= budget {
		log.Printf(divider)
		rc.halt("WARNING: Bot reached \"Max Fail Transactions\" (%d) set in Settings. Restarting resets the counter.", budget)
		s.emit(rc, Event{Event: EventFailLimit, FailStreak: rc.failStreak, Iteration: rc.iteration})
		return
	}

	live := 0
	for _, k := range rc.keys {
		e := rc.engines[k]
		if e.Pending() != nil {
			live++
			continue
		}
		if _, ok := listed[k]; ok && !e.Token().Order.IsTerminal() {
			live++
		}
	}
	if live == 0 {
		log.Printf(divider)
		rc.halt("Info: All Tokens Limit Buy/Sell orders are filled.")
	}
}
