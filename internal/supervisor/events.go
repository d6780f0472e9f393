package supervisor

import (
	"log"
	"time"

	"amm-limitbot/internal/model"
)

// Event kinds.
const (
	EventStart     = "start"
	EventStage     = "stage"
	EventExcluded  = "excluded"
	EventSubmitted = "submitted"
	EventSettled   = "settled"
	EventError     = "error"
	EventFailLimit = "fail_limit"
	EventStopped   = "stopped"
)

// Event is a progress notification. It is sent on the Events channel and
// appended to the JSONL event log.
type Event struct {
	TsMs  int64  `json:"ts_ms"`
	RunID string `json:"run_id"`
	Event string `json:"event"`

	Stage string `json:"stage,omitempty"`
	Token string `json:"token,omitempty"`

	// Transaction fields.
	Kind   string                   `json:"kind,omitempty"` // APPROVE ALLOWANCE | BUY | SELL
	TxHash string                   `json:"tx_hash,omitempty"`
	Nonce  uint64                   `json:"nonce,omitempty"`
	Status string                   `json:"status,omitempty"`
	Record *model.TransactionRecord `json:"record,omitempty"`

	Iteration  int    `json:"iteration,omitempty"`
	FailStreak int    `json:"fail_streak,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Err        string `json:"err,omitempty"`

	UptimeMs int64 `json:"uptime_ms,omitempty"`
}

// emit fills the common fields and fans the event out. A full channel drops
// the event rather than block the run.
func (s *Supervisor) emit(rc *runContext, ev Event) {
	ev.TsMs = s.now().UnixMilli()
	ev.RunID = rc.id
	ev.UptimeMs = s.now().Sub(rc.startedAt).Milliseconds()

	if s.eventLog != nil {
		if err := s.eventLog.Write(ev); err != nil {
			log.Printf("[warn] event log write failed: %v", err)
		}
	}
	select {
	case s.events <- ev:
	default:
		s.dropped.Add(1)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func uptime(startedAt, now time.Time) time.Duration {
	return now.Sub(startedAt).Round(time.Second)
}
