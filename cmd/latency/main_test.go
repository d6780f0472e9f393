package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestRingKeepsNewestSamples(t *testing.T) {
	r := newRing(3)
	for i := int64(1); i <= 5; i++ {
		r.add(i)
	}
	got := r.snapshot()
	if len(got) != 3 || got[0] != 3 || got[1] != 4 || got[2] != 5 {
		t.Fatalf("got %v want [3 4 5]", got)
	}
}

func TestSummarize(t *testing.T) {
	st := summarize([]int64{50, 10, 40, 20, 30})
	if st.min != 10 || st.median != 30 || st.p95 != 50 || st.max != 50 {
		t.Fatalf("unexpected %+v", st)
	}
	if (summarize(nil) != stats{}) {
		t.Fatalf("empty input must give zero stats")
	}
}

func TestHeadsLoopRecordsLag(t *testing.T) {
	upgrader := websocket.Upgrader{}
	blockTime := time.Now().Add(-2 * time.Second).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, msg, err := conn.ReadMessage()
		if err != nil || !strings.Contains(string(msg), "newHeads") {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":1,"result":"0xabc"}`))
		head := fmt.Sprintf(`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xabc","result":{"number":"0x10","timestamp":"0x%x"}}}`, blockTime)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(head))
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	p := &probe{callMs: newRing(8), dialMs: newRing(8), headLag: newRing(8)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.headsLoop(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), 5*time.Second) }()

	deadline := time.Now().Add(5 * time.Second)
	for p.heads.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("headsLoop: %v", err)
	}
	lags := p.headLag.snapshot()
	if p.heads.Load() != 1 || len(lags) != 1 || lags[0] < 1000 {
		t.Fatalf("heads %d lags %v", p.heads.Load(), lags)
	}
}
