package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gorilla/websocket"

	"amm-limitbot/internal/chain"
	"amm-limitbot/internal/config"
	"amm-limitbot/internal/jsonl"
	"amm-limitbot/internal/state"
)

type stats struct {
	min    int64
	median int64
	p95    int64
	max    int64
}

func summarize(values []int64) stats {
	if len(values) == 0 {
		return stats{}
	}
	sorted := make([]int64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	pick := func(q float64) int64 {
		idx := int(q * float64(len(sorted)))
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		return sorted[idx]
	}
	return stats{
		min:    sorted[0],
		median: pick(0.5),
		p95:    pick(0.95),
		max:    sorted[len(sorted)-1],
	}
}

// ring keeps the newest samples up to its capacity.
type ring struct {
	mu         sync.Mutex
	buf        []int64
	next       int
	hasWrapped bool
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 4096
	}
	return &ring{buf: make([]int64, 0, capacity)}
}

func (r *ring) add(v int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) < cap(r.buf) {
		r.buf = append(r.buf, v)
		return
	}
	r.hasWrapped = true
	r.buf[r.next] = v
	r.next++
	if r.next >= len(r.buf) {
		r.next = 0
	}
}

func (r *ring) snapshot() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) == 0 {
		return nil
	}
	out := make([]int64, 0, len(r.buf))
	if !r.hasWrapped || r.next == 0 {
		return append(out, r.buf...)
	}
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}

type sample struct {
	Ts      string `json:"ts"`
	Label   string `json:"label,omitempty"`
	Metric  string `json:"metric"`
	URL     string `json:"url"`
	TotalMs int64  `json:"total_ms,omitempty"`
	Block   uint64 `json:"block,omitempty"`
	LagMs   int64  `json:"lag_ms,omitempty"`
	Err     string `json:"err,omitempty"`
}

type probe struct {
	label  string
	writer *jsonl.Writer

	callMs   *ring
	callErrs atomic.Int64
	dialMs   *ring
	headLag  *ring
	heads    atomic.Int64
}

func (p *probe) record(s sample) {
	if p.writer == nil {
		return
	}
	s.Ts = time.Now().UTC().Format(time.RFC3339Nano)
	s.Label = p.label
	if err := p.writer.Write(s); err != nil {
		log.Printf("[warn] sample write: %v", err)
	}
}

// rpcLoop times eth_blockNumber round trips against url.
func (p *probe) rpcLoop(ctx context.Context, url string, interval, timeout time.Duration) error {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return fmt.Errorf("rpc dial: %w", err)
	}
	defer client.Close()

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		var head hexutil.Uint64
		err := client.CallContext(callCtx, &head, "eth_blockNumber")
		dur := time.Since(start)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.callErrs.Add(1)
			p.record(sample{Metric: "rpc_block_number", URL: url, TotalMs: dur.Milliseconds(), Err: err.Error()})
			if chain.IsRateLimited(err) {
				log.Printf("[warn] rate limited by %s", url)
			}
		} else {
			p.callMs.add(dur.Milliseconds())
			p.record(sample{Metric: "rpc_block_number", URL: url, TotalMs: dur.Milliseconds(), Block: uint64(head)})
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

type headNotification struct {
	Params struct {
		Result struct {
			Number    hexutil.Uint64 `json:"number"`
			Timestamp hexutil.Uint64 `json:"timestamp"`
		} `json:"result"`
	} `json:"params"`
}

// headsLoop subscribes to newHeads over a websocket and records how long after
// the block timestamp each header arrives.
func (p *probe) headsLoop(ctx context.Context, wsURL string, readTimeout time.Duration) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Proxy:            http.ProxyFromEnvironment,
	}
	dialStart := time.Now()
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	dialDur := time.Since(dialStart)
	p.dialMs.add(dialDur.Milliseconds())
	if err != nil {
		p.record(sample{Metric: "ws_dial", URL: wsURL, TotalMs: dialDur.Milliseconds(), Err: err.Error()})
		return fmt.Errorf("ws dial: %w", err)
	}
	defer conn.Close()
	p.record(sample{Metric: "ws_dial", URL: wsURL, TotalMs: dialDur.Milliseconds()})

	sub := []byte(`{"jsonrpc":"2.0","id":1,"method":"eth_subscribe","params":["newHeads"]}`)
	_ = conn.SetWriteDeadline(time.Now().Add(3 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		return fmt.Errorf("ws subscribe: %w", err)
	}

	// Close the socket on context cancel to unblock ReadMessage().
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		recvAt := time.Now()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ws read: %w", err)
		}
		var n headNotification
		if err := json.Unmarshal(msg, &n); err != nil || n.Params.Result.Number == 0 {
			continue
		}
		ts := time.Unix(int64(n.Params.Result.Timestamp), 0)
		lag := recvAt.Sub(ts).Milliseconds()
		p.heads.Add(1)
		p.headLag.add(lag)
		p.record(sample{Metric: "ws_new_head", URL: wsURL, Block: uint64(n.Params.Result.Number), LagMs: lag})
	}
}

func fmtStat(st stats, n int) string {
	if n == 0 {
		return "n=0"
	}
	return fmt.Sprintf("n=%d min=%dms p50=%dms p95=%dms max=%dms", n, st.min, st.median, st.p95, st.max)
}

func (p *probe) printSummary(hasWS bool) {
	calls := p.callMs.snapshot()
	log.Printf("[%s] rpc eth_blockNumber %s errors=%d", p.label, fmtStat(summarize(calls), len(calls)), p.callErrs.Load())
	if hasWS {
		dials := p.dialMs.snapshot()
		lags := p.headLag.snapshot()
		log.Printf("[%s] ws dial %s", p.label, fmtStat(summarize(dials), len(dials)))
		log.Printf("[%s] ws newHeads lag %s heads=%d", p.label, fmtStat(summarize(lags), len(lags)), p.heads.Load())
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.LUTC)
	log.SetOutput(os.Stdout)

	if err := config.LoadEnv(); err != nil {
		log.Printf("[warn] %v", err)
	}

	var (
		label       string
		wsURL       string
		outFile     string
		duration    time.Duration
		interval    time.Duration
		timeout     time.Duration
		readTimeout time.Duration
		printEvery  time.Duration
		sampleCap   int
	)
	flag.StringVar(&label, "label", "", "Label attached to printed summaries and samples")
	flag.StringVar(&wsURL, "ws", os.Getenv("BSC_WS_URL"), "Optional websocket endpoint for newHeads (default: node if ws://)")
	flag.StringVar(&outFile, "out", "", "Optional JSONL file receiving every sample")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Probe duration (0 = until Ctrl+C)")
	flag.DurationVar(&interval, "interval", time.Second, "Delay between eth_blockNumber calls")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "Per-call timeout")
	flag.DurationVar(&readTimeout, "read-timeout", 30*time.Second, "Websocket read timeout")
	flag.DurationVar(&printEvery, "print-every", 10*time.Second, "Summary interval")
	flag.IntVar(&sampleCap, "sample-cap", 4096, "Samples kept per metric")
	cfg, err := config.Parse(flag.CommandLine, os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	node := cfg.Node
	if node == "" {
		settings, err := state.NewStore(cfg.Paths()).LoadSettings()
		if err != nil {
			log.Fatalf("[fatal] %v", err)
		}
		node = settings.Node
	}
	if node, err = chain.ValidateNodeURL(node); err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	if strings.TrimSpace(wsURL) == "" && strings.HasPrefix(node, "ws") {
		wsURL = node
	}
	if label == "" {
		label = strconv.Itoa(os.Getpid())
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx := baseCtx
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(baseCtx, duration)
		defer cancel()
	}

	p := &probe{
		label:   label,
		writer:  jsonl.New(outFile),
		callMs:  newRing(sampleCap),
		dialMs:  newRing(sampleCap),
		headLag: newRing(sampleCap),
	}
	if p.writer != nil {
		defer p.writer.Close()
	}

	log.Printf("Latency probe starting")
	log.Printf("Node: %s (eth_blockNumber every %s)", node, interval)
	if wsURL != "" {
		log.Printf("Heads: %s (newHeads subscription)", wsURL)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := p.rpcLoop(ctx, node, interval, timeout); err != nil && ctx.Err() == nil {
			log.Printf("[warn] %v", err)
		}
	}()
	if wsURL != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.headsLoop(ctx, wsURL, readTimeout); err != nil && ctx.Err() == nil {
				log.Printf("[warn] %v", err)
			}
		}()
	}

	printTicker := time.NewTicker(printEvery)
	defer printTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			log.Printf("Final summary:")
			p.printSummary(wsURL != "")
			return
		case <-printTicker.C:
			p.printSummary(wsURL != "")
		}
	}
}
