package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestHandlerExposesSeries(t *testing.T) {
	m := New()
	m.IncSubmitted("BUY")
	m.IncSubmitted("BUY")
	m.IncSettled("SELL", false)
	m.IncSubmitError("nonce too low")
	m.SetFailStreak(2)
	m.SetTokensTrading(3)
	m.SetWalletBalance("BNB", 1.5)
	m.ObserveIteration(750 * time.Millisecond)

	body := scrape(t, m)
	for _, want := range []string{
		`limitbot_tx_submitted_total{kind="BUY"} 2`,
		`limitbot_tx_settled_total{kind="SELL",status="fail"} 1`,
		`limitbot_submit_errors_total{reason="nonce too low"} 1`,
		`limitbot_consecutive_failures 2`,
		`limitbot_tokens_trading 3`,
		`limitbot_wallet_balance{asset="BNB"} 1.5`,
		`limitbot_iterations_total 1`,
		`limitbot_iteration_seconds_count 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IncSubmitted("BUY")
	m.IncSettled("BUY", true)
	m.SetNativePrice(300)
	m.ObserveIteration(time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d want 404", rec.Code)
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.IncDiscoveryError()
	if strings.Contains(scrape(t, b), "limitbot_discovery_errors_total 1") {
		t.Fatalf("series leaked between registries")
	}
}
