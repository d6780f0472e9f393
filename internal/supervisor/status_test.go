package supervisor

import (
	"testing"
	"time"
)

func TestStatusTrackerHoldsBackRepeats(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	st := newStatusTracker("[test]", time.Minute)
	st.now = func() time.Time { return now }

	if !st.Set("connect", "retry") {
		t.Fatalf("first line must be written")
	}
	now = now.Add(30 * time.Second)
	if st.Set("connect", "retry") {
		t.Fatalf("repeat within a minute must be held back")
	}
	if !st.Set("connect", "connected") {
		t.Fatalf("a changed line must be written")
	}
	if !st.Set("other", "retry") {
		t.Fatalf("slots are independent")
	}
	now = now.Add(time.Minute)
	if !st.Set("connect", "connected") {
		t.Fatalf("repeat after the interval must be written")
	}
	st.Clear("connect")
	if !st.Set("connect", "connected") {
		t.Fatalf("cleared slot must be written")
	}
}
