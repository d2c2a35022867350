// README: Registry unit tests; the lease CAS is exercised under heavy concurrency.
package agent

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dispatch/internal/types"
)

func testTime() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newTestRegistry() *Registry {
	return NewRegistry().WithClock(testTime)
}

func reportAgent(r *Registry, id types.ID) Agent {
	return r.Report(id, types.Point{Lat: 25.03, Lng: 121.56}, testTime(), 0, 0)
}

func TestReport_CreatesOnFirstSight(t *testing.T) {
	r := newTestRegistry()
	a := reportAgent(r, "a1")
	if a.State != StateAvailable {
		t.Fatalf("new agent state = %s, want available", a.State)
	}
	if a.Quality != 0.5 {
		t.Fatalf("new agent quality = %v, want 0.5", a.Quality)
	}
	got, ok := r.Get("a1")
	if !ok || got.ID != "a1" {
		t.Fatalf("Get after Report: ok=%v agent=%+v", ok, got)
	}
}

func TestTryAcquire_ExclusivePerAgent(t *testing.T) {
	r := newTestRegistry()
	reportAgent(r, "a1")
	exp := testTime().Add(15 * time.Second)

	if err := r.TryAcquire("a1", "req1", exp); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := r.TryAcquire("a1", "req2", exp); !errors.Is(err, ErrLeaseHeld) {
		t.Fatalf("second acquire err = %v, want ErrLeaseHeld", err)
	}
	holder, ok := r.LeaseHolder("a1")
	if !ok || holder != "req1" {
		t.Fatalf("lease holder = %q ok=%v, want req1", holder, ok)
	}
}

func TestTryAcquire_ExpiredLeaseIsFree(t *testing.T) {
	r := newTestRegistry()
	reportAgent(r, "a1")
	if err := r.TryAcquire("a1", "req1", testTime().Add(-time.Second)); err != nil {
		t.Fatalf("acquire with past expiry: %v", err)
	}
	if err := r.TryAcquire("a1", "req2", testTime().Add(time.Minute)); err != nil {
		t.Fatalf("acquire over expired lease: %v", err)
	}
}

func TestRelease_OnlyByHolder(t *testing.T) {
	r := newTestRegistry()
	reportAgent(r, "a1")
	exp := testTime().Add(15 * time.Second)
	if err := r.TryAcquire("a1", "req1", exp); err != nil {
		t.Fatal(err)
	}
	if err := r.Release("a1", "req2"); !errors.Is(err, ErrLeaseMismatch) {
		t.Fatalf("release by non-holder err = %v, want ErrLeaseMismatch", err)
	}
	if err := r.Release("a1", "req1"); err != nil {
		t.Fatalf("release by holder: %v", err)
	}
	// Released agent is acquirable again.
	if err := r.TryAcquire("a1", "req2", exp); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	// Double release of a freed lease is a no-op.
	if err := r.Release("a1", "req2"); err != nil {
		t.Fatal(err)
	}
	if err := r.Release("a1", "req2"); err != nil {
		t.Fatalf("double release err = %v, want nil", err)
	}
}

func TestAssign_ConvertsLeaseAndCountsAcceptance(t *testing.T) {
	r := newTestRegistry()
	reportAgent(r, "a1")
	exp := testTime().Add(15 * time.Second)
	if err := r.TryAcquire("a1", "req1", exp); err != nil {
		t.Fatal(err)
	}
	if err := r.Assign("a1", "req2"); !errors.Is(err, ErrLeaseMismatch) {
		t.Fatalf("assign by non-holder err = %v, want ErrLeaseMismatch", err)
	}
	if err := r.Assign("a1", "req1"); err != nil {
		t.Fatal(err)
	}
	a, _ := r.Get("a1")
	if a.State != StateAssigned {
		t.Fatalf("state after assign = %s, want assigned", a.State)
	}
	if a.OffersSeen != 1 || a.OffersAccepted != 1 {
		t.Fatalf("stats = %d/%d, want 1/1", a.OffersAccepted, a.OffersSeen)
	}
	if a.AcceptanceRate() != 1 {
		t.Fatalf("acceptance rate = %v, want 1", a.AcceptanceRate())
	}
}

// TestTryAcquire_ConcurrentSingleWinner fuzzes the core invariant: N requests
// racing for one agent must produce exactly one lease.
func TestTryAcquire_ConcurrentSingleWinner(t *testing.T) {
	const iterations = 200
	const racers = 16

	for i := 0; i < iterations; i++ {
		r := NewRegistry()
		reportAgent(r, "a1")
		exp := time.Now().Add(time.Minute)

		var wins int64
		var wg sync.WaitGroup
		for g := 0; g < racers; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				req := types.ID(fmt.Sprintf("req-%d", g))
				if err := r.TryAcquire("a1", req, exp); err == nil {
					atomic.AddInt64(&wins, 1)
				}
			}(g)
		}
		wg.Wait()
		if wins != 1 {
			t.Fatalf("iteration %d: %d winners, want exactly 1", i, wins)
		}
	}
}

func TestCandidates_Filters(t *testing.T) {
	r := newTestRegistry()
	reportAgent(r, "good")
	reportAgent(r, "lowq")
	reportAgent(r, "busy")
	reportAgent(r, "offline")
	reportAgent(r, "wrongclass")

	if err := r.SetQuality("good", 0.9); err != nil {
		t.Fatal(err)
	}
	if err := r.SetQuality("lowq", 0.1); err != nil {
		t.Fatal(err)
	}
	if err := r.TryAcquire("busy", "other", testTime().Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := r.SetState("offline", StateUnavailable); err != nil {
		t.Fatal(err)
	}
	// Classes are set on the snapshot path only via Report; emulate a class
	// restriction through a direct entry mutation helper.
	if e, ok := r.get("wrongclass"); ok {
		e.mu.Lock()
		e.agent.Classes = []string{"xl"}
		e.mu.Unlock()
	}

	ids := []types.ID{"good", "lowq", "busy", "offline", "wrongclass", "ghost"}
	got := r.Candidates(ids, "standard", 0.2)
	if len(got) != 1 || got[0].ID != "good" {
		t.Fatalf("candidates = %+v, want only good", got)
	}

	// Relaxing the floor readmits the low-quality agent, order preserved.
	got = r.Candidates(ids, "standard", 0.0)
	if len(got) != 2 || got[0].ID != "good" || got[1].ID != "lowq" {
		t.Fatalf("relaxed candidates = %+v, want good,lowq", got)
	}
}

func TestSetState_DropsLease(t *testing.T) {
	r := newTestRegistry()
	reportAgent(r, "a1")
	if err := r.TryAcquire("a1", "req1", testTime().Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := r.SetState("a1", StateUnavailable); err != nil {
		t.Fatal(err)
	}
	if _, held := r.LeaseHolder("a1"); held {
		t.Fatal("lease survived availability transition")
	}
}
