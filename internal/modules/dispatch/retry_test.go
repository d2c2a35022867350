// README: Retry/expansion policy and parameter store tests.
package dispatch

import (
	"testing"
	"time"

	"dispatch/internal/config"
)

func retryParams() config.DispatchParams {
	p := config.DefaultDispatchParams()
	p.InitialRadiusM = 5000
	p.RadiusFactor = 2
	p.MaxRadiusM = 20000
	p.MaxRounds = 3
	p.QualityFloor = 0.2
	p.QualityFloorRelax = 0.1
	return p
}

func TestNextRound_MonotonicExpansion(t *testing.T) {
	p := retryParams()
	r := FirstRound(p)
	if r.Round != 1 || r.RadiusM != 5000 {
		t.Fatalf("first round = %+v", r)
	}

	radii := []float64{r.RadiusM}
	for {
		next, ok := NextRound(r, p)
		if !ok {
			break
		}
		if next.RadiusM <= r.RadiusM {
			t.Fatalf("radius did not grow: %v -> %v", r.RadiusM, next.RadiusM)
		}
		if next.Round != r.Round+1 {
			t.Fatalf("round jumped: %d -> %d", r.Round, next.Round)
		}
		radii = append(radii, next.RadiusM)
		r = next
	}

	if len(radii) != 3 {
		t.Fatalf("rounds = %d, want 3", len(radii))
	}
	want := []float64{5000, 10000, 20000}
	for i := range want {
		if radii[i] != want[i] {
			t.Fatalf("radius[%d] = %v, want %v", i, radii[i], want[i])
		}
	}
}

func TestNextRound_RadiusCapped(t *testing.T) {
	p := retryParams()
	p.MaxRounds = 5
	r := FirstRound(p)
	for {
		next, ok := NextRound(r, p)
		if !ok {
			break
		}
		if next.RadiusM > p.MaxRadiusM {
			t.Fatalf("radius %v exceeds cap %v", next.RadiusM, p.MaxRadiusM)
		}
		r = next
	}
}

func TestNextRound_QualityFloorRelaxesToZero(t *testing.T) {
	p := retryParams()
	p.MaxRounds = 5
	r := FirstRound(p)
	for {
		next, ok := NextRound(r, p)
		if !ok {
			break
		}
		if next.QualityFloor > r.QualityFloor {
			t.Fatalf("floor tightened: %v -> %v", r.QualityFloor, next.QualityFloor)
		}
		if next.QualityFloor < 0 {
			t.Fatalf("floor went negative: %v", next.QualityFloor)
		}
		r = next
	}
}

func TestNextRound_GivesUpAfterMaxRounds(t *testing.T) {
	p := retryParams()
	r := RoundState{Round: 3, RadiusM: 20000, QualityFloor: 0}
	if _, ok := NextRound(r, p); ok {
		t.Fatal("expected give-up after max rounds")
	}
}

func TestParamStore_RejectsInvalidUpdate(t *testing.T) {
	s := NewParamStore(config.DefaultDispatchParams())
	bad := config.DefaultDispatchParams()
	bad.MaxRounds = 0
	if err := s.Update(bad); err == nil {
		t.Fatal("invalid params accepted")
	}
	if s.Load().MaxRounds != config.DefaultDispatchParams().MaxRounds {
		t.Fatal("invalid update mutated live params")
	}
}

func TestParamStore_SwapsAtomically(t *testing.T) {
	s := NewParamStore(config.DefaultDispatchParams())
	p := config.DefaultDispatchParams()
	p.OfferTimeout = 7 * time.Second
	p.TopK = 5
	if err := s.Update(p); err != nil {
		t.Fatal(err)
	}
	got := s.Load()
	if got.OfferTimeout != 7*time.Second || got.TopK != 5 {
		t.Fatalf("loaded params = %+v", got)
	}
}

func TestStore_TransitionRules(t *testing.T) {
	s := NewStore()
	req := &Request{ID: "r1", Status: StatusSearching}
	if err := s.Create(req); err != nil {
		t.Fatal(err)
	}
	if err := s.Create(req); err != ErrConflict {
		t.Fatalf("duplicate create err = %v, want ErrConflict", err)
	}

	if _, err := s.UpdateStatus("r1", StatusMatched); err != ErrInvalidState {
		t.Fatalf("searching->matched err = %v, want ErrInvalidState", err)
	}
	if _, err := s.UpdateStatus("r1", StatusOffering); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMatched("r1", "a1", time.Now(), 1); err != nil {
		t.Fatal(err)
	}
	// Matched exactly once.
	if err := s.SetMatched("r1", "a2", time.Now(), 1); err != ErrInvalidState {
		t.Fatalf("second match err = %v, want ErrInvalidState", err)
	}
	got, err := s.Get("r1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusMatched || got.AgentID == nil || *got.AgentID != "a1" {
		t.Fatalf("request after match = %+v", got)
	}
}
