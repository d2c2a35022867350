// README: Ranker unit tests: determinism, tie-break, quality floor, fallback.
package rank

import (
	"context"
	"errors"
	"testing"

	"dispatch/internal/config"
	"dispatch/internal/modules/agent"
	"dispatch/internal/types"
)

type stubETA struct {
	etas map[types.ID]float64
	err  error
}

func (s *stubETA) ETASeconds(_ context.Context, from, _ types.Point) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	// Keyed lookup is impossible from the position alone in this stub, so
	// encode the answer in the longitude: eta = lng * 1000.
	return from.Lng * 1000, nil
}

func testParams() config.DispatchParams {
	p := config.DefaultDispatchParams()
	p.QualityFloor = 0.2
	return p
}

func cand(id types.ID, distM, quality float64) Candidate {
	return Candidate{
		Agent: agent.Agent{
			ID:       id,
			Position: types.Point{Lat: 0, Lng: distM / 1000},
			Quality:  quality,
		},
		DistanceM: distM,
	}
}

func TestRank_PrefersCloserCandidate(t *testing.T) {
	r := NewRanker(nil, nil, nil)
	got := r.Rank(context.Background(), types.Point{}, []Candidate{
		cand("far", 5000, 0.5),
		cand("near", 100, 0.5),
	}, testParams())
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Agent.ID != "near" {
		t.Fatalf("top = %s, want near", got[0].Agent.ID)
	}
}

func TestRank_Deterministic(t *testing.T) {
	r := NewRanker(nil, nil, nil)
	cands := []Candidate{
		cand("c", 300, 0.7),
		cand("a", 300, 0.7),
		cand("b", 1200, 0.9),
	}
	first := r.Rank(context.Background(), types.Point{}, cands, testParams())
	for i := 0; i < 10; i++ {
		again := r.Rank(context.Background(), types.Point{}, cands, testParams())
		if len(again) != len(first) {
			t.Fatalf("run %d: len changed", i)
		}
		for j := range first {
			if again[j].Agent.ID != first[j].Agent.ID || again[j].Score != first[j].Score {
				t.Fatalf("run %d: ordering changed at %d: %s vs %s", i, j, again[j].Agent.ID, first[j].Agent.ID)
			}
		}
	}
}

func TestRank_TieBreaksByAgentID(t *testing.T) {
	r := NewRanker(nil, nil, nil)
	// Identical candidates except for id: scores tie exactly.
	got := r.Rank(context.Background(), types.Point{}, []Candidate{
		cand("zed", 500, 0.5),
		cand("amy", 500, 0.5),
	}, testParams())
	if got[0].Agent.ID != "amy" || got[1].Agent.ID != "zed" {
		t.Fatalf("tie-break order = %s,%s, want amy,zed", got[0].Agent.ID, got[1].Agent.ID)
	}
}

func TestRank_QualityFloorExcludes(t *testing.T) {
	r := NewRanker(nil, nil, nil)
	got := r.Rank(context.Background(), types.Point{}, []Candidate{
		cand("good", 500, 0.8),
		cand("bad", 100, 0.1), // closer, but below the floor
	}, testParams())
	if len(got) != 1 || got[0].Agent.ID != "good" {
		t.Fatalf("got %+v, want only good", got)
	}
}

func TestRank_ETAFromProvider(t *testing.T) {
	r := NewRanker(&stubETA{}, nil, nil)
	got := r.Rank(context.Background(), types.Point{}, []Candidate{cand("a", 3000, 0.5)}, testParams())
	if len(got) != 1 {
		t.Fatal("no result")
	}
	if got[0].ETAFallback {
		t.Fatal("fallback used although provider answered")
	}
	// Stub encodes eta = lng*1000 = 3000 s.
	if got[0].ETASeconds != 3000 {
		t.Fatalf("eta = %v, want 3000", got[0].ETASeconds)
	}
}

func TestRank_FallbackOnProviderError(t *testing.T) {
	r := NewRanker(&stubETA{err: errors.New("routing down")}, nil, nil)
	p := testParams()
	got := r.Rank(context.Background(), types.Point{}, []Candidate{cand("a", 1000, 0.5)}, p)
	if len(got) != 1 {
		t.Fatal("no result")
	}
	if !got[0].ETAFallback {
		t.Fatal("fallback not flagged")
	}
	want := 1000 / p.AssumedSpeedMPS
	if got[0].ETASeconds != want {
		t.Fatalf("fallback eta = %v, want %v", got[0].ETASeconds, want)
	}
}

func TestRank_AcceptanceRateSignal(t *testing.T) {
	r := NewRanker(nil, nil, nil)
	reliable := cand("reliable", 500, 0.5)
	reliable.Agent.OffersSeen = 10
	reliable.Agent.OffersAccepted = 10
	flaky := cand("flaky", 500, 0.5)
	flaky.Agent.OffersSeen = 10
	flaky.Agent.OffersAccepted = 1

	got := r.Rank(context.Background(), types.Point{}, []Candidate{flaky, reliable}, testParams())
	if got[0].Agent.ID != "reliable" {
		t.Fatalf("top = %s, want reliable", got[0].Agent.ID)
	}
}
