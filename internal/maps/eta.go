// README: Google Maps backed arrival-time estimates.
package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"dispatch/internal/types"
)

// ETAService estimates driving time via the Distance Matrix API. It satisfies
// rank.ETAProvider; the ranker falls back to straight-line estimates when a
// call fails, so transient API trouble degrades ranking instead of dispatch.
type ETAService struct {
	client *maps.Client
}

// NewETAService creates an ETAService with the given API key.
func NewETAService(apiKey string) (*ETAService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &ETAService{client: client}, nil
}

// ETASeconds returns the driving duration from an agent position to the
// request origin.
func (s *ETAService) ETASeconds(ctx context.Context, from, to types.Point) (float64, error) {
	resp, err := s.client.DistanceMatrix(ctx, &maps.DistanceMatrixRequest{
		Origins:      []string{fmt.Sprintf("%f,%f", from.Lat, from.Lng)},
		Destinations: []string{fmt.Sprintf("%f,%f", to.Lat, to.Lng)},
		Mode:         maps.TravelModeDriving,
	})
	if err != nil {
		return 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return 0, fmt.Errorf("no route found")
	}
	el := resp.Rows[0].Elements[0]
	if el.Status != "OK" {
		return 0, fmt.Errorf("no route found: %s", el.Status)
	}
	return el.Duration.Seconds(), nil
}
