// README: Shared value types used across modules.
package types

// ID identifies an agent, request, or offer.
type ID string

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}
