package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6371e3

// ErrUnavailable is returned when no position fix could be obtained.
var ErrUnavailable = errors.New("location unavailable")

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) String() string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lng, 'f', -1, 64)
}

// Result is the outcome of a proximity check.
type Result struct {
	WithinRange    bool
	DistanceMeters float64
}

// Distance returns the haversine distance between a and b in meters.
func Distance(a, b Point) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	dPhi := (b.Lat - a.Lat) * math.Pi / 180
	dLambda := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// Verify checks whether device lies within toleranceMeters of class.
// The boundary is inclusive.
func Verify(device, class Point, toleranceMeters float64) Result {
	d := Distance(device, class)
	return Result{WithinRange: d <= toleranceMeters, DistanceMeters: d}
}

// ParsePoint parses "lat,lng".
func ParsePoint(s string) (Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Point{}, fmt.Errorf("geo: invalid point %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Point{}, fmt.Errorf("geo: invalid latitude in %q: %w", s, err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Point{}, fmt.Errorf("geo: invalid longitude in %q: %w", s, err)
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return Point{}, fmt.Errorf("geo: point %q out of range", s)
	}
	return Point{Lat: lat, Lng: lng}, nil
}

// Locator yields the device's current position.
type Locator interface {
	CurrentPosition(ctx context.Context) (Point, error)
}

// Static always reports the same position.
type Static Point

// CurrentPosition implements Locator.
func (s Static) CurrentPosition(context.Context) (Point, error) {
	return Point(s), nil
}

// Fallback asks Primary first and falls back to Default when it fails.
// A nil Primary is treated as a denied fix.
type Fallback struct {
	Primary Locator
	Default *Point
}

// CurrentPosition implements Locator.
func (f Fallback) CurrentPosition(ctx context.Context) (Point, error) {
	if f.Primary != nil {
		p, err := f.Primary.CurrentPosition(ctx)
		if err == nil {
			return p, nil
		}
	}
	if f.Default == nil {
		return Point{}, ErrUnavailable
	}
	return *f.Default, nil
}
