package geo

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineBasics(t *testing.T) {
	assert.Equal(t, 0.0, HaversineMiles(40.7, -74.0, 40.7, -74.0))

	d1 := HaversineMiles(40.7128, -74.0060, 34.0522, -118.2437)
	d2 := HaversineMiles(34.0522, -118.2437, 40.7128, -74.0060)
	assert.InDelta(t, d1, d2, 1e-9)
	// Нью-Йорк - Лос-Анджелес около 2445 миль
	assert.InDelta(t, 2445, d1, 10)
}

func TestHaversineAlongMeridian(t *testing.T) {
	dLat := MilesToDegreesLat(69)
	assert.InDelta(t, 1.0, dLat, 1e-12)
	// 1 градус широты около 69.09 мили
	assert.InDelta(t, 69, HaversineMiles(10, 20, 10+dLat, 20), 0.2)
}

func TestMilesToDegreesLng(t *testing.T) {
	assert.InDelta(t, 1.0, MilesToDegreesLng(69, 0), 1e-12)
	assert.InDelta(t, 2.0, MilesToDegreesLng(69, 60), 1e-9)
	// у полюса вырождается, значение не ограничивается
	assert.Greater(t, MilesToDegreesLng(1, 89.99), 80.0)
	assert.Greater(t, MilesToDegreesLng(1, 90), 1e12)
}

func TestValidCoordinates(t *testing.T) {
	assert.True(t, ValidCoordinates(0, 0))
	assert.True(t, ValidCoordinates(-90, 180))
	assert.False(t, ValidCoordinates(91, 0))
	assert.False(t, ValidCoordinates(0, -181))
	assert.False(t, ValidCoordinates(math.NaN(), 0))
}

func TestDestinationDistance(t *testing.T) {
	for _, bearing := range []float64{0, math.Pi / 3, math.Pi, 4} {
		p := Destination(45, -122, 1.5, bearing)
		assert.InDelta(t, 1.5, HaversineMiles(45, -122, p.Lat, p.Lng), 1e-6)
	}
}

func TestDestinationWrapsAntimeridian(t *testing.T) {
	p := Destination(0, 179.99, 5, math.Pi/2)
	assert.True(t, p.Lng < 0, "долгота должна перейти через 180: %v", p.Lng)
	assert.InDelta(t, 5, HaversineMiles(0, 179.99, p.Lat, p.Lng), 1e-6)
}

func TestJitterStaysInsideRadius(t *testing.T) {
	rnd := rand.New(rand.NewPCG(1, 2))
	centers := []Point{{Lat: 47.6, Lng: -122.3}, {Lat: -33.9, Lng: 151.2}, {Lat: 70.1, Lng: 25.7}}

	for _, c := range centers {
		for _, radius := range []float64{0.7, 1.4} {
			for i := 0; i < 5000; i++ {
				p := JitterPoint(c.Lat, c.Lng, radius, rnd)
				require.Less(t, HaversineMiles(c.Lat, c.Lng, p.Lat, p.Lng), radius)
			}
		}
	}
}

func TestJitterZeroRadius(t *testing.T) {
	p := JitterPoint(10, 20, 0, nil)
	assert.Equal(t, Point{Lat: 10, Lng: 20}, p)
}

type fixedRand []float64

func (f *fixedRand) Float64() float64 {
	v := (*f)[0]
	*f = (*f)[1:]
	return v
}

func TestJitterUsesUniformRadius(t *testing.T) {
	r := fixedRand{0.5, 0}
	p := JitterPoint(0, 0, 2, &r)
	// d = 1 миля строго на север
	assert.InDelta(t, 1.0, HaversineMiles(0, 0, p.Lat, p.Lng), 1e-9)
	assert.InDelta(t, 0, p.Lng, 1e-9)
	assert.Greater(t, p.Lat, 0.0)
}

func TestCoveringContainsNearbyPoints(t *testing.T) {
	center := Point{Lat: 27.77, Lng: -82.64}
	cov := CoverCap(center.Lat, center.Lng, 2)
	require.NotEmpty(t, cov)

	assert.True(t, cov.Contains(CellID(center.Lat, center.Lng)))
	for _, bearing := range []float64{0, 1, 2, 3, 4, 5, 6} {
		p := Destination(center.Lat, center.Lng, 1.99, bearing)
		assert.True(t, cov.Contains(CellID(p.Lat, p.Lng)), "bearing %v", bearing)
	}

	far := Destination(center.Lat, center.Lng, 50, 0)
	assert.False(t, cov.Contains(CellID(far.Lat, far.Lng)))

	mins, maxs := cov.Bounds()
	require.Len(t, mins, len(cov))
	for i := range mins {
		assert.LessOrEqual(t, mins[i], maxs[i])
	}
}

func TestCoveringSouthernHemisphereFaces(t *testing.T) {
	// Грани 4 и 5 дают отрицательные int64, сравнение внутри грани должно работать
	center := Point{Lat: -60, Lng: 100}
	cov := CoverCap(center.Lat, center.Lng, 3)
	p := Destination(center.Lat, center.Lng, 2.5, 2)
	assert.True(t, cov.Contains(CellID(p.Lat, p.Lng)))
}
