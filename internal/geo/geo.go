// Package geo содержит геометрию на сфере: расстояние по гаверсинусу,
// перевод миль в градусы и сдвиг точки (джиттер) для обфускации зон.
package geo

import (
	"math"
	"math/rand/v2"
)

const (
	// EarthRadiusMiles средний радиус Земли в милях
	EarthRadiusMiles = 3958.8
	// MilesPerDegreeLat миль в одном градусе широты (приближение)
	MilesPerDegreeLat = 69.0
)

// Point координата в градусах.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid проверяет диапазоны широты и долготы.
func (p Point) Valid() bool {
	return ValidCoordinates(p.Lat, p.Lng)
}

// ValidCoordinates: широта в [-90,90], долгота в [-180,180], без NaN.
func ValidCoordinates(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// HaversineMiles возвращает расстояние по большому кругу в милях.
// Симметрична, для совпадающих точек даёт 0.
func HaversineMiles(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	// Округление может дать a чуть больше 1
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMiles * c
}

// Distance расстояние между двумя точками в милях.
func Distance(a, b Point) float64 {
	return HaversineMiles(a.Lat, a.Lng, b.Lat, b.Lng)
}

// MilesToDegreesLat переводит мили в градусы широты.
func MilesToDegreesLat(miles float64) float64 {
	return miles / MilesPerDegreeLat
}

// MilesToDegreesLng переводит мили в градусы долготы на широте atLat.
// Приближение для рыболовных широт: у полюсов cos(atLat) стремится к нулю
// и результат неограниченно растёт. Вызывающий отвечает за разумную широту.
func MilesToDegreesLng(miles, atLat float64) float64 {
	return miles / (MilesPerDegreeLat * math.Cos(toRad(atLat)))
}

// Destination возвращает точку на расстоянии distanceMiles от (lat,lng)
// по азимуту bearing (радианы, 0 = север, по часовой).
func Destination(lat, lng, distanceMiles, bearing float64) Point {
	delta := distanceMiles / EarthRadiusMiles
	lat1 := toRad(lat)
	lng1 := toRad(lng)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(bearing))
	lng2 := lng1 + math.Atan2(
		math.Sin(bearing)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
	)
	return Point{Lat: toDeg(lat2), Lng: normalizeLng(toDeg(lng2))}
}

func normalizeLng(lng float64) float64 {
	lng = math.Mod(lng+540, 360) - 180
	if lng == -180 {
		return 180
	}
	return lng
}

// Rand источник случайных чисел в [0,1).
type Rand interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// DefaultRand потокобезопасный источник на базе math/rand/v2.
var DefaultRand Rand = globalRand{}

// JitterPoint сдвигает точку на случайное расстояние d из [0, maxRadiusMiles)
// в случайном направлении. Расстояние до исходной точки всегда меньше радиуса.
// Радиус берётся равномерно (не по площади), поэтому точки тяготеют к центру.
func JitterPoint(lat, lng, maxRadiusMiles float64, rnd Rand) Point {
	if rnd == nil {
		rnd = DefaultRand
	}
	if maxRadiusMiles <= 0 {
		return Point{Lat: lat, Lng: lng}
	}
	d := rnd.Float64() * maxRadiusMiles
	theta := rnd.Float64() * 2 * math.Pi
	return Destination(lat, lng, d, theta)
}
