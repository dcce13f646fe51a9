package geo

import (
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// Уровень ячеек покрытия. Ячейка 12 уровня около 2 км в поперечнике.
const (
	coverMinLevel = 4
	coverMaxLevel = 16
	coverMaxCells = 16
	// Небольшой запас радиуса, чтобы граничные точки не потерялись при округлении
	coverSlack = 1.01
)

// CellRange диапазон листовых ячеек S2 (включительно) в знаковом представлении.
type CellRange struct {
	Min int64
	Max int64
}

// Covering набор диапазонов ячеек, покрывающих круг поиска.
// Используется как грубый префильтр перед точной проверкой расстоянием.
type Covering []CellRange

// CellID возвращает листовую ячейку S2 для точки в виде int64 (для BIGINT в Postgres).
// Порядок внутри одной грани куба сохраняется, а диапазон ячейки не пересекает грани.
func CellID(lat, lng float64) int64 {
	return int64(s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lng)))
}

// CoverCap строит покрытие круга радиусом radiusMiles вокруг точки.
func CoverCap(lat, lng, radiusMiles float64) Covering {
	center := s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lng))
	angle := s1.Angle(radiusMiles * coverSlack / EarthRadiusMiles)
	capRegion := s2.CapFromCenterAngle(center, angle)

	rc := &s2.RegionCoverer{
		MinLevel: coverMinLevel,
		MaxLevel: coverMaxLevel,
		LevelMod: 1,
		MaxCells: coverMaxCells,
	}
	union := rc.Covering(capRegion)

	out := make(Covering, 0, len(union))
	for _, id := range union {
		out = append(out, CellRange{Min: int64(id.RangeMin()), Max: int64(id.RangeMax())})
	}
	return out
}

// Contains проверяет, попадает ли ячейка в одно из диапазонов покрытия.
func (c Covering) Contains(cell int64) bool {
	for _, r := range c {
		if cell >= r.Min && cell <= r.Max {
			return true
		}
	}
	return false
}

// Bounds раскладывает покрытие на два массива (для unnest в SQL).
func (c Covering) Bounds() (mins, maxs []int64) {
	mins = make([]int64, len(c))
	maxs = make([]int64, len(c))
	for i, r := range c {
		mins[i] = r.Min
		maxs[i] = r.Max
	}
	return mins, maxs
}
