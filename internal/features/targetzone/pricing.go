package targetzone

import "cofish.app/core/internal/geo"

// ZoneHalfSideMiles половина стороны квадрата зоны (15x15 миль).
const ZoneHalfSideMiles = 7.5

// Tiers доступные тарифы.
func Tiers() []Tier {
	return []Tier{Standard, Precision}
}

// TierForRadius тариф по радиусу покупки: 1 миля Precision, иначе Standard.
func TierForRadius(radiusMiles float64) Tier {
	if radiusMiles == Precision.RadiusMiles {
		return Precision
	}
	return Standard
}

// LookupTier тариф с ровно таким радиусом. Другие радиусы не продаются.
func LookupTier(radiusMiles float64) (Tier, bool) {
	for _, t := range Tiers() {
		if t.RadiusMiles == radiusMiles {
			return t, true
		}
	}
	return Tier{}, false
}

// MinCostPoints минимальная цена покупки тарифа.
// Precision продаётся только вместе со Standard, поэтому его цена накопительная.
func (t Tier) MinCostPoints() int64 {
	if t.Name == Precision.Name {
		return Standard.CostPoints + Precision.CostPoints
	}
	return t.CostPoints
}

// BucketFor переводит число уловов в уровень активности.
func BucketFor(count int) Bucket {
	switch {
	case count <= 0:
		return BucketNone
	case count <= 3:
		return BucketSome
	case count <= 10:
		return BucketGood
	default:
		return BucketHigh
	}
}

// Label подпись уровня для UI.
func (b Bucket) Label() string {
	switch b {
	case BucketSome:
		return "Some recent activity (1–3)"
	case BucketGood:
		return "Good activity (4–10)"
	case BucketHigh:
		return "High activity (10+)"
	default:
		return "No recent reports"
	}
}

// ZoneBounds квадрат 15x15 миль вокруг центра.
func ZoneBounds(center geo.Point) Bounds {
	dLat := geo.MilesToDegreesLat(ZoneHalfSideMiles)
	dLng := geo.MilesToDegreesLng(ZoneHalfSideMiles, center.Lat)
	return Bounds{
		North: center.Lat + dLat,
		South: center.Lat - dLat,
		East:  center.Lng + dLng,
		West:  center.Lng - dLng,
	}
}
