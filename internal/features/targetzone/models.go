// Package targetzone продаёт обезличенную информацию об уловах рядом с точкой:
// превью активности с дневной квотой, покупку зоны за очки и карту
// со смещёнными кругами вместо точных координат.
package targetzone

import (
	"time"

	"cofish.app/core/internal/geo"
)

// Tier тариф зоны.
type Tier struct {
	Name        string  `json:"name"`
	RadiusMiles float64 `json:"radiusMiles"`
	// CostPoints цена покупки тарифа (Precision докупается поверх Standard)
	CostPoints int64 `json:"costPoints"`
	// ObfuscationRadiusMiles радиус круга, которым на карте показан улов
	ObfuscationRadiusMiles float64 `json:"obfuscationRadiusMiles"`
}

// Тарифы
var (
	Standard  = Tier{Name: "standard", RadiusMiles: 2, CostPoints: 100, ObfuscationRadiusMiles: 2}
	Precision = Tier{Name: "precision", RadiusMiles: 1, CostPoints: 200, ObfuscationRadiusMiles: 1}
)

// JitterFactor доля радиуса круга, на которую смещается центр.
// Истинная точка всегда остаётся внутри показанного круга.
const JitterFactor = 0.7

// Bucket уровень активности в превью.
type Bucket string

const (
	BucketNone Bucket = "NONE"
	BucketSome Bucket = "SOME"
	BucketGood Bucket = "GOOD"
	BucketHigh Bucket = "HIGH"
)

// Bounds прямоугольник зоны в градусах.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// NearbyCatch улов рядом с точкой (для внутренних расчётов, наружу не отдаётся).
type NearbyCatch struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Lat           float64   `json:"lat"`
	Lng           float64   `json:"lng"`
	Species       string    `json:"species,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	DistanceMiles float64   `json:"distanceMiles"`
}

// Preview результат превью.
type Preview struct {
	Bucket    Bucket `json:"bucket"`
	Label     string `json:"label"`
	Remaining int    `json:"previewsRemaining"`
	Bounds    Bounds `json:"bounds"`
}

// PurchaseInput параметры покупки.
type PurchaseInput struct {
	CenterLat      float64 `json:"centerLat"`
	CenterLng      float64 `json:"centerLng"`
	RadiusMiles    float64 `json:"radiusMiles" binding:"required,gt=0"`
	BaseCostPoints int64   `json:"baseCostPoints" binding:"required,gt=0"`
	SpeciesFilter  string  `json:"speciesFilter"`
}

// Circle смещённый круг на карте.
type Circle struct {
	ID          string  `json:"id"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	RadiusMiles float64 `json:"radiusMiles"`
}

// Overlay карта купленной зоны.
type Overlay struct {
	PurchaseID string    `json:"purchaseId"`
	Tier       string    `json:"tier"`
	Center     geo.Point `json:"center"`
	Bounds     Bounds    `json:"bounds"`
	Circles    []Circle  `json:"circles"`
}

type previewRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
