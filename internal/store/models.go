package store

import (
	"slices"
	"time"
)

// VerificationStatus жизненный цикл улова.
// PENDING_VERIFICATION → VERIFIED | REJECTED, VERIFIED → AWARDED.
type VerificationStatus string

const (
	StatusPending  VerificationStatus = "PENDING_VERIFICATION"
	StatusVerified VerificationStatus = "VERIFIED"
	StatusRejected VerificationStatus = "REJECTED"
	StatusAwarded  VerificationStatus = "AWARDED"
)

// Valid проверяет, что статус один из известных.
func (s VerificationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusRejected, StatusAwarded:
		return true
	}
	return false
}

// User профиль пользователя. PointsBalance меняется только через ledger.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"displayName,omitempty"`
	PointsBalance int64     `json:"pointsBalance"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Catch улов. Координаты и результаты анализа необязательны.
type Catch struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"userId"`
	CreatedAt          time.Time          `json:"createdAt"`
	Species            string             `json:"species,omitempty"`
	Lat                *float64           `json:"lat,omitempty"`
	Lng                *float64           `json:"lng,omitempty"`
	VideoKey           string             `json:"videoKey,omitempty"`
	ThumbnailKey       string             `json:"thumbnailKey,omitempty"`
	BasePoints         int64              `json:"basePoints"`
	KarmaPoints        int64              `json:"karmaPoints"`
	VerificationStatus VerificationStatus `json:"verificationStatus"`
	AliveScore         *float64           `json:"aliveScore,omitempty"`
	AnalysisConfidence *float64           `json:"analysisConfidence,omitempty"`
	AnalysisNote       string             `json:"analysisNote,omitempty"`
	FishFingerprint    string             `json:"fishFingerprint,omitempty"`
	FishEmbedding      []float64          `json:"fishEmbedding,omitempty"`
	Version            int64              `json:"version"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// Location возвращает координаты, если они заданы.
func (c *Catch) Location() (lat, lng float64, ok bool) {
	if c.Lat == nil || c.Lng == nil {
		return 0, 0, false
	}
	return *c.Lat, *c.Lng, true
}

// TotalPoints базовые очки плюс карма.
func (c *Catch) TotalPoints() int64 {
	return c.BasePoints + c.KarmaPoints
}

// Clone глубокая копия (указатели и слайсы не разделяются).
func (c *Catch) Clone() *Catch {
	if c == nil {
		return nil
	}
	out := *c
	out.Lat = cloneFloat(c.Lat)
	out.Lng = cloneFloat(c.Lng)
	out.AliveScore = cloneFloat(c.AliveScore)
	out.AnalysisConfidence = cloneFloat(c.AnalysisConfidence)
	out.FishEmbedding = slices.Clone(c.FishEmbedding)
	return &out
}

// InfoPurchase покупка таргет-зоны. IncludedCatchIDs == nil означает,
// что поиск уловов не удался и список неизвестен; пустой слайс значит "уловов нет".
type InfoPurchase struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	CreatedAt        time.Time `json:"createdAt"`
	CenterLat        float64   `json:"centerLat"`
	CenterLng        float64   `json:"centerLng"`
	RadiusMiles      float64   `json:"radiusMiles"`
	SpeciesFilter    string    `json:"speciesFilter,omitempty"`
	BaseCostPoints   int64     `json:"baseCostPoints"`
	DiscountPercent  int64     `json:"discountPercent"`
	FinalCostPoints  int64     `json:"finalCostPoints"`
	AvgAgeHours      *float64  `json:"avgAgeHours,omitempty"`
	IncludedCatchIDs []string  `json:"includedCatchIds"`
	Version          int64     `json:"version"`
}

// Clone глубокая копия.
func (p *InfoPurchase) Clone() *InfoPurchase {
	if p == nil {
		return nil
	}
	out := *p
	out.AvgAgeHours = cloneFloat(p.AvgAgeHours)
	if p.IncludedCatchIDs != nil {
		out.IncludedCatchIDs = slices.Clone(p.IncludedCatchIDs)
	}
	return &out
}

// KarmaEvent аудит начисления кармы: помощник получил очки за улов бенефициара.
type KarmaEvent struct {
	ID                 string    `json:"id"`
	HelperUserID       string    `json:"helperUserId"`
	BeneficiaryUserID  string    `json:"beneficiaryUserId"`
	SourceCatchID      string    `json:"sourceCatchId"`
	BeneficiaryCatchID string    `json:"beneficiaryCatchId"`
	Points             int64     `json:"points"`
	DistanceMiles      float64   `json:"distanceMiles"`
	CreatedAt          time.Time `json:"createdAt"`
	Version            int64     `json:"version"`
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Float возвращает указатель на копию значения.
func Float(v float64) *float64 { return &v }
