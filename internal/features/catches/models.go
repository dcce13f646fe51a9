// Package catches ведёт улов от загрузки до начисления очков:
// PENDING_VERIFICATION → VERIFIED | REJECTED, VERIFIED → AWARDED.
package catches

import "cofish.app/core/internal/store"

// CreateInput данные новой загрузки. Координаты задаются парой или не задаются.
type CreateInput struct {
	VideoKey     string   `json:"videoKey" binding:"required"`
	ThumbnailKey string   `json:"thumbnailKey"`
	Species      string   `json:"species"`
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
}

// Analysis сводный результат анализа нескольких кадров.
type Analysis struct {
	AliveScore  float64   `json:"aliveScore"`
	Confidence  float64   `json:"confidence"`
	Species     string    `json:"species,omitempty"`
	Fingerprint string    `json:"fishFingerprint,omitempty"`
	Note        string    `json:"analysisNote,omitempty"`
	Embedding   []float64 `json:"-"`
	Frames      int       `json:"frames"`
}

// AnalysisUpdate запись результатов анализа в улов.
// Пустой Status оставляет статус как есть.
type AnalysisUpdate struct {
	CatchID     string
	AliveScore  float64
	Confidence  float64
	Note        string
	Status      store.VerificationStatus
	Species     string
	Fingerprint string
	Embedding   []float64
}

// Uniqueness результат проверки на дубликат. Если дубликата нет,
// SimilarCatchID и SimilarityScore описывают самый похожий улов (если был).
type Uniqueness struct {
	IsUnique        bool     `json:"isUnique"`
	SimilarityScore *float64 `json:"similarityScore,omitempty"`
	SimilarCatchID  string   `json:"similarCatchId,omitempty"`
}

// Причины отказа
const (
	ReasonDuplicate = "This catch appears to be a duplicate"
	ReasonNotAlive  = "Fish does not appear to be alive"
)

// Verdict решение по улову.
type Verdict struct {
	Verified bool   `json:"verified"`
	IsAlive  bool   `json:"isAlive"`
	IsUnique bool   `json:"isUnique"`
	Reason   string `json:"reason,omitempty"`
}

// Verification итог AnalyzeCatch.
type Verification struct {
	Catch      *store.Catch `json:"catch"`
	Analysis   Analysis     `json:"analysis"`
	Uniqueness Uniqueness   `json:"uniqueness"`
	Verdict
}

// Thresholds пороги проверки.
type Thresholds struct {
	Alive      float64
	Confidence float64
	// SameUser порог сходства со своими уловами, CrossUser с чужими
	SameUser  float64
	CrossUser float64
	// CrossUserEnabled включает сравнение с уловами других пользователей
	CrossUserEnabled bool
	ReferenceLimit   int
}

// DefaultThresholds рабочие значения.
func DefaultThresholds() Thresholds {
	return Thresholds{Alive: 0.7, Confidence: 0.6, SameUser: 0.75, CrossUser: 0.85, ReferenceLimit: 500}
}

// analyzeFramesRequest тело POST /catches/:id/analysis (кадры в base64).
type analyzeFramesRequest struct {
	Frames [][]byte `json:"frames" binding:"required,min=1,max=10"`
}
