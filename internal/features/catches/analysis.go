package catches

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"cofish.app/core/internal/common"
	"cofish.app/core/internal/oracle"
)

const defaultNote = "Analysis completed with multiple frame verification."

// AggregateFrames сводит оценки кадров: средние aliveScore и confidence,
// самый частый вид (при равенстве первый встреченный), описание рыбы
// берётся только из первого кадра.
func AggregateFrames(frames []oracle.FrameScore) (Analysis, error) {
	if len(frames) == 0 {
		return Analysis{}, fmt.Errorf("нет кадров для анализа: %w", common.ErrInvalidInput)
	}
	alive := make([]float64, len(frames))
	conf := make([]float64, len(frames))
	note := ""
	for i, f := range frames {
		alive[i] = f.AliveScore
		conf[i] = f.Confidence
		if note == "" {
			note = strings.TrimSpace(f.Note)
		}
	}
	if note == "" {
		note = defaultNote
	}
	return Analysis{
		AliveScore:  stat.Mean(alive, nil),
		Confidence:  stat.Mean(conf, nil),
		Species:     modeSpecies(frames),
		Fingerprint: strings.TrimSpace(frames[0].Fingerprint),
		Note:        note,
		Frames:      len(frames),
	}, nil
}

func modeSpecies(frames []oracle.FrameScore) string {
	counts := make(map[string]int)
	var order []string
	for _, f := range frames {
		sp := strings.TrimSpace(f.Species)
		if sp == "" {
			continue
		}
		if counts[sp] == 0 {
			order = append(order, sp)
		}
		counts[sp]++
	}
	best := ""
	for _, sp := range order {
		if counts[sp] > counts[best] {
			best = sp
		}
	}
	return best
}

// Decide применяет правило проверки: живая рыба и уникальный улов.
func Decide(t Thresholds, aliveScore, confidence float64, isUnique bool) Verdict {
	v := Verdict{
		IsAlive:  aliveScore >= t.Alive && confidence >= t.Confidence,
		IsUnique: isUnique,
	}
	v.Verified = v.IsAlive && v.IsUnique
	switch {
	case v.Verified:
	case !v.IsUnique:
		v.Reason = ReasonDuplicate
	default:
		v.Reason = ReasonNotAlive
	}
	return v
}

// CosineSimilarity косинус угла между векторами.
// Для векторов разной длины или нулевых возвращает 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}
