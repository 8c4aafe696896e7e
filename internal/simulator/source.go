package simulator

import (
	"math/rand"

	"caregiver-companion/internal/models"
)

// VitalsSource stands in for sensor hardware. Implementations are not safe
// for concurrent use; the monitor serializes access.
type VitalsSource interface {
	// HeartRate is the initial heart rate, in [65, 85).
	HeartRate() int
	// Oxygen is in [95, 99).
	Oxygen() int
	// Glucose is in [90, 120).
	Glucose() int
	MentalState() models.MentalState
	// Fluctuation is the signed per-tick heart-rate change, in [-3, +3].
	Fluctuation() int
	// Roll is a probability draw in [0, 1).
	Roll() float64
}

// RandomSource draws every value uniformly from math/rand.
type RandomSource struct {
	rng *rand.Rand
}

func NewRandomSource(seed int64) *RandomSource {
	return &RandomSource{rng: rand.New(rand.NewSource(seed))}
}

func (r *RandomSource) HeartRate() int {
	return 65 + r.rng.Intn(20)
}

func (r *RandomSource) Oxygen() int {
	return 95 + r.rng.Intn(4)
}

func (r *RandomSource) Glucose() int {
	return 90 + r.rng.Intn(30)
}

func (r *RandomSource) MentalState() models.MentalState {
	return models.MentalStates[r.rng.Intn(len(models.MentalStates))]
}

func (r *RandomSource) Fluctuation() int {
	return r.rng.Intn(7) - 3
}

func (r *RandomSource) Roll() float64 {
	return r.rng.Float64()
}

// SequenceSource replays fixed values. Once a sequence is exhausted it falls
// back to a neutral default: 75 bpm, 97%, 100 mg/dL, Calm, no fluctuation,
// and a roll of 1 so no probabilistic event fires.
type SequenceSource struct {
	HeartRates   []int
	Oxygens      []int
	Glucoses     []int
	MentalStates []models.MentalState
	Fluctuations []int
	Rolls        []float64
}

func (s *SequenceSource) HeartRate() int {
	return nextInt(&s.HeartRates, 75)
}

func (s *SequenceSource) Oxygen() int {
	return nextInt(&s.Oxygens, 97)
}

func (s *SequenceSource) Glucose() int {
	return nextInt(&s.Glucoses, 100)
}

func (s *SequenceSource) MentalState() models.MentalState {
	if len(s.MentalStates) == 0 {
		return models.MentalCalm
	}
	v := s.MentalStates[0]
	s.MentalStates = s.MentalStates[1:]
	return v
}

func (s *SequenceSource) Fluctuation() int {
	return nextInt(&s.Fluctuations, 0)
}

func (s *SequenceSource) Roll() float64 {
	if len(s.Rolls) == 0 {
		return 1
	}
	v := s.Rolls[0]
	s.Rolls = s.Rolls[1:]
	return v
}

func nextInt(seq *[]int, fallback int) int {
	if len(*seq) == 0 {
		return fallback
	}
	v := (*seq)[0]
	*seq = (*seq)[1:]
	return v
}
