package eta

import (
	"math"
	"sync"
	"time"
)

const (
	maxErrorSamples   = 1000
	maxDurationsPer   = 50
	retrainMinSamples = 100
	retrainMinGap     = 7 * 24 * time.Hour
)

// historyKey buckets routes that should share an ETA baseline: same distance
// to 0.1 km, same altitude to the metre, same wind band of 50 km/h.
type historyKey struct {
	distanceKM float64
	altitudeM  float64
	windBand   float64
}

func keyFor(f Features) historyKey {
	return historyKey{
		distanceKM: math.Round(f.DistanceKM*10) / 10,
		altitudeM:  math.Round(f.AltitudeAvgM),
		windBand:   math.Round(f.WindSpeedKMH/50*100) / 100,
	}
}

type trainingSample struct {
	vector []float64
	actual float64
}

// History is the predictor's append-mostly outcome store: per-bucket actual
// durations for the blend, a bounded ring of recent error percentages, and
// the success-only training set.
type History struct {
	mu          sync.Mutex
	durations   map[historyKey][]float64
	errors      []float64
	samples     []trainingSample
	newSamples  int
	lastRetrain time.Time
}

func NewHistory() *History {
	return &History{
		durations:   make(map[historyKey][]float64),
		lastRetrain: time.Now(),
	}
}

func (h *History) Record(f Features, predictedMinutes, actualMinutes float64, success bool) {
	if actualMinutes <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	k := keyFor(f)
	durs := append(h.durations[k], actualMinutes)
	if len(durs) > maxDurationsPer {
		durs = durs[len(durs)-maxDurationsPer:]
	}
	h.durations[k] = durs

	if predictedMinutes > 0 {
		errPct := math.Abs(actualMinutes-predictedMinutes) / predictedMinutes * 100
		h.errors = append(h.errors, errPct)
		if len(h.errors) > maxErrorSamples {
			h.errors = h.errors[len(h.errors)-maxErrorSamples:]
		}
	}

	if success {
		h.samples = append(h.samples, trainingSample{vector: f.Vector(), actual: actualMinutes})
		h.newSamples++
	}
}

// SimilarMean returns the mean actual duration of past routes in the same
// bucket, and how many there are.
func (h *History) SimilarMean(f Features) (float64, int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	durs := h.durations[keyFor(f)]
	if len(durs) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, d := range durs {
		sum += d
	}
	return sum / float64(len(durs)), len(durs)
}

// MeanErrorPercent is the average absolute error of recent predictions.
func (h *History) MeanErrorPercent() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.errors) == 0 {
		return 0
	}
	sum := 0.0
	for _, e := range h.errors {
		sum += e
	}
	return sum / float64(len(h.errors))
}

func (h *History) ShouldRetrain() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.newSamples >= retrainMinSamples && time.Since(h.lastRetrain) >= retrainMinGap
}

func (h *History) MarkRetrained() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.newSamples = 0
	h.lastRetrain = time.Now()
}

// TrainingSet snapshots the success-only samples as parallel slices.
func (h *History) TrainingSet() ([][]float64, []float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	vectors := make([][]float64, len(h.samples))
	targets := make([]float64, len(h.samples))
	for i, s := range h.samples {
		vectors[i] = s.vector
		targets[i] = s.actual
	}
	return vectors, targets
}
