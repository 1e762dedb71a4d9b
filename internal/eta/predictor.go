package eta

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

const (
	ModelML        = "ml"
	ModelRuleBased = "rule_based"

	ruleBasedConfidence = 75
	mlConfidence        = 85
	blendConfidenceCap  = 98
)

// Prediction is one ETA estimate with its uncertainty envelope.
type Prediction struct {
	ETAMinutes         float64            `json:"eta_minutes"`
	ETADatetime        time.Time          `json:"eta_datetime"`
	Confidence         float64            `json:"confidence"`
	UncertaintyP10     float64            `json:"uncertainty_p10"`
	UncertaintyP90     float64            `json:"uncertainty_p90"`
	FactorImpacts      map[string]float64 `json:"factor_impacts"`
	ModelUsed          string             `json:"model_used"`
	SimilarRoutesCount int                `json:"similar_routes_count"`
	FeatureImportance  map[string]float64 `json:"feature_importance,omitempty"`
}

// Model is a trained regressor. Predict returns the point estimate plus the
// 10th/90th percentile spread; Ready reports whether training has happened.
type Model interface {
	Ready() bool
	Predict(vector []float64) (etaMinutes, p10, p90 float64, importance map[string]float64, err error)
	Train(vectors [][]float64, targets []float64) error
}

// Predictor blends a model (or the rule-based estimate) with the historical
// mean of similar routes, and drives retraining from recorded outcomes.
type Predictor struct {
	mu      sync.RWMutex
	model   Model
	history *History
}

func NewPredictor(model Model, history *History) *Predictor {
	if history == nil {
		history = NewHistory()
	}
	return &Predictor{model: model, history: history}
}

func (p *Predictor) History() *History { return p.history }

func (p *Predictor) Predict(f Features) Prediction {
	p.mu.RLock()
	model := p.model
	p.mu.RUnlock()

	var pred Prediction
	if model != nil && model.Ready() {
		eta, p10, p90, importance, err := model.Predict(f.Vector())
		if err == nil && eta > 0 {
			pred = Prediction{
				ETAMinutes:        eta,
				Confidence:        mlConfidence,
				UncertaintyP10:    p10,
				UncertaintyP90:    p90,
				ModelUsed:         ModelML,
				FactorImpacts:     ruleImpacts(f),
				FeatureImportance: importance,
			}
		} else {
			if err != nil {
				slog.Warn("model prediction failed, using rule-based estimate", slog.String("error", err.Error()))
			}
			pred = ruleBased(f)
		}
	} else {
		pred = ruleBased(f)
	}

	pred = p.blend(f, pred)
	if !f.StartTime.IsZero() {
		pred.ETADatetime = f.StartTime.Add(time.Duration(pred.ETAMinutes * float64(time.Minute)))
	}
	return pred
}

// ruleBased applies the deterministic speed-penalty chain.
func ruleBased(f Features) Prediction {
	maxSpeed := f.DroneMaxSpeedKMH
	if maxSpeed <= 0 {
		maxSpeed = 60
	}
	baseSpeed := maxSpeed * 0.8

	payload := math.Max(0.7, 1-math.Min(0.3, f.PayloadWeightKG/10*0.1))
	altitude := math.Max(0.8, 1-math.Min(0.2, f.AltitudeAvgM/1000*0.05))
	battery := 1.0
	if f.BatteryStart <= 50 {
		battery = math.Max(0.7, f.BatteryStart/50)
	}
	wind := 1 - math.Min(0.25, f.WindSpeedKMH/50*0.15)
	precip := 1 - math.Min(0.30, f.Precipitation*0.2)
	traffic := 1 - math.Min(0.15, f.AirTrafficDensity*0.1)

	effective := baseSpeed * payload * altitude * battery * wind * precip * traffic
	eta := f.DistanceKM / effective * 60 * 1.2 // 20% safety buffer

	return Prediction{
		ETAMinutes:     eta,
		Confidence:     ruleBasedConfidence,
		UncertaintyP10: eta * 0.85,
		UncertaintyP90: eta * 1.25,
		ModelUsed:      ModelRuleBased,
		FactorImpacts: map[string]float64{
			"payload":       payload,
			"altitude":      altitude,
			"battery":       battery,
			"wind":          wind,
			"precipitation": precip,
			"traffic":       traffic,
		},
	}
}

func ruleImpacts(f Features) map[string]float64 {
	return ruleBased(f).FactorImpacts
}

// blend pulls the estimate toward the mean duration of similar past routes.
func (p *Predictor) blend(f Features, pred Prediction) Prediction {
	mean, n := p.history.SimilarMean(f)
	pred.SimilarRoutesCount = n
	if n < 3 || pred.ETAMinutes <= 0 {
		return pred
	}

	w := math.Min(0.3, float64(n)/20)
	adjusted := (1-w)*pred.ETAMinutes + w*mean

	if math.Abs(adjusted-pred.ETAMinutes)/pred.ETAMinutes < 0.1 {
		pred.Confidence = math.Min(blendConfidenceCap, pred.Confidence+10)
	}
	pred.ETAMinutes = adjusted
	pred.UncertaintyP10 = adjusted * 0.85
	pred.UncertaintyP90 = adjusted * 1.25
	return pred
}

// RecordOutcome feeds an actual delivery back into the history and retrains
// the model when enough fresh samples have accumulated.
func (p *Predictor) RecordOutcome(f Features, predictedMinutes, actualMinutes float64, success bool) {
	p.history.Record(f, predictedMinutes, actualMinutes, success)

	if !p.history.ShouldRetrain() {
		return
	}

	p.mu.Lock()
	model := p.model
	p.mu.Unlock()
	if model == nil {
		return
	}

	vectors, targets := p.history.TrainingSet()
	if len(vectors) == 0 {
		return
	}
	if err := model.Train(vectors, targets); err != nil {
		slog.Error("model retrain failed", slog.String("error", err.Error()))
		return
	}
	p.history.MarkRetrained()
	slog.Info("eta model retrained", slog.Int("samples", len(vectors)))
}
