package guardrail

import (
	"math"

	"github.com/lumenworks/ragcore/internal/search"
	"github.com/lumenworks/ragcore/internal/tenant"
)

// mlFeatures mix weights: score range, inverse variance, top-to-mean ratio,
// rank correlation, result density.
var mlFeatureWeights = [5]float64{0.2, 0.3, 0.3, 0.1, 0.1}

// AlgorithmScores are the guardrail sub-scores, each in [0,1].
// RerankerConfidence is present only when the reranker actually ran.
type AlgorithmScores struct {
	Statistical        float64  `json:"statistical"`
	Threshold          float64  `json:"threshold"`
	MLFeatures         float64  `json:"mlFeatures"`
	RerankerConfidence *float64 `json:"rerankerConfidence,omitempty"`
}

// Score is the ensemble answerability score attached to each decision.
type Score struct {
	Confidence float64         `json:"confidence"`
	Stats      Stats           `json:"scoreStats"`
	Algorithms AlgorithmScores `json:"algorithmScores"`
	Reasoning  string          `json:"reasoning"`
}

// statisticalScore: 0.4·min(mean,1) + 0.3·min(max,1) + 0.3·max(0, 1−stdDev/0.5).
func statisticalScore(st Stats) float64 {
	spread := 1 - st.StdDev/0.5
	if spread < 0 {
		spread = 0
	}
	return 0.4*math.Min(st.Mean, 1) + 0.3*math.Min(st.Max, 1) + 0.3*spread
}

// thresholdScore: min(max·0.7 + strongFraction·0.3, 1) where strongFraction
// is the share of scores above 0.5.
func thresholdScore(st Stats, scores []float64) float64 {
	if st.Count == 0 {
		return 0
	}
	var strong int
	for _, s := range scores {
		if s > 0.5 {
			strong++
		}
	}
	v := st.Max*0.7 + float64(strong)/float64(st.Count)*0.3
	return math.Min(v, 1)
}

// mlFeaturesScore mixes five bounded features of the distribution and the
// dual-rank structure.
func mlFeaturesScore(st Stats, results []search.Result) float64 {
	scoreRange := clamp01(st.Max - st.Min)
	invVariance := 1 - math.Min(st.StdDev, 1)
	topToMean := math.Min(st.Max/(st.Mean+1e-3)/2, 1)
	correlation := rankCorrelation(results)
	density := math.Min(float64(st.Count)/10, 1)

	return mlFeatureWeights[0]*scoreRange +
		mlFeatureWeights[1]*invVariance +
		mlFeatureWeights[2]*topToMean +
		mlFeatureWeights[3]*correlation +
		mlFeatureWeights[4]*density
}

// rankCorrelation maps the vector/keyword rank agreement onto [0,1].
// Results present in only one list carry no signal; with fewer than two
// dual-ranked results the correlation is neutral (0.5), which also covers
// the empty-list case.
func rankCorrelation(results []search.Result) float64 {
	var vr, kr []float64
	for _, r := range results {
		if r.VectorRank > 0 && r.KeywordRank > 0 {
			vr = append(vr, float64(r.VectorRank))
			kr = append(kr, float64(r.KeywordRank))
		}
	}
	if len(vr) < 2 {
		return 0.5
	}
	corr := pearson(vr, kr)
	return clamp01((corr + 1) / 2)
}

func pearson(x, y []float64) float64 {
	n := float64(len(x))
	var sx, sy float64
	for i := range x {
		sx += x[i]
		sy += y[i]
	}
	mx, my := sx/n, sy/n
	var cov, vx, vy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	return cov / math.Sqrt(vx*vy)
}

// rerankerConfidence: 0.6·max + 0.4·mean over the reranker scores.
func rerankerConfidence(results []search.Result) (float64, bool) {
	var max, sum float64
	var n int
	for _, r := range results {
		if r.RerankerScore == nil {
			continue
		}
		s := *r.RerankerScore
		if n == 0 || s > max {
			max = s
		}
		sum += s
		n++
	}
	if n == 0 {
		return 0, false
	}
	return 0.6*max + 0.4*(sum/float64(n)), true
}

// ensemble blends the sub-scores with the tenant algorithm weights,
// renormalizing over the first three when the reranker sub-score is absent.
func ensemble(alg AlgorithmScores, w tenant.AlgorithmWeights) float64 {
	if alg.RerankerConfidence != nil {
		total := w.Statistical + w.Threshold + w.MLFeatures + w.RerankerConfidence
		if total == 0 {
			return 0
		}
		return (w.Statistical*alg.Statistical +
			w.Threshold*alg.Threshold +
			w.MLFeatures*alg.MLFeatures +
			w.RerankerConfidence**alg.RerankerConfidence) / total
	}
	total := w.Statistical + w.Threshold + w.MLFeatures
	if total == 0 {
		return 0
	}
	return (w.Statistical*alg.Statistical +
		w.Threshold*alg.Threshold +
		w.MLFeatures*alg.MLFeatures) / total
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
