package orientation

import "basegraph.app/t24spec/internal/model"

// Intermediate carries the sub-angles a pass used to derive its estimate,
// retained for diagnostics but not consumed by reconciliation.
type Intermediate struct {
	NorthArrowAngle   float64 `json:"north_arrow_angle"`
	FrontDrawingAngle float64 `json:"front_drawing_angle"`
	Formula           string  `json:"formula"`
}

// PassResult is one independent orientation-extraction attempt.
type PassResult struct {
	FrontOrientation float64           `json:"front_orientation"`
	Confidence       model.Confidence  `json:"confidence"`
	Intermediate     Intermediate      `json:"intermediate"`
}

// Result is the reconciled orientation estimate.
type Result struct {
	FrontOrientation float64
	Confidence       model.Confidence
}

var confidenceRank = map[model.Confidence]int{
	model.ConfidenceHigh:   2,
	model.ConfidenceMedium: 1,
	model.ConfidenceLow:    0,
}

// Reconcile combines two independent passes per the rule in 4.H:
//   - d <= 20: circular mean of both, confidence high.
//   - 70 <= d <= 110: side/front confusion; the more-confident pass wins,
//     confidence downgraded one level.
//   - 160 <= d <= 200: front/back confusion; same resolution as above.
//   - otherwise: disagreement; the more-confident pass wins, confidence low.
//
// On equal confidence the more-confident pass is Pass 1 (fewer inference
// hops).
func Reconcile(p1, p2 PassResult) Result {
	d := AngularDistance(p1.FrontOrientation, p2.FrontOrientation)

	switch {
	case d <= 20:
		return Result{
			FrontOrientation: CircularMean(p1.FrontOrientation, p2.FrontOrientation),
			Confidence:       model.ConfidenceHigh,
		}
	case d >= 70 && d <= 110:
		winner := moreConfident(p1, p2)
		return Result{FrontOrientation: winner.FrontOrientation, Confidence: winner.Confidence.Downgrade()}
	case d >= 160 && d <= 200:
		winner := moreConfident(p1, p2)
		return Result{FrontOrientation: winner.FrontOrientation, Confidence: winner.Confidence.Downgrade()}
	default:
		winner := moreConfident(p1, p2)
		return Result{FrontOrientation: winner.FrontOrientation, Confidence: model.ConfidenceLow}
	}
}

func moreConfident(p1, p2 PassResult) PassResult {
	if confidenceRank[p2.Confidence] > confidenceRank[p1.Confidence] {
		return p2
	}
	return p1
}
