// Package scoring holds the pure ranking functions. Equal inputs yield
// bit-identical outputs: nothing here reads the clock or any other state.
package scoring

import "math"

// Epoch is the platform scoring epoch (unix seconds). Hot scores measure
// post age against it.
const Epoch int64 = 1576242000

// z-score for a one-sided 80% confidence interval.
const confidenceZ = 1.2815515655446004

// Sign returns -1, 0, or 1.
func Sign(x int64) int64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// Hot ranks by vote margin with a time decay anchored at Epoch.
func Hot(up, down, t int64) float64 {
	margin := up - down
	magnitude := margin
	if magnitude < 0 {
		magnitude = -magnitude
	}
	if magnitude < 1 {
		magnitude = 1
	}
	return float64(Sign(margin))*math.Log10(float64(magnitude)) + float64(t-Epoch)/45000
}

// Controversial peaks when a heavily-voted post splits evenly. Zero unless
// both sides voted.
func Controversial(up, down int64) float64 {
	if up <= 0 || down <= 0 {
		return 0
	}
	magnitude := float64(up + down)
	balance := float64(down) / float64(up)
	if up < down {
		balance = float64(up) / float64(down)
	}
	return math.Pow(magnitude, balance)
}

// Confidence is the lower bound of the Wilson score interval at the
// one-sided 80% level. Zero when there are no votes.
func Confidence(up, total int64) float64 {
	if total == 0 {
		return 0
	}
	n := float64(total)
	phat := float64(up) / n
	z := confidenceZ
	return (phat + z*z/(2*n) - z*math.Sqrt((phat*(1-phat)+z*z/(4*n))/n)) / (1 + z*z/n)
}

// Best is the upvote ratio pulled toward 0.5 for low totals. Zero when
// there are no votes.
func Best(up, total int64) float64 {
	if total == 0 {
		return 0
	}
	s := float64(up) / float64(total)
	return s - (s-0.5)*math.Pow(2, -math.Log10(float64(total+1)))
}
