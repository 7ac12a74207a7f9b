package contract

import "github.com/anthropics/triad/internal/domain"

// OverallScore aggregates per-file quality scores into a single 0-10 score.
// A file that failed syntax checking contributes zero regardless of its
// reported score.
func OverallScore(assessment map[string]domain.FileQuality) float64 {
	if len(assessment) == 0 {
		return 0
	}
	total := 0.0
	for _, fq := range assessment {
		if !fq.SyntaxValid {
			continue
		}
		total += fq.Score
	}
	return total / float64(len(assessment))
}

// QualityBand maps a numeric score onto the coarse quality labels.
func QualityBand(score float64) domain.Quality {
	switch {
	case score >= 9.0:
		return domain.QualityExcellent
	case score >= 7.5:
		return domain.QualityGood
	default:
		return domain.QualityNeedsImprovement
	}
}

// bandScore is the representative score for a quality label, used when a
// report carries a label but no number.
func bandScore(q domain.Quality) float64 {
	switch q {
	case domain.QualityExcellent:
		return 9.5
	case domain.QualityGood:
		return 8.0
	default:
		return 5.0
	}
}
