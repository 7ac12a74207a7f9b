package contract

import (
	"testing"

	"github.com/anthropics/triad/internal/domain"
)

func TestOverallScore(t *testing.T) {
	assessment := map[string]domain.FileQuality{
		"a.py": {Score: 9.0, SyntaxValid: true},
		"b.py": {Score: 7.0, SyntaxValid: true},
	}
	if got := OverallScore(assessment); got != 8.0 {
		t.Errorf("OverallScore() = %.1f, want 8.0", got)
	}

	// A syntax failure zeroes that file's contribution.
	assessment["b.py"] = domain.FileQuality{Score: 7.0, SyntaxValid: false}
	if got := OverallScore(assessment); got != 4.5 {
		t.Errorf("OverallScore() = %.1f, want 4.5", got)
	}

	if got := OverallScore(nil); got != 0 {
		t.Errorf("OverallScore(nil) = %.1f", got)
	}
}

func TestQualityBand(t *testing.T) {
	tests := []struct {
		score float64
		want  domain.Quality
	}{
		{9.5, domain.QualityExcellent},
		{9.0, domain.QualityExcellent},
		{8.0, domain.QualityGood},
		{7.5, domain.QualityGood},
		{7.4, domain.QualityNeedsImprovement},
		{0, domain.QualityNeedsImprovement},
	}
	for _, tt := range tests {
		if got := QualityBand(tt.score); got != tt.want {
			t.Errorf("QualityBand(%.1f) = %q, want %q", tt.score, got, tt.want)
		}
	}
}
