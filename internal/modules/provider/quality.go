// README: Quality scoring shared by bid evaluation and provider ranking.
package provider

import "strings"

// Quality is the value copied onto a bid at submission time.
type Quality struct {
	Rating        float64 `json:"rating"`
	RatingCount   int     `json:"rating_count"`
	SLACompliance float64 `json:"sla_compliance"`
	Grade         string  `json:"grade"`
}

var gradeScores = map[string]float64{
	"A+": 100,
	"A":  90,
	"A-": 85,
	"B+": 80,
	"B":  70,
	"B-": 65,
	"C+": 60,
	"C":  50,
	"C-": 45,
	"D":  30,
	"F":  10,
}

// NeutralScore is used wherever a quality figure is unknown.
const NeutralScore = 50.0

// GradeScore maps a letter grade to 0-100; unknown grades are neutral.
func GradeScore(grade string) float64 {
	if v, ok := gradeScores[strings.ToUpper(strings.TrimSpace(grade))]; ok {
		return v
	}
	return NeutralScore
}

// Score blends rating (0-5), SLA compliance (0-100) and grade into 0-100.
func (q Quality) Score() float64 {
	v := q.Rating/5*100*0.4 + q.SLACompliance*0.3 + GradeScore(q.Grade)*0.3
	return Clamp(v, 0, 100)
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
