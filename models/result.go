package models

import "math"

// Knowledge areas of the objective tests, as coded in the INEP exports.
const (
	AreaNature     = "CN"
	AreaHumanities = "CH"
	AreaLanguages  = "LC"
	AreaMath       = "MT"
)

// KnowledgeAreas lists the objective areas in canonical order.
var KnowledgeAreas = []string{AreaNature, AreaHumanities, AreaLanguages, AreaMath}

// Result represents one participant's scores for one exam year.
// (Registration, Year) is the natural unique key: a participant may sit
// the exam in several years. Scores is keyed by knowledge area; a missing
// key means the participant did not sit that test.
type Result struct {
	Base                 `bson:",inline"`
	Registration         string             `bson:"registration" json:"registration"`
	Year                 int                `bson:"year" json:"year"`
	SchoolCode           *int               `bson:"school_code,omitempty" json:"school_code,omitempty"`
	ExamMunicipalityCode int                `bson:"exam_municipality_code" json:"exam_municipality_code"`
	ExamState            string             `bson:"exam_state" json:"exam_state"`
	Presence             map[string]int     `bson:"presence,omitempty" json:"presence,omitempty"`
	Scores               map[string]float64 `bson:"scores,omitempty" json:"scores,omitempty"`
	EssayScore           *float64           `bson:"essay_score,omitempty" json:"essay_score,omitempty"`

	// Average is derived from the objective scores on every write.
	// It is nil when no objective score is present.
	Average *float64 `bson:"average,omitempty" json:"average,omitempty"`
}

// RecomputeAverage recalculates the derived objective average from the
// scores actually present. Input values for Average are never trusted.
func (r *Result) RecomputeAverage() {
	var sum float64
	var n int
	for _, area := range KnowledgeAreas {
		if v, ok := r.Scores[area]; ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		r.Average = nil
		return
	}
	avg := Round1(sum / float64(n))
	r.Average = &avg
}

// Round1 rounds half away from zero to one decimal place. All reported
// averages in the system use this rule.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
