package models

// Municipality represents a Brazilian municipality that hosted exams or schools.
type Municipality struct {
	Base       `bson:",inline"`
	Code       int      `bson:"code" json:"code"`
	Name       string   `bson:"name" json:"name"`
	StateCode  int      `bson:"state_code" json:"state_code"`
	State      string   `bson:"state" json:"state"`
	Region     string   `bson:"region,omitempty" json:"region,omitempty"`
	Population *int64   `bson:"population,omitempty" json:"population,omitempty"`
	HDI        *float64 `bson:"hdi,omitempty" json:"hdi,omitempty"`
}
