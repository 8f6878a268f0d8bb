package models

// Questionnaire holds the socioeconomic answers collected with the
// registration. It is embedded in the participant because it is always
// read together with it. The named fields are the answers the statistics
// care about; everything else stays in Answers keyed by question code.
type Questionnaire struct {
	IncomeBracket   string            `bson:"income_bracket,omitempty" json:"income_bracket,omitempty"`
	FatherEducation string            `bson:"father_education,omitempty" json:"father_education,omitempty"`
	MotherEducation string            `bson:"mother_education,omitempty" json:"mother_education,omitempty"`
	HouseholdSize   string            `bson:"household_size,omitempty" json:"household_size,omitempty"`
	Answers         map[string]string `bson:"answers,omitempty" json:"answers,omitempty"`
}

// Participant represents one exam registration. Registration is the
// natural unique key. SchoolCode is optional: self-declared participants
// register without a school.
type Participant struct {
	Base                 `bson:",inline"`
	Registration         string         `bson:"registration" json:"registration"`
	Year                 int            `bson:"year" json:"year"`
	AgeBand              int            `bson:"age_band" json:"age_band"`
	Sex                  string         `bson:"sex" json:"sex"`
	MaritalStatus        int            `bson:"marital_status,omitempty" json:"marital_status,omitempty"`
	Race                 int            `bson:"race" json:"race"`
	Nationality          int            `bson:"nationality,omitempty" json:"nationality,omitempty"`
	Trainee              bool           `bson:"trainee" json:"trainee"`
	SchoolCode           *int           `bson:"school_code,omitempty" json:"school_code,omitempty"`
	ExamMunicipalityCode int            `bson:"exam_municipality_code" json:"exam_municipality_code"`
	ExamState            string         `bson:"exam_state" json:"exam_state"`
	Questionnaire        *Questionnaire `bson:"questionnaire,omitempty" json:"questionnaire,omitempty"`
}
