package models

// Administrative dependency categories as coded in the INEP exports.
const (
	DependencyFederal   = 1
	DependencyState     = 2
	DependencyMunicipal = 3
	DependencyPrivate   = 4
)

// School location categories.
const (
	LocationUrban = 1
	LocationRural = 2
)

// School represents a school attached to exam results. The owning
// municipality is referenced by code only; a dangling reference is
// tolerated and shows up as an empty join.
type School struct {
	Base              `bson:",inline"`
	Code              int    `bson:"code" json:"code"`
	Name              string `bson:"name" json:"name"`
	MunicipalityCode  int    `bson:"municipality_code" json:"municipality_code"`
	StateCode         int    `bson:"state_code" json:"state_code"`
	State             string `bson:"state" json:"state"`
	AdminDependency   int    `bson:"admin_dependency" json:"admin_dependency"`
	Location          int    `bson:"location" json:"location"`
	OperatingStatus   int    `bson:"operating_status" json:"operating_status"`
	TotalParticipants int64  `bson:"total_participants" json:"total_participants"`
}
