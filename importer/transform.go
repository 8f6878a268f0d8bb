package importer

import (
	"strconv"
	"strings"

	"github.com/enemdata/enemdb/models"
)

// Column names of the INEP microdata export. Both source files share the
// identity columns; scores appear only in the results file.
const (
	colRegistration = "NU_INSCRICAO"
	colYear         = "NU_ANO"
	colAgeBand      = "TP_FAIXA_ETARIA"
	colSex          = "TP_SEXO"
	colMarital      = "TP_ESTADO_CIVIL"
	colRace         = "TP_COR_RACA"
	colNationality  = "TP_NACIONALIDADE"
	colTrainee      = "IN_TREINEIRO"

	colSchoolCode     = "CO_ESCOLA"
	colSchoolDep      = "TP_DEPENDENCIA_ADM_ESC"
	colSchoolLocation = "TP_LOCALIZACAO_ESC"
	colSchoolStatus   = "TP_SIT_FUNC_ESC"

	colMunicipalityCode = "CO_MUNICIPIO_PROVA"
	colMunicipalityName = "NO_MUNICIPIO_PROVA"
	colStateCode        = "CO_UF_PROVA"
	colState            = "SG_UF_PROVA"

	colEssayScore = "NU_NOTA_REDACAO"

	colIncomeBracket   = "Q006"
	colFatherEducation = "Q001"
	colMotherEducation = "Q002"
	colHouseholdSize   = "Q005"
)

func scoreColumn(area string) string    { return "NU_NOTA_" + area }
func presenceColumn(area string) string { return "TP_PRESENCA_" + area }

// headerIndex maps normalized column names to their positions. The first
// column of an export sometimes carries a BOM.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		idx[strings.ToUpper(strings.TrimSpace(name))] = i
	}
	return idx
}

// field returns the trimmed cell for a column, empty when the column is
// absent from the file.
func field(idx map[string]int, record []string, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func intField(idx map[string]int, record []string, col string) (int, bool) {
	s := field(idx, record, col)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func floatField(idx map[string]int, record []string, col string) (float64, bool) {
	s := field(idx, record, col)
	if s == "" {
		return 0, false
	}
	// Some exports use the decimal comma.
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func boolField(idx map[string]int, record []string, col string) bool {
	return field(idx, record, col) == "1"
}

// parseParticipant builds a participant from one row. A non-empty reason
// means the row must be skipped.
func parseParticipant(idx map[string]int, record []string) (*models.Participant, string) {
	reg := field(idx, record, colRegistration)
	if reg == "" {
		return nil, "missing registration"
	}
	year, ok := intField(idx, record, colYear)
	if !ok {
		return nil, "missing or malformed year"
	}

	p := &models.Participant{
		Registration: reg,
		Year:         year,
		Sex:          field(idx, record, colSex),
		Trainee:      boolField(idx, record, colTrainee),
		ExamState:    field(idx, record, colState),
	}
	p.AgeBand, _ = intField(idx, record, colAgeBand)
	p.MaritalStatus, _ = intField(idx, record, colMarital)
	p.Race, _ = intField(idx, record, colRace)
	p.Nationality, _ = intField(idx, record, colNationality)
	p.ExamMunicipalityCode, _ = intField(idx, record, colMunicipalityCode)
	if code, ok := intField(idx, record, colSchoolCode); ok {
		p.SchoolCode = &code
	}
	if q := parseQuestionnaire(idx, record); q != nil {
		p.Questionnaire = q
	}
	return p, ""
}

func parseQuestionnaire(idx map[string]int, record []string) *models.Questionnaire {
	q := &models.Questionnaire{
		IncomeBracket:   field(idx, record, colIncomeBracket),
		FatherEducation: field(idx, record, colFatherEducation),
		MotherEducation: field(idx, record, colMotherEducation),
		HouseholdSize:   field(idx, record, colHouseholdSize),
	}
	for col, i := range idx {
		if !strings.HasPrefix(col, "Q") || len(col) != 4 || i >= len(record) {
			continue
		}
		switch col {
		case colIncomeBracket, colFatherEducation, colMotherEducation, colHouseholdSize:
			continue
		}
		if v := strings.TrimSpace(record[i]); v != "" {
			if q.Answers == nil {
				q.Answers = make(map[string]string)
			}
			q.Answers[col] = v
		}
	}
	if q.IncomeBracket == "" && q.FatherEducation == "" && q.MotherEducation == "" &&
		q.HouseholdSize == "" && q.Answers == nil {
		return nil
	}
	return q
}

// parseResult builds a result from one row. Scores hold only the areas
// the participant actually sat. The derived average is recomputed here,
// never read from the file.
func parseResult(idx map[string]int, record []string) (*models.Result, string) {
	reg := field(idx, record, colRegistration)
	if reg == "" {
		return nil, "missing registration"
	}
	year, ok := intField(idx, record, colYear)
	if !ok {
		return nil, "missing or malformed year"
	}

	r := &models.Result{
		Registration: reg,
		Year:         year,
		ExamState:    field(idx, record, colState),
	}
	r.ExamMunicipalityCode, _ = intField(idx, record, colMunicipalityCode)
	if code, ok := intField(idx, record, colSchoolCode); ok {
		r.SchoolCode = &code
	}
	for _, area := range models.KnowledgeAreas {
		if score, ok := floatField(idx, record, scoreColumn(area)); ok {
			if r.Scores == nil {
				r.Scores = make(map[string]float64, len(models.KnowledgeAreas))
			}
			r.Scores[area] = score
		}
		if presence, ok := intField(idx, record, presenceColumn(area)); ok {
			if r.Presence == nil {
				r.Presence = make(map[string]int, len(models.KnowledgeAreas))
			}
			r.Presence[area] = presence
		}
	}
	if essay, ok := floatField(idx, record, colEssayScore); ok {
		r.EssayScore = &essay
	}
	r.RecomputeAverage()
	return r, ""
}

// municipalitySeed collects the municipality referenced by a row, if any.
func municipalitySeed(idx map[string]int, record []string) *models.Municipality {
	code, ok := intField(idx, record, colMunicipalityCode)
	if !ok || code == 0 {
		return nil
	}
	m := &models.Municipality{
		Code:  code,
		Name:  field(idx, record, colMunicipalityName),
		State: field(idx, record, colState),
	}
	m.StateCode, _ = intField(idx, record, colStateCode)
	return m
}

// schoolSeed collects the school referenced by a row, if any.
func schoolSeed(idx map[string]int, record []string) *models.School {
	code, ok := intField(idx, record, colSchoolCode)
	if !ok || code == 0 {
		return nil
	}
	s := &models.School{
		Code:  code,
		State: field(idx, record, colState),
	}
	s.MunicipalityCode, _ = intField(idx, record, colMunicipalityCode)
	s.StateCode, _ = intField(idx, record, colStateCode)
	s.AdminDependency, _ = intField(idx, record, colSchoolDep)
	s.Location, _ = intField(idx, record, colSchoolLocation)
	s.OperatingStatus, _ = intField(idx, record, colSchoolStatus)
	return s
}
