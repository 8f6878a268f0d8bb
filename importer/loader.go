// Package importer loads the flat-file exam exports into the record
// store. Loads are idempotent: every write is an upsert on the entity's
// natural key, so re-running on the same files converges to the same
// final state.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/enemdata/enemdb/models"
	"github.com/enemdata/enemdb/store"
)

// ErrSourceNotFound reports a missing source file. It fails the whole run;
// anything wrong inside a file only skips rows.
var ErrSourceNotFound = errors.New("source file not found")

// RunState is the phase a load run is in.
type RunState int

const (
	StateIdle RunState = iota
	StateReading
	StateEnriching
	StateUpserting
	StateCompleted
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReading:
		return "reading"
	case StateEnriching:
		return "enriching"
	case StateUpserting:
		return "upserting"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config names the two source files of a run.
type Config struct {
	ParticipantsFile string
	ResultsFile      string
}

// RowOutcome records one skipped row.
type RowOutcome struct {
	Source string
	Line   int
	Reason string
}

// Summary is the accounting of one run, returned as a value so callers
// read it directly instead of scraping logs.
type Summary struct {
	State RunState
	Files []string

	ParticipantsRead    int
	ParticipantsSkipped int
	ResultsRead         int
	ResultsSkipped      int

	Skipped     []RowOutcome
	SkipReasons map[string]int

	UpsertedMunicipalities int
	UpsertedSchools        int
	UpsertedParticipants   int
	UpsertedResults        int
}

// Loader runs bulk loads against a store.
type Loader struct {
	st  store.Store
	log *zap.SugaredLogger
}

func New(st store.Store, log *zap.SugaredLogger) *Loader {
	return &Loader{st: st, log: log}
}

// Run executes one load: participants first, then results, then the
// municipalities and schools derived from the rows. Row-level problems
// are skipped and accounted; only a missing source or an unreachable
// store aborts.
func (l *Loader) Run(ctx context.Context, cfg Config) (Summary, error) {
	sum := Summary{State: StateReading, SkipReasons: make(map[string]int)}
	l.log.Infow("load started",
		"participants", cfg.ParticipantsFile, "results", cfg.ResultsFile)

	munis := make(map[int]*models.Municipality)
	schools := make(map[int]*models.School)

	participants, err := l.readParticipants(cfg.ParticipantsFile, &sum, munis, schools)
	if err != nil {
		sum.State = StateFailed
		return sum, err
	}
	results, err := l.readResults(cfg.ResultsFile, &sum, munis, schools)
	if err != nil {
		sum.State = StateFailed
		return sum, err
	}

	sum.State = StateEnriching
	kept, err := l.enrich(ctx, &sum, cfg.ResultsFile, participants, results)
	if err != nil {
		return sum, err
	}

	sum.State = StateUpserting
	if err := l.upsertAll(ctx, &sum, munis, schools, participants, kept); err != nil {
		return sum, err
	}

	sum.State = StateCompleted
	l.log.Infow("load completed",
		"participants", sum.UpsertedParticipants,
		"results", sum.UpsertedResults,
		"schools", sum.UpsertedSchools,
		"municipalities", sum.UpsertedMunicipalities,
		"skipped", len(sum.Skipped))
	return sum, nil
}

func (l *Loader) readParticipants(path string, sum *Summary, munis map[int]*models.Municipality, schools map[int]*models.School) ([]*models.Participant, error) {
	var out []*models.Participant
	err := l.readFile(path, sum, func(idx map[string]int, record []string, line int) {
		p, reason := parseParticipant(idx, record)
		if reason != "" {
			l.skip(sum, path, line, reason)
			sum.ParticipantsSkipped++
			return
		}
		sum.ParticipantsRead++
		out = append(out, p)
		collectSeeds(idx, record, munis, schools)
	})
	return out, err
}

// resultRow keeps the source line with the parsed result so later phases
// can report it.
type resultRow struct {
	result *models.Result
	line   int
}

func (l *Loader) readResults(path string, sum *Summary, munis map[int]*models.Municipality, schools map[int]*models.School) ([]resultRow, error) {
	var out []resultRow
	err := l.readFile(path, sum, func(idx map[string]int, record []string, line int) {
		r, reason := parseResult(idx, record)
		if reason != "" {
			l.skip(sum, path, line, reason)
			sum.ResultsSkipped++
			return
		}
		sum.ResultsRead++
		out = append(out, resultRow{result: r, line: line})
		collectSeeds(idx, record, munis, schools)
	})
	return out, err
}

// readFile streams one csv source. Rows the csv reader itself rejects are
// skipped like any other malformed row.
func (l *Loader) readFile(path string, sum *Summary, handle func(idx map[string]int, record []string, line int)) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	sum.Files = append(sum.Files, path)

	reader := csv.NewReader(f)
	reader.Comma = ';'

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", path, err)
	}
	idx := headerIndex(header)

	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			l.skip(sum, path, line, "malformed csv row")
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		handle(idx, record, line)
	}
}

// enrich verifies each result's participant and resolves missing school
// references from the participant record.
func (l *Loader) enrich(ctx context.Context, sum *Summary, source string, participants []*models.Participant, rows []resultRow) ([]*models.Result, error) {
	byReg := make(map[string]*models.Participant, len(participants))
	for _, p := range participants {
		byReg[p.Registration] = p
	}

	kept := make([]*models.Result, 0, len(rows))
	for _, row := range rows {
		r := row.result
		p, loaded := byReg[r.Registration]
		if !loaded {
			n, err := l.st.Count(ctx, models.CollectionParticipants,
				store.Filter{store.Eq("registration", r.Registration)})
			if err != nil {
				return nil, fmt.Errorf("verify participant %s: %w", r.Registration, err)
			}
			if n == 0 {
				l.skip(sum, source, row.line, "unknown participant "+r.Registration)
				sum.ResultsSkipped++
				continue
			}
		}
		if r.SchoolCode == nil && p != nil {
			r.SchoolCode = p.SchoolCode
		}
		kept = append(kept, r)
	}
	return kept, nil
}

func (l *Loader) upsertAll(ctx context.Context, sum *Summary, munis map[int]*models.Municipality, schools map[int]*models.School, participants []*models.Participant, results []*models.Result) error {
	now := time.Now().UTC()

	for _, code := range sortedCodes(munis) {
		m := munis[code]
		m.Touch(now)
		key := store.Filter{store.Eq("code", m.Code)}
		if err := l.st.Upsert(ctx, models.CollectionMunicipalities, key, m); err != nil {
			return fmt.Errorf("upsert municipality %d: %w", m.Code, err)
		}
		sum.UpsertedMunicipalities++
	}

	for _, p := range participants {
		p.Touch(now)
		key := store.Filter{store.Eq("registration", p.Registration)}
		if err := l.st.Upsert(ctx, models.CollectionParticipants, key, p); err != nil {
			return fmt.Errorf("upsert participant %s: %w", p.Registration, err)
		}
		sum.UpsertedParticipants++
	}

	// Participant counters depend on the participants being in place.
	for _, code := range sortedCodes(schools) {
		s := schools[code]
		n, err := l.st.Count(ctx, models.CollectionParticipants,
			store.Filter{store.Eq("school_code", s.Code)})
		if err != nil {
			return fmt.Errorf("count participants of school %d: %w", s.Code, err)
		}
		s.TotalParticipants = n
		s.Touch(now)
		key := store.Filter{store.Eq("code", s.Code)}
		if err := l.st.Upsert(ctx, models.CollectionSchools, key, s); err != nil {
			return fmt.Errorf("upsert school %d: %w", s.Code, err)
		}
		sum.UpsertedSchools++
	}

	for _, r := range results {
		r.RecomputeAverage()
		r.Touch(now)
		key := store.Filter{
			store.Eq("registration", r.Registration),
			store.Eq("year", r.Year),
		}
		if err := l.st.Upsert(ctx, models.CollectionResults, key, r); err != nil {
			return fmt.Errorf("upsert result %s/%d: %w", r.Registration, r.Year, err)
		}
		sum.UpsertedResults++
	}
	return nil
}

func (l *Loader) skip(sum *Summary, source string, line int, reason string) {
	sum.Skipped = append(sum.Skipped, RowOutcome{Source: source, Line: line, Reason: reason})
	sum.SkipReasons[reason]++
	l.log.Warnw("skipping row", "source", source, "line", line, "reason", reason)
}

func collectSeeds(idx map[string]int, record []string, munis map[int]*models.Municipality, schools map[int]*models.School) {
	if m := municipalitySeed(idx, record); m != nil {
		if prev, ok := munis[m.Code]; !ok || prev.Name == "" {
			munis[m.Code] = m
		}
	}
	if s := schoolSeed(idx, record); s != nil {
		if prev, ok := schools[s.Code]; !ok || prev.AdminDependency == 0 {
			schools[s.Code] = s
		}
	}
}

func sortedCodes[T any](m map[int]*T) []int {
	codes := make([]int, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}
