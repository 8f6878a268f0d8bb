package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"

	"github.com/enemdata/enemdb/config"
	"github.com/enemdata/enemdb/importer"
	"github.com/enemdata/enemdb/models"
	"github.com/enemdata/enemdb/repository"
	"github.com/enemdata/enemdb/stats"
	"github.com/enemdata/enemdb/store"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	ctx := context.Background()
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	st, err := store.Open(openCtx, cfg.MongoURL, cfg.DatabaseName, log)
	cancel()
	if err != nil {
		color.Red("Could not connect to the record store: %v", err)
		os.Exit(1)
	}
	defer st.Close(ctx)

	app := &app{
		cfg:            cfg,
		in:             bufio.NewScanner(os.Stdin),
		municipalities: repository.NewMunicipalities(st, log, cfg.MaxPageSize),
		schools:        repository.NewSchools(st, log, cfg.MaxPageSize),
		participants:   repository.NewParticipants(st, log, cfg.MaxPageSize),
		results:        repository.NewResults(st, log, cfg.MaxPageSize),
		engine:         stats.New(st, log),
		loader:         importer.New(st, log),
	}
	app.run(ctx)
}

type app struct {
	cfg config.Config
	in  *bufio.Scanner

	municipalities *repository.Municipalities
	schools        *repository.Schools
	participants   *repository.Participants
	results        *repository.Results
	engine         *stats.Engine
	loader         *importer.Loader
}

func (a *app) run(ctx context.Context) {
	for {
		displayMenu()
		switch a.readLine("Enter your choice: ") {
		case "1":
			a.searchParticipant(ctx)
		case "2":
			a.listSchools(ctx)
		case "3":
			a.areaAverages(ctx)
		case "4":
			a.stateRanking(ctx)
		case "5":
			a.essayDistribution(ctx)
		case "6":
			a.topPerformers(ctx)
		case "7":
			a.periodStats(ctx)
		case "8":
			a.demographics(ctx)
		case "9":
			a.regionStats(ctx)
		case "10":
			a.dependencyStats(ctx)
		case "11":
			a.schoolRanking(ctx)
		case "12":
			a.runLoad(ctx)
		case "13":
			color.Green("Goodbye!")
			return
		default:
			color.Red("Invalid choice. Please try again.")
		}
	}
}

func displayMenu() {
	color.Cyan("\n=== National Exam Records ===")
	fmt.Println("1. Search Participant")
	fmt.Println("2. List Schools")
	fmt.Println("3. Knowledge Area Averages")
	fmt.Println("4. State Ranking")
	fmt.Println("5. Essay Score Distribution")
	fmt.Println("6. Top Performers")
	fmt.Println("7. Period Statistics")
	fmt.Println("8. Demographic Breakdown")
	fmt.Println("9. Region Statistics")
	fmt.Println("10. School Dependency Statistics")
	fmt.Println("11. School Ranking")
	fmt.Println("12. Run Bulk Load")
	fmt.Println("13. Exit")
}

func (a *app) readLine(prompt string) string {
	fmt.Print(prompt)
	if a.in.Scan() {
		return strings.TrimSpace(a.in.Text())
	}
	return ""
}

func (a *app) readInt(prompt string) int {
	s := a.readLine(prompt)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		color.Red("Not a number, ignoring: %s", s)
		return 0
	}
	return n
}

func (a *app) searchParticipant(ctx context.Context) {
	reg := a.readLine("Enter registration number: ")
	p, err := a.participants.GetByRegistration(ctx, reg)
	if err != nil {
		color.Red("Participant not found: %v", err)
		return
	}

	color.Yellow("\nParticipant %s", p.Registration)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Registration", "Year", "Sex", "Age Band", "Exam State", "Trainee"})
	table.Append([]string{
		p.Registration,
		strconv.Itoa(p.Year),
		p.Sex,
		strconv.Itoa(p.AgeBand),
		p.ExamState,
		fmt.Sprintf("%t", p.Trainee),
	})
	table.Render()

	results, err := a.results.ByParticipant(ctx, reg)
	if err != nil {
		color.Red("Error loading results: %v", err)
		return
	}
	if len(results) == 0 {
		color.Yellow("No results recorded.")
		return
	}

	color.Yellow("\nResults Across Years")
	table = tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Year", "CN", "CH", "LC", "MT", "Essay", "Average"})
	for _, r := range results {
		row := []string{strconv.Itoa(r.Year)}
		for _, area := range models.KnowledgeAreas {
			if v, ok := r.Scores[area]; ok {
				row = append(row, fmt.Sprintf("%.1f", v))
			} else {
				row = append(row, "N/A")
			}
		}
		row = append(row, fmtMeanPtr(r.EssayScore), fmtMeanPtr(r.Average))
		table.Append(row)
	}
	table.Render()
}

func (a *app) listSchools(ctx context.Context) {
	filter := repository.SchoolFilter{
		State:            strings.ToUpper(a.readLine("State (blank for all): ")),
		MunicipalityCode: a.readInt("Municipality code (blank for all): "),
		AdminDependency:  a.readInt("Dependency 1-federal 2-state 3-municipal 4-private (blank for all): "),
	}
	page := repository.Page{Skip: int64(a.readInt("Skip (blank for 0): ")), Sort: "code"}

	schools, total, err := a.schools.List(ctx, filter, page)
	if err != nil {
		color.Red("Error listing schools: %v", err)
		return
	}

	color.Yellow("\nSchools (%d of %d)", len(schools), total)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Code", "Name", "State", "Municipality", "Dependency", "Participants"})
	for _, s := range schools {
		table.Append([]string{
			strconv.Itoa(s.Code),
			s.Name,
			s.State,
			strconv.Itoa(s.MunicipalityCode),
			dependencyName(s.AdminDependency),
			strconv.FormatInt(s.TotalParticipants, 10),
		})
	}
	table.Render()
}

func (a *app) areaAverages(ctx context.Context) {
	year := a.readInt("Exam year (blank for all): ")
	report, err := a.engine.AreaAverages(ctx, year)
	if err != nil {
		color.Red("Error computing averages: %v", err)
		return
	}

	color.Yellow("\nKnowledge Area Averages (%d results)", report.Total)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Area", "Mean", "Participants"})
	for _, area := range models.KnowledgeAreas {
		s := report.Areas[area]
		table.Append([]string{area, fmtMeanPtr(s.Mean), strconv.FormatInt(s.Count, 10)})
	}
	table.Append([]string{"Essay", fmtMeanPtr(report.Essay.Mean), strconv.FormatInt(report.Essay.Count, 10)})
	table.Render()
}

func (a *app) stateRanking(ctx context.Context) {
	year := a.readInt("Exam year (blank for all): ")
	entries, err := a.engine.StateRanking(ctx, year, 0)
	if err != nil {
		color.Red("Error computing ranking: %v", err)
		return
	}

	color.Yellow("\nState Ranking by Objective Average")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Rank", "State", "Mean", "Results"})
	for _, e := range entries {
		table.Append([]string{
			strconv.Itoa(e.Position),
			fmt.Sprintf("%v", e.Key),
			fmtMeanPtr(e.Mean),
			strconv.FormatInt(e.Count, 10),
		})
	}
	table.Render()
}

func (a *app) essayDistribution(ctx context.Context) {
	year := a.readInt("Exam year (blank for all): ")
	buckets, err := a.engine.EssayDistribution(ctx, year)
	if err != nil {
		color.Red("Error computing distribution: %v", err)
		return
	}

	color.Yellow("\nEssay Score Distribution")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Range", "Count"})
	for _, b := range buckets {
		table.Append([]string{b.Label, strconv.FormatInt(b.Count, 10)})
	}
	table.Render()
}

func (a *app) topPerformers(ctx context.Context) {
	cutoff := float64(a.readInt("Minimum objective average: "))
	results, err := a.engine.TopPerformers(ctx, cutoff, 20)
	if err != nil {
		color.Red("Error loading top performers: %v", err)
		return
	}
	if len(results) == 0 {
		color.Yellow("No results at or above %.1f.", cutoff)
		return
	}

	color.Yellow("\nTop Performers (average >= %.1f)", cutoff)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Registration", "Year", "State", "Average", "Essay"})
	for _, r := range results {
		table.Append([]string{
			r.Registration,
			strconv.Itoa(r.Year),
			r.ExamState,
			fmtMeanPtr(r.Average),
			fmtMeanPtr(r.EssayScore),
		})
	}
	table.Render()
}

func (a *app) periodStats(ctx context.Context) {
	start := a.readInt("Start year: ")
	end := a.readInt("End year: ")
	rows, err := a.engine.PeriodAreaAverages(ctx, start, end)
	if err != nil {
		color.Red("Error computing period statistics: %v", err)
		return
	}

	color.Yellow("\nPer-Year Averages %d-%d", start, end)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Year", "CN", "CH", "LC", "MT", "Essay", "Results"})
	for _, row := range rows {
		line := []string{fmt.Sprintf("%v", row.Key)}
		for _, area := range models.KnowledgeAreas {
			line = append(line, fmtMeanPtr(row.Means["scores."+area]))
		}
		line = append(line, fmtMeanPtr(row.Means["essay_score"]), strconv.FormatInt(row.Count, 10))
		table.Append(line)
	}
	table.Render()
}

func (a *app) demographics(ctx context.Context) {
	fmt.Println("1. Sex")
	fmt.Println("2. Race")
	fmt.Println("3. Age Band")
	var field, name string
	switch a.readLine("Breakdown by: ") {
	case "1":
		field, name = "sex", "Sex"
	case "2":
		field, name = "race", "Race"
	case "3":
		field, name = "age_band", "Age Band"
	default:
		color.Red("Invalid choice.")
		return
	}
	year := a.readInt("Exam year (blank for all): ")

	rows, err := a.engine.Demographics(ctx, field, year)
	if err != nil {
		color.Red("Error computing breakdown: %v", err)
		return
	}

	color.Yellow("\nParticipants by %s", name)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{name, "Participants", "Trainees"})
	for _, row := range rows {
		table.Append([]string{
			fmt.Sprintf("%v", row.Value),
			strconv.FormatInt(row.Count, 10),
			strconv.FormatInt(row.Trainees, 10),
		})
	}
	table.Render()
}

func (a *app) regionStats(ctx context.Context) {
	rows, err := a.engine.RegionStats(ctx)
	if err != nil {
		color.Red("Error computing region statistics: %v", err)
		return
	}

	color.Yellow("\nMunicipalities by Region")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Region", "Municipalities", "Avg Population", "Avg HDI"})
	for _, row := range rows {
		table.Append([]string{
			fmt.Sprintf("%v", row.Key),
			strconv.FormatInt(row.Count, 10),
			fmtMeanPtr(row.Means["population"]),
			fmtMeanPtr(row.Means["hdi"]),
		})
	}
	table.Render()
}

func (a *app) dependencyStats(ctx context.Context) {
	state := strings.ToUpper(a.readLine("State (blank for nationwide): "))
	rows, err := a.engine.SchoolDependencyStats(ctx, state)
	if err != nil {
		color.Red("Error computing dependency statistics: %v", err)
		return
	}

	color.Yellow("\nSchools by Administrative Dependency")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Dependency", "Schools", "Avg Participants"})
	for _, row := range rows {
		table.Append([]string{
			dependencyName(keyInt(row.Key)),
			strconv.FormatInt(row.Count, 10),
			fmtMeanPtr(row.Means["total_participants"]),
		})
	}
	table.Render()
}

func (a *app) schoolRanking(ctx context.Context) {
	year := a.readInt("Exam year (blank for all): ")
	topN := a.readInt("How many schools (blank for 20): ")
	if topN <= 0 {
		topN = 20
	}

	entries, err := a.engine.SchoolRanking(ctx, year, int64(topN))
	if err != nil {
		color.Red("Error computing school ranking: %v", err)
		return
	}

	color.Yellow("\nSchool Ranking by Objective Average")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Rank", "Code", "Name", "State", "Mean", "Results"})
	for _, e := range entries {
		code := keyInt(e.Key)
		name, state := "", ""
		if s, err := a.schools.GetByCode(ctx, code); err == nil {
			name, state = s.Name, s.State
		}
		table.Append([]string{
			strconv.Itoa(e.Position),
			strconv.Itoa(code),
			name,
			state,
			fmtMeanPtr(e.Mean),
			strconv.FormatInt(e.Count, 10),
		})
	}
	table.Render()
}

func (a *app) runLoad(ctx context.Context) {
	cfg := importer.Config{
		ParticipantsFile: a.cfg.ParticipantsFile(),
		ResultsFile:      a.cfg.ResultsFile(),
	}
	if dir := a.readLine("Source directory (blank for default): "); dir != "" {
		cfg.ParticipantsFile = filepath.Join(dir, "participants.csv")
		cfg.ResultsFile = filepath.Join(dir, "results.csv")
	}

	color.Cyan("Loading %s and %s ...", cfg.ParticipantsFile, cfg.ResultsFile)
	summary, err := a.loader.Run(ctx, cfg)
	if err != nil {
		color.Red("Load failed (%s): %v", summary.State, err)
		return
	}

	color.Green("Load %s.", summary.State)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Count"})
	table.Append([]string{"Participants read", strconv.Itoa(summary.ParticipantsRead)})
	table.Append([]string{"Participants skipped", strconv.Itoa(summary.ParticipantsSkipped)})
	table.Append([]string{"Results read", strconv.Itoa(summary.ResultsRead)})
	table.Append([]string{"Results skipped", strconv.Itoa(summary.ResultsSkipped)})
	table.Append([]string{"Municipalities upserted", strconv.Itoa(summary.UpsertedMunicipalities)})
	table.Append([]string{"Schools upserted", strconv.Itoa(summary.UpsertedSchools)})
	table.Append([]string{"Participants upserted", strconv.Itoa(summary.UpsertedParticipants)})
	table.Append([]string{"Results upserted", strconv.Itoa(summary.UpsertedResults)})
	table.Render()

	if len(summary.SkipReasons) > 0 {
		color.Yellow("\nSkip Reasons")
		table = tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Reason", "Rows"})
		for reason, n := range summary.SkipReasons {
			table.Append([]string{reason, strconv.Itoa(n)})
		}
		table.Render()
	}
}

func fmtMeanPtr(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f", *v)
}

func keyInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func dependencyName(dep int) string {
	switch dep {
	case models.DependencyFederal:
		return "Federal"
	case models.DependencyState:
		return "State"
	case models.DependencyMunicipal:
		return "Municipal"
	case models.DependencyPrivate:
		return "Private"
	default:
		return strconv.Itoa(dep)
	}
}
