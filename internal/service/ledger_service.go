package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/gradesheet/gradesheet-api/internal/models"
	"github.com/gradesheet/gradesheet-api/pkg/fuzzy"
	"github.com/gradesheet/gradesheet-api/pkg/normalize"
)

// fallbackClassName catches records that finished reconciliation without a
// class so their scores are not lost.
const fallbackClassName = "Unknown Class"

// preferredAssessments render before any custom assessment columns.
var preferredAssessments = []string{"1st CA", "2nd CA", "3rd CA", "Exam"}

type classStore interface {
	FindOrCreate(ctx context.Context, rawName string) (*models.Class, error)
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type studentStore interface {
	FindOrCreate(ctx context.Context, classID, name string) (*models.Student, error)
	ListByClass(ctx context.Context, classID string) ([]models.Student, error)
}

type scoreStore interface {
	Upsert(ctx context.Context, studentID, assessment, subject, value string) error
	ListByClassAndSubject(ctx context.Context, classID, subject string) ([]models.Score, error)
}

type enrollmentStore interface {
	ListStudentIDs(ctx context.Context, classID, subject string) ([]string, error)
}

// LedgerService merges reconciled records into the score ledger and builds
// the per-(class, subject) report tables with totals, ranks and positions.
type LedgerService struct {
	classes     classStore
	students    studentStore
	scores      scoreStore
	enrollments enrollmentStore
	logger      *zap.Logger
}

// NewLedgerService wires the merge/report engine over its stores.
func NewLedgerService(classes classStore, students studentStore, scores scoreStore, enrollments enrollmentStore, logger *zap.Logger) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{
		classes:     classes,
		students:    students,
		scores:      scores,
		enrollments: enrollments,
		logger:      logger,
	}
}

// Merge writes reconciled records into the ledger under one (assessment,
// subject) pair. Records without a name are skipped and counted. Each write
// is last-write-wins on the (student, assessment, subject) triple, both
// between records in this call and across calls. Returns the touched class
// IDs alongside the summary.
func (s *LedgerService) Merge(ctx context.Context, records []models.ReconciledRecord, assessment, subject string) (models.MergeSummary, []string, error) {
	if assessment == "" {
		assessment = preferredAssessments[0]
	}
	if subject == "" {
		subject = models.SubjectGeneral
	}

	var summary models.MergeSummary
	var classIDs []string
	seenClasses := make(map[string]struct{})
	rosterCache := make(map[string][]models.Student)

	for _, rec := range records {
		if strings.TrimSpace(rec.Name) == "" {
			summary.Skipped++
			continue
		}

		class, err := s.resolveClass(ctx, rec)
		if err != nil {
			return summary, classIDs, err
		}
		if _, ok := seenClasses[class.ID]; !ok {
			seenClasses[class.ID] = struct{}{}
			classIDs = append(classIDs, class.ID)
		}

		student, err := s.resolveStudent(ctx, class.ID, rec.Name, rosterCache)
		if err != nil {
			return summary, classIDs, err
		}

		if err := s.scores.Upsert(ctx, student.ID, assessment, subject, rec.Score); err != nil {
			return summary, classIDs, fmt.Errorf("merge score for %q: %w", student.Name, err)
		}
		summary.Merged++
	}

	return summary, classIDs, nil
}

// resolveClass finds the record's class, falling back to the catch-all class
// when reconciliation left it unrouted.
func (s *LedgerService) resolveClass(ctx context.Context, rec models.ReconciledRecord) (*models.Class, error) {
	if rec.ClassID != "" {
		class, err := s.classes.FindByID(ctx, rec.ClassID)
		if err == nil {
			return class, nil
		}
		s.logger.Warn("record references unknown class, re-filing by name",
			zap.String("class_id", rec.ClassID), zap.Error(err))
	}
	name := rec.ClassName
	if name == "" {
		name = fallbackClassName
	}
	class, err := s.classes.FindOrCreate(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resolve class %q: %w", name, err)
	}
	return class, nil
}

// resolveStudent matches the name against the class roster, exact first and
// then fuzzy at the usual threshold, creating a new student only when the
// roster offers nothing close.
func (s *LedgerService) resolveStudent(ctx context.Context, classID, name string, cache map[string][]models.Student) (*models.Student, error) {
	roster, ok := cache[classID]
	if !ok {
		var err error
		roster, err = s.students.ListByClass(ctx, classID)
		if err != nil {
			return nil, fmt.Errorf("load roster: %w", err)
		}
		cache[classID] = roster
	}

	title := normalize.TitleCase(name)
	for i := range roster {
		if strings.EqualFold(roster[i].Name, title) {
			return &roster[i], nil
		}
	}

	names := make([]string, len(roster))
	for i := range roster {
		names[i] = roster[i].Name
	}
	if best, ok := fuzzy.BestMatch(title, names); ok && best.Score >= matchThreshold {
		for i := range roster {
			if roster[i].Name == best.Candidate {
				return &roster[i], nil
			}
		}
	}

	student, err := s.students.FindOrCreate(ctx, classID, title)
	if err != nil {
		return nil, fmt.Errorf("create student %q: %w", title, err)
	}
	cache[classID] = append(cache[classID], *student)
	return student, nil
}

// BuildReport assembles one table per class for the subject. Eligibility:
// the enrollment allowlist when one exists; otherwise students holding at
// least one score in the subject. The catch-all General subject instead
// includes the whole roster, blanks and all, so nobody silently disappears.
func (s *LedgerService) BuildReport(ctx context.Context, classIDs []string, subject string) ([]models.ReportTable, error) {
	if subject == "" {
		subject = models.SubjectGeneral
	}

	tables := make([]models.ReportTable, 0, len(classIDs))
	for _, classID := range classIDs {
		table, err := s.buildClassTable(ctx, classID, subject)
		if err != nil {
			return nil, err
		}
		tables = append(tables, *table)
	}
	return tables, nil
}

func (s *LedgerService) buildClassTable(ctx context.Context, classID, subject string) (*models.ReportTable, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("load class: %w", err)
	}
	roster, err := s.students.ListByClass(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	scores, err := s.scores.ListByClassAndSubject(ctx, classID, subject)
	if err != nil {
		return nil, err
	}
	allowlist, err := s.enrollments.ListStudentIDs(ctx, classID, subject)
	if err != nil {
		return nil, fmt.Errorf("load enrollments: %w", err)
	}

	byStudent := make(map[string]map[string]string)
	for _, sc := range scores {
		if byStudent[sc.StudentID] == nil {
			byStudent[sc.StudentID] = make(map[string]string)
		}
		byStudent[sc.StudentID][sc.Assessment] = sc.Value
	}

	eligible := eligibleStudents(roster, byStudent, allowlist, subject)
	assessments := assessmentColumns(scores)

	rows := make([]models.ReportRow, 0, len(eligible))
	for _, student := range eligible {
		values := byStudent[student.ID]
		row := models.ReportRow{
			Name:   student.Name,
			Class:  class.Name,
			Scores: make(map[string]string, len(values)),
		}
		for _, a := range assessments {
			if v, ok := values[a]; ok {
				row.Scores[a] = v
				row.Total += parseScoreValue(v)
			}
		}
		rows = append(rows, row)
	}

	rankRows(rows)

	return &models.ReportTable{
		ClassID:     classID,
		ClassName:   class.Name,
		Subject:     subject,
		Assessments: assessments,
		Rows:        rows,
	}, nil
}

// eligibleStudents applies the gating rules: explicit allowlist when present,
// scored-students otherwise, everybody for the General catch-all.
func eligibleStudents(roster []models.Student, byStudent map[string]map[string]string, allowlist []string, subject string) []models.Student {
	if len(allowlist) > 0 {
		allowed := make(map[string]struct{}, len(allowlist))
		for _, id := range allowlist {
			allowed[id] = struct{}{}
		}
		out := make([]models.Student, 0, len(allowlist))
		for _, st := range roster {
			if _, ok := allowed[st.ID]; ok {
				out = append(out, st)
			}
		}
		return out
	}
	if subject == models.SubjectGeneral {
		return roster
	}
	out := make([]models.Student, 0, len(roster))
	for _, st := range roster {
		if len(byStudent[st.ID]) > 0 {
			out = append(out, st)
		}
	}
	return out
}

// assessmentColumns orders score columns: the preferred sequence first, then
// any custom assessments in first-seen order.
func assessmentColumns(scores []models.Score) []string {
	seen := make(map[string]struct{})
	var custom []string
	for _, sc := range scores {
		if _, ok := seen[sc.Assessment]; ok {
			continue
		}
		seen[sc.Assessment] = struct{}{}
		if !isPreferred(sc.Assessment) {
			custom = append(custom, sc.Assessment)
		}
	}

	columns := make([]string, 0, len(seen))
	for _, a := range preferredAssessments {
		if _, ok := seen[a]; ok {
			columns = append(columns, a)
		}
	}
	return append(columns, custom...)
}

func isPreferred(assessment string) bool {
	for _, a := range preferredAssessments {
		if a == assessment {
			return true
		}
	}
	return false
}

// rankRows sorts by total descending (name ascending on ties) and assigns
// minimum-method ranks: equal totals share a rank and the next distinct
// total jumps past the tie group.
func rankRows(rows []models.ReportRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		return rows[i].Name < rows[j].Name
	})
	for i := range rows {
		if i > 0 && rows[i].Total == rows[i-1].Total {
			rows[i].Rank = rows[i-1].Rank
		} else {
			rows[i].Rank = i + 1
		}
		rows[i].Position = ordinal(rows[i].Rank)
	}
}

// parseScoreValue turns a stored score into a number for totalling. The
// denominator is stripped first; anything non-numeric counts as zero.
func parseScoreValue(raw string) float64 {
	cleaned := normalize.Score(raw)
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

// ordinal renders 1 → "1st", 2 → "2nd", 22 → "22nd", with the 11th-13th
// special case.
func ordinal(n int) string {
	suffix := "th"
	if n%100 < 11 || n%100 > 13 {
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}
