package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gradesheet/gradesheet-api/internal/models"
	"github.com/gradesheet/gradesheet-api/internal/repository"
	apperrors "github.com/gradesheet/gradesheet-api/pkg/errors"
	"github.com/gradesheet/gradesheet-api/pkg/normalize"
)

const rosterNameTTL = 10 * time.Minute

type rosterClassStore interface {
	List(ctx context.Context) ([]models.Class, error)
	FindByID(ctx context.Context, id string) (*models.Class, error)
	FindOrCreate(ctx context.Context, rawName string) (*models.Class, error)
	Delete(ctx context.Context, id string) error
}

type rosterStudentStore interface {
	FindOrCreate(ctx context.Context, classID, name string) (*models.Student, error)
	ListByClass(ctx context.Context, classID string) ([]models.Student, error)
	ListNames(ctx context.Context, classID string) ([]string, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	Rename(ctx context.Context, id, name string) error
	Move(ctx context.Context, id, classID string) error
	Delete(ctx context.Context, id string) error
}

type enrollmentReplacer interface {
	Replace(ctx context.Context, classID, subject string, studentIDs []string) error
}

type nameCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RosterService manages classes and their student lists: pasted rosters,
// file imports, student moves and the cached name lists the extraction
// pipeline reads on every batch.
type RosterService struct {
	classes     rosterClassStore
	students    rosterStudentStore
	enrollments enrollmentReplacer
	cache       nameCache
	logger      *zap.Logger
}

// NewRosterService wires the roster manager. Cache may be nil.
func NewRosterService(classes rosterClassStore, students rosterStudentStore, enrollments enrollmentReplacer, cache nameCache, logger *zap.Logger) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{
		classes:     classes,
		students:    students,
		enrollments: enrollments,
		cache:       cache,
		logger:      logger,
	}
}

// PasteRoster creates or finds the class and inserts one student per
// non-blank line of text. Existing students are left alone. Returns the
// class detail after the paste and how many lines were processed.
func (s *RosterService) PasteRoster(ctx context.Context, classRaw, text string) (*models.ClassDetail, int, error) {
	names := ParseRosterText(text)
	if len(names) == 0 {
		return nil, 0, apperrors.Clone(apperrors.ErrValidation, "roster text has no names")
	}
	return s.addNames(ctx, classRaw, names)
}

// ImportRoster ingests an uploaded roster file. When no class is supplied
// the class name is inferred from the filename, extension stripped, so
// "jss1a.txt" fills "JSS 1A".
func (s *RosterService) ImportRoster(ctx context.Context, filename, classRaw string, content []byte) (*models.ClassDetail, int, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt", ".md", ".csv", "":
	default:
		return nil, 0, apperrors.Clone(apperrors.ErrValidation, fmt.Sprintf("unsupported roster file type %q", ext))
	}

	if classRaw == "" {
		classRaw = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}

	text := string(content)
	if ext == ".csv" {
		text = firstCSVColumn(text)
	}

	names := ParseRosterText(text)
	if len(names) == 0 {
		return nil, 0, apperrors.Clone(apperrors.ErrValidation, "roster file has no names")
	}
	return s.addNames(ctx, classRaw, names)
}

// CreateBlankClass sets up an empty catch-all class so a teacher can start
// grading before any roster exists.
func (s *RosterService) CreateBlankClass(ctx context.Context) (*models.Class, error) {
	return s.classes.FindOrCreate(ctx, models.SubjectGeneral)
}

func (s *RosterService) addNames(ctx context.Context, classRaw string, names []string) (*models.ClassDetail, int, error) {
	class, err := s.classes.FindOrCreate(ctx, classRaw)
	if err != nil {
		return nil, 0, err
	}

	for _, name := range names {
		if _, err := s.students.FindOrCreate(ctx, class.ID, name); err != nil {
			return nil, 0, err
		}
	}
	s.invalidateNames(ctx, class.ID)

	students, err := s.students.ListByClass(ctx, class.ID)
	if err != nil {
		return nil, 0, err
	}
	return &models.ClassDetail{Class: *class, Students: students}, len(names), nil
}

// ListClasses returns every class with its roster.
func (s *RosterService) ListClasses(ctx context.Context) ([]models.ClassDetail, error) {
	classes, err := s.classes.List(ctx)
	if err != nil {
		return nil, err
	}
	details := make([]models.ClassDetail, 0, len(classes))
	for _, class := range classes {
		students, err := s.students.ListByClass(ctx, class.ID)
		if err != nil {
			return nil, err
		}
		details = append(details, models.ClassDetail{Class: class, Students: students})
	}
	return details, nil
}

// RosterNames returns the class's student names, served from Redis when
// fresh. The cache only ever lags a roster write by its TTL; writes through
// this service invalidate it immediately.
func (s *RosterService) RosterNames(ctx context.Context, classID string) ([]string, error) {
	key := repository.RosterNameKey(classID)
	if s.cache != nil {
		var cached []string
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	names, err := s.students.ListNames(ctx, classID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, names, rosterNameTTL); err != nil {
			s.logger.Warn("cache roster names", zap.String("class_id", classID), zap.Error(err))
		}
	}
	return names, nil
}

// TargetRosters resolves the batch request's class names into rosters for
// reconciliation. Classes are created on first sight; the first named class
// is the primary that catches unroutable records.
func (s *RosterService) TargetRosters(ctx context.Context, classNames []string) ([]ClassRoster, error) {
	rosters := make([]ClassRoster, 0, len(classNames))
	for i, raw := range classNames {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		class, err := s.classes.FindOrCreate(ctx, raw)
		if err != nil {
			return nil, err
		}
		names, err := s.RosterNames(ctx, class.ID)
		if err != nil {
			return nil, err
		}
		rosters = append(rosters, ClassRoster{
			ClassID:   class.ID,
			ClassName: class.Name,
			Names:     names,
			Primary:   i == 0,
		})
	}
	return rosters, nil
}

// RenameStudent title-cases and applies the new name.
func (s *RosterService) RenameStudent(ctx context.Context, studentID, name string) error {
	title := normalize.TitleCase(name)
	if title == "" {
		return apperrors.Clone(apperrors.ErrValidation, "student name is required")
	}
	detail, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.Clone(apperrors.ErrNotFound, "student not found")
		}
		return err
	}
	if err := s.students.Rename(ctx, studentID, title); err != nil {
		return err
	}
	s.invalidateNames(ctx, detail.ClassID)
	return nil
}

// MoveStudent re-files a student into another class, keeping their scores.
func (s *RosterService) MoveStudent(ctx context.Context, studentID, classID string) error {
	detail, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.Clone(apperrors.ErrNotFound, "student not found")
		}
		return err
	}
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.Clone(apperrors.ErrNotFound, "destination class not found")
		}
		return err
	}
	if err := s.students.Move(ctx, studentID, classID); err != nil {
		return err
	}
	s.invalidateNames(ctx, detail.ClassID, classID)
	return nil
}

// DeleteStudent removes a student; scores and enrollments cascade away.
func (s *RosterService) DeleteStudent(ctx context.Context, studentID string) error {
	detail, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.Clone(apperrors.ErrNotFound, "student not found")
		}
		return err
	}
	if err := s.students.Delete(ctx, studentID); err != nil {
		return err
	}
	s.invalidateNames(ctx, detail.ClassID)
	return nil
}

// DeleteClass removes a class and everything under it.
func (s *RosterService) DeleteClass(ctx context.Context, classID string) error {
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.Clone(apperrors.ErrNotFound, "class not found")
		}
		return err
	}
	if err := s.classes.Delete(ctx, classID); err != nil {
		return err
	}
	s.invalidateNames(ctx, classID)
	return nil
}

// UpdateEnrollments replaces the subject allowlist for a class. An empty
// list clears it, putting the subject back on scored-students gating.
func (s *RosterService) UpdateEnrollments(ctx context.Context, classID, subject string, studentIDs []string) error {
	if strings.TrimSpace(subject) == "" {
		return apperrors.Clone(apperrors.ErrValidation, "subject is required")
	}
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.Clone(apperrors.ErrNotFound, "class not found")
		}
		return err
	}
	roster, err := s.students.ListByClass(ctx, classID)
	if err != nil {
		return err
	}
	members := make(map[string]struct{}, len(roster))
	for _, st := range roster {
		members[st.ID] = struct{}{}
	}
	for _, id := range studentIDs {
		if _, ok := members[id]; !ok {
			return apperrors.Clone(apperrors.ErrValidation, fmt.Sprintf("student %s is not in this class", id))
		}
	}
	return s.enrollments.Replace(ctx, classID, subject, studentIDs)
}

func (s *RosterService) invalidateNames(ctx context.Context, classIDs ...string) {
	if s.cache == nil {
		return
	}
	keys := make([]string, len(classIDs))
	for i, id := range classIDs {
		keys[i] = repository.RosterNameKey(id)
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("invalidate roster name cache", zap.Error(err))
	}
}

// ParseRosterText splits pasted roster text into title-cased names, one per
// non-blank line.
func ParseRosterText(text string) []string {
	var names []string
	for _, line := range strings.Split(text, "\n") {
		name := normalize.TitleCase(line)
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// firstCSVColumn reduces CSV content to its first column, dropping a header
// row whose first cell reads like a label.
func firstCSVColumn(text string) string {
	var b strings.Builder
	for i, line := range strings.Split(text, "\n") {
		cell := line
		if idx := strings.Index(line, ","); idx >= 0 {
			cell = line[:idx]
		}
		cell = strings.Trim(strings.TrimSpace(cell), `"`)
		if i == 0 && strings.EqualFold(cell, "name") {
			continue
		}
		b.WriteString(cell)
		b.WriteString("\n")
	}
	return b.String()
}
