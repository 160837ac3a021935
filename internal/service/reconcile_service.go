package service

import (
	"strings"

	"go.uber.org/zap"

	"github.com/gradesheet/gradesheet-api/internal/models"
	"github.com/gradesheet/gradesheet-api/pkg/fuzzy"
	"github.com/gradesheet/gradesheet-api/pkg/normalize"
)

const (
	// matchThreshold is the minimum token-set score for a fuzzy name match
	// to be trusted at all.
	matchThreshold = 85
	// ambiguityMargin is how far the best match must lead the runner-up
	// before it is accepted without review.
	ambiguityMargin = 5
	// maxCandidates caps how many suggestions an ambiguous record carries.
	maxCandidates = 3
)

// ClassRoster is one target class with its known student names. Names are
// stored title-cased, the same spelling the roster table holds. Primary marks
// the class that catches records no other layer could route.
type ClassRoster struct {
	ClassID   string
	ClassName string
	Names     []string
	Primary   bool
}

// ReconcileService turns raw extractor output into records that are safe to
// merge: scores cleaned, names checked against the roster pool, and each
// record routed to a class. It holds no state and is safe for concurrent use.
type ReconcileService struct {
	logger *zap.Logger
}

// NewReconcileService constructs the engine. The logger may be nil.
func NewReconcileService(logger *zap.Logger) *ReconcileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileService{logger: logger}
}

// Reconcile processes one raw record against the target rosters. It never
// mutates its inputs and is idempotent: feeding a reconciled record's fields
// back in yields the same output.
func (s *ReconcileService) Reconcile(raw models.RawRecord, rosters []ClassRoster) models.ReconciledRecord {
	rec := models.ReconciledRecord{
		Name:       normalize.TitleCase(raw.Name),
		Score:      normalize.Score(raw.RawScore),
		Confidence: raw.Confidence,
		Resolution: models.ResolutionUnresolved,
	}

	pool := combinedPool(rosters)
	s.resolveName(&rec, raw, pool)
	s.routeClass(&rec, raw, rosters)

	rec.NeedsResolution = rec.Resolution == models.ResolutionAmbiguous || rec.ClassID == ""

	return rec
}

// resolveName checks the extracted name against the combined roster pool and
// rewrites it to the roster spelling when the match is safe to trust.
func (s *ReconcileService) resolveName(rec *models.ReconciledRecord, raw models.RawRecord, pool []string) {
	if rec.Name == "" {
		rec.Resolution = models.ResolutionUnresolved
		return
	}
	if len(pool) == 0 {
		// No roster to check against: keep the name verbatim.
		rec.Resolution = models.ResolutionUnresolved
		return
	}

	// A high-confidence read that already matches a roster entry needs no
	// fuzzy pass.
	if raw.Confidence == models.ConfidenceHigh && containsFold(pool, rec.Name) {
		rec.Name = canonicalSpelling(pool, rec.Name)
		rec.Resolution = models.ResolutionResolved
		return
	}

	matches := fuzzy.TopK(rec.Name, pool, maxCandidates)
	if len(matches) == 0 {
		rec.Resolution = models.ResolutionUnresolved
		return
	}

	top := matches[0]
	if top.Score >= matchThreshold {
		margin := top.Score
		if len(matches) > 1 {
			margin = top.Score - matches[1].Score
		}
		if len(matches) == 1 || margin > ambiguityMargin {
			if top.Candidate != rec.Name {
				s.logger.Debug("corrected extracted name",
					zap.String("from", rec.Name),
					zap.String("to", top.Candidate),
					zap.Int("score", top.Score))
			}
			rec.Name = top.Candidate
			rec.Resolution = models.ResolutionResolved
			return
		}
	}

	rec.Resolution = models.ResolutionAmbiguous
	rec.Candidates = matches
}

// routeClass files the record into a class by three layers: the class written
// on the sheet, then the roster that knows the resolved name, then the
// primary class. With several targets and no primary the class stays empty.
func (s *ReconcileService) routeClass(rec *models.ReconciledRecord, raw models.RawRecord, rosters []ClassRoster) {
	if len(rosters) == 0 {
		return
	}

	if hint := normalize.Class(raw.ClassHint); hint != "" {
		for _, roster := range rosters {
			if strings.EqualFold(roster.ClassName, hint) {
				rec.ClassID = roster.ClassID
				rec.ClassName = roster.ClassName
				return
			}
		}
	}

	if rec.Resolution == models.ResolutionResolved {
		for _, roster := range rosters {
			if containsFold(roster.Names, rec.Name) {
				rec.ClassID = roster.ClassID
				rec.ClassName = roster.ClassName
				return
			}
		}
	}

	if len(rosters) == 1 {
		rec.ClassID = rosters[0].ClassID
		rec.ClassName = rosters[0].ClassName
		return
	}
	for _, roster := range rosters {
		if roster.Primary {
			rec.ClassID = roster.ClassID
			rec.ClassName = roster.ClassName
			return
		}
	}
	// Several targets, none primary: leave the class unresolved rather than
	// guessing.
}

func combinedPool(rosters []ClassRoster) []string {
	seen := make(map[string]struct{})
	var pool []string
	for _, roster := range rosters {
		for _, name := range roster.Names {
			key := strings.ToLower(name)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			pool = append(pool, name)
		}
	}
	return pool
}

func containsFold(names []string, target string) bool {
	for _, name := range names {
		if strings.EqualFold(name, target) {
			return true
		}
	}
	return false
}

func canonicalSpelling(names []string, target string) string {
	for _, name := range names {
		if strings.EqualFold(name, target) {
			return name
		}
	}
	return target
}
