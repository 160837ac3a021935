package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradesheet/gradesheet-api/internal/models"
)

func TestReconcileCorrectsMisspelledName(t *testing.T) {
	svc := NewReconcileService(nil)
	rosters := []ClassRoster{{
		ClassID:   "c1",
		ClassName: "JSS 1A",
		Names:     []string{"John Smith", "Jane Doe"},
	}}

	rec := svc.Reconcile(models.RawRecord{
		Name:       "Jon Smith",
		RawScore:   "15/20",
		Confidence: models.ConfidenceMedium,
	}, rosters)

	assert.Equal(t, "John Smith", rec.Name)
	assert.Equal(t, "15", rec.Score)
	assert.Equal(t, models.ResolutionResolved, rec.Resolution)
	assert.Equal(t, "c1", rec.ClassID)
	assert.False(t, rec.NeedsResolution)
	assert.Empty(t, rec.Candidates)
}

func TestReconcileAmbiguousWhenMarginTooThin(t *testing.T) {
	svc := NewReconcileService(nil)
	rosters := []ClassRoster{{
		ClassID:   "c1",
		ClassName: "JSS 1A",
		Names:     []string{"John A Smith", "John B Smith"},
	}}

	rec := svc.Reconcile(models.RawRecord{
		Name:       "John Smith",
		RawScore:   "12",
		Confidence: models.ConfidenceMedium,
	}, rosters)

	assert.Equal(t, models.ResolutionAmbiguous, rec.Resolution)
	assert.Equal(t, "John Smith", rec.Name, "ambiguous records keep the extracted name")
	assert.True(t, rec.NeedsResolution)
	require.Len(t, rec.Candidates, 2)
	assert.Equal(t, rec.Candidates[0].Score, rec.Candidates[1].Score)
}

func TestReconcileHighConfidenceExactSkipsFuzzy(t *testing.T) {
	svc := NewReconcileService(nil)
	rosters := []ClassRoster{{
		ClassID:   "c1",
		ClassName: "JSS 1A",
		Names:     []string{"Jane Doe"},
	}}

	rec := svc.Reconcile(models.RawRecord{
		Name:       "jane doe",
		RawScore:   "9",
		Confidence: models.ConfidenceHigh,
	}, rosters)

	assert.Equal(t, "Jane Doe", rec.Name)
	assert.Equal(t, models.ResolutionResolved, rec.Resolution)
}

func TestReconcileEmptyPoolKeepsNameVerbatim(t *testing.T) {
	svc := NewReconcileService(nil)
	rosters := []ClassRoster{{ClassID: "c1", ClassName: "JSS 1A"}}

	rec := svc.Reconcile(models.RawRecord{
		Name:     "amaka obi",
		RawScore: "7",
	}, rosters)

	assert.Equal(t, "Amaka Obi", rec.Name)
	assert.Equal(t, models.ResolutionUnresolved, rec.Resolution)
	assert.Equal(t, "c1", rec.ClassID, "single target class still catches the record")
}

func TestReconcileRoutesByDeclaredClass(t *testing.T) {
	svc := NewReconcileService(nil)
	rosters := []ClassRoster{
		{ClassID: "c1", ClassName: "JSS 1A", Names: []string{"John Smith"}},
		{ClassID: "c2", ClassName: "JSS 1B", Names: []string{"Jane Doe"}},
	}

	rec := svc.Reconcile(models.RawRecord{
		Name:      "someone new",
		ClassHint: "jss-1(b)",
		RawScore:  "5",
	}, rosters)

	assert.Equal(t, "c2", rec.ClassID)
	assert.Equal(t, "JSS 1B", rec.ClassName)
}

func TestReconcileRoutesByRosterMembership(t *testing.T) {
	svc := NewReconcileService(nil)
	rosters := []ClassRoster{
		{ClassID: "c1", ClassName: "JSS 1A", Names: []string{"John Smith"}},
		{ClassID: "c2", ClassName: "JSS 1B", Names: []string{"Jane Doe"}},
	}

	rec := svc.Reconcile(models.RawRecord{
		Name:     "Jane Doe",
		RawScore: "11",
	}, rosters)

	assert.Equal(t, models.ResolutionResolved, rec.Resolution)
	assert.Equal(t, "c2", rec.ClassID)
}

func TestReconcileMultipleTargetsWithoutPrimaryLeavesClassUnset(t *testing.T) {
	svc := NewReconcileService(nil)
	rosters := []ClassRoster{
		{ClassID: "c1", ClassName: "JSS 1A", Names: []string{"John Smith"}},
		{ClassID: "c2", ClassName: "JSS 1B", Names: []string{"Jane Doe"}},
	}

	rec := svc.Reconcile(models.RawRecord{
		Name:     "Total Stranger",
		RawScore: "3",
	}, rosters)

	assert.Empty(t, rec.ClassID)
	assert.True(t, rec.NeedsResolution)
}

func TestReconcilePrimaryClassCatchesStrays(t *testing.T) {
	svc := NewReconcileService(nil)
	rosters := []ClassRoster{
		{ClassID: "c1", ClassName: "JSS 1A", Names: []string{"John Smith"}},
		{ClassID: "c2", ClassName: "JSS 1B", Names: []string{"Jane Doe"}, Primary: true},
	}

	rec := svc.Reconcile(models.RawRecord{
		Name:     "Total Stranger",
		RawScore: "3",
	}, rosters)

	assert.Equal(t, "c2", rec.ClassID)
}

func TestReconcileIsIdempotent(t *testing.T) {
	svc := NewReconcileService(nil)
	rosters := []ClassRoster{{
		ClassID:   "c1",
		ClassName: "JSS 1A",
		Names:     []string{"John Smith", "Jane Doe"},
	}}

	first := svc.Reconcile(models.RawRecord{
		Name:       "Jon Smith",
		RawScore:   "15/20",
		Confidence: models.ConfidenceMedium,
	}, rosters)
	second := svc.Reconcile(models.RawRecord{
		Name:       first.Name,
		RawScore:   first.Score,
		Confidence: first.Confidence,
	}, rosters)

	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.ClassID, second.ClassID)
	assert.Equal(t, first.Resolution, second.Resolution)
}

func TestReconcileMissingName(t *testing.T) {
	svc := NewReconcileService(nil)

	rec := svc.Reconcile(models.RawRecord{RawScore: "10"}, []ClassRoster{{ClassID: "c1", ClassName: "JSS 1A"}})

	assert.Empty(t, rec.Name)
	assert.Equal(t, models.ResolutionUnresolved, rec.Resolution)
	assert.Equal(t, "10", rec.Score)
}
