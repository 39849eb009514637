package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drillwatch/permit-pipeline/internal/permits"
)

func newMockStore(t *testing.T) (*PermitStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := NewWithPool(mock, "permits")
	require.NoError(t, err)
	return s, mock
}

func TestNewWithPoolRejectsBadTableName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	_, err = NewWithPool(mock, "permits; DROP TABLE permits")
	require.Error(t, err)
}

func TestUpsertPermits(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	amend := false
	rows := []permits.PermitRecord{
		{
			StatusNo:     "893412",
			StatusDate:   "08/01/2024",
			APINo:        "42-123-45678",
			OperatorName: "PIONEER NATURAL RES. USA, INC.",
			OperatorNo:   "665748",
			LeaseName:    "SPRABERRY UNIT",
			WellNo:       "4HB",
			District:     "08",
			County:       "MIDLAND",
			Amend:        &amend,
			DetailURL:    "https://portal.example.gov/dp/detail.do?pktNo=78123",
		},
		{StatusNo: ""}, // footer artifact, skipped
		{StatusNo: "893413", OperatorName: "SMALL OPERATOR LLC"},
	}

	mock.ExpectExec("INSERT INTO permits").
		WithArgs("893412", "08/01/2024", "42-123-45678", "PIONEER NATURAL RES. USA, INC.",
			"665748", "SPRABERRY UNIT", "4HB", "08", "MIDLAND", "", "", &amend, "", "",
			"https://portal.example.gov/dp/detail.do?pktNo=78123").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO permits").
		WithArgs("893413", "", "", "SMALL OPERATOR LLC", "", "", "", "", "", "", "",
			(*bool)(nil), "", "", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	written, err := s.UpsertPermits(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 2, written)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPermitsStopsOnError(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO permits").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection lost"))

	written, err := s.UpsertPermits(context.Background(), []permits.PermitRecord{
		{StatusNo: "893412"}, {StatusNo: "893413"},
	})
	require.Error(t, err)
	assert.Zero(t, written)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectNeedingEnrichment(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	retryable := []string{"partial", "parse_error", "download_error", "no_pdf"}
	cutoff := time.Date(2024, 9, 1, 6, 0, 0, 0, time.UTC)

	columns := []string{
		"status_no", "status_date", "api_no", "operator_name", "operator_no",
		"lease_name", "well_no", "district", "county", "wellbore_profile",
		"filing_purpose", "amend", "total_depth", "current_queue", "detail_url",
		"horizontal_wellbore", "field_name", "acres", "section", "block",
		"survey", "abstract_no", "reservoir_well_count", "pdf_url",
		"parse_status", "parse_confidence", "text_snippet", "last_enriched_at",
	}
	acres := 1280.5
	mock.ExpectQuery("SELECT").
		WithArgs("unprocessed", retryable, cutoff, 10).
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow("893412", "08/01/2024", "42-123-45678", "PIONEER", "665748",
				"SPRABERRY UNIT", "4HB", "08", "MIDLAND", "Horizontal",
				"New Drill", (*bool)(nil), "9850", "Mapping", "https://portal.example.gov/d?p=1",
				(*string)(nil), (*string)(nil), &acres, (*string)(nil), (*string)(nil),
				(*string)(nil), (*string)(nil), (*int)(nil), (*string)(nil),
				"partial", 0.2, "snippet", (*time.Time)(nil)))

	out, err := s.SelectNeedingEnrichment(context.Background(), 10, cutoff)
	require.NoError(t, err)
	require.Len(t, out, 1)

	rec := out[0]
	assert.Equal(t, "893412", rec.StatusNo)
	assert.Equal(t, permits.StatusPartial, rec.Enrichment.ParseStatus)
	require.NotNil(t, rec.Enrichment.Acres)
	assert.InDelta(t, 1280.5, *rec.Enrichment.Acres, 0.001)
	assert.Nil(t, rec.Enrichment.LastEnrichedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEnrichmentSetIfPresent(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	wellbore := "Horizontal"
	count := 14
	at := time.Date(2024, 9, 6, 12, 0, 0, 0, time.UTC)
	result := permits.EnrichmentResult{
		HorizontalWellbore: &wellbore,
		ReservoirWellCount: &count,
		ParseStatus:        permits.StatusPartial,
		ParseConfidence:    0.5,
		TextSnippet:        "sample",
		LastEnrichedAt:     &at,
	}

	// Absent fields travel as NULL so COALESCE keeps the stored values.
	mock.ExpectExec("UPDATE permits SET").
		WithArgs("893412", &wellbore, (*string)(nil), (*float64)(nil), (*string)(nil),
			(*string)(nil), (*string)(nil), (*string)(nil), &count, (*string)(nil),
			"partial", 0.5, "sample", &at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpdateEnrichment(context.Background(), "893412", result))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEnrichmentUnknownPermit(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE permits SET").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateEnrichment(context.Background(), "000000", permits.EnrichmentResult{
		ParseStatus: permits.StatusNoPDF,
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEnrichmentRequiresStatusNo(t *testing.T) {
	t.Parallel()

	s, _ := newMockStore(t)
	err := s.UpdateEnrichment(context.Background(), "", permits.EnrichmentResult{})
	require.Error(t, err)
}
