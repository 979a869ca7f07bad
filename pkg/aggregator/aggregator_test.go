package aggregator

import (
	"testing"
	"time"

	"github.com/cuemby/provenance/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestAggregate_AllValidYieldsValidStatus(t *testing.T) {
	now := time.Now()
	results := []types.ValidationResult{
		{FieldName: "identifier", Value: "1234567893", Status: types.ValidationStatusValid, Confidence: 0.97, Source: types.SourceIdentifier, Timestamp: now},
		{FieldName: "address_street", Value: "123 MAIN ST", Status: types.ValidationStatusValid, Confidence: 0.9, Source: types.SourceAddress, Timestamp: now},
	}

	report := Aggregate("job-1", "P1", results, 0.8, "validation-engine", now)
	require.Equal(t, types.ValidationStatusValid, report.ValidationStatus)
	require.Empty(t, report.Flags)
	require.Equal(t, "1234567893", report.AggregatedFields["identifier"])
}

func TestAggregate_MissingIdentifierIsInvalidAndFlagged(t *testing.T) {
	now := time.Now()
	results := []types.ValidationResult{
		{FieldName: "address_street", Value: "123 MAIN ST", Status: types.ValidationStatusValid, Confidence: 0.9, Source: types.SourceAddress, Timestamp: now},
	}

	report := Aggregate("job-1", "P1", results, 0.8, "validation-engine", now)
	require.Equal(t, types.ValidationStatusInvalid, report.ValidationStatus)
	require.Contains(t, report.Flags, "MISSING_IDENTIFIER")
}

func TestAggregate_InvalidCriticalFieldIsInvalid(t *testing.T) {
	now := time.Now()
	results := []types.ValidationResult{
		{FieldName: "identifier", Value: "", Status: types.ValidationStatusInvalid, Confidence: 0, Source: types.SourceIdentifier, Timestamp: now},
	}
	report := Aggregate("job-1", "P1", results, 0.8, "validation-engine", now)
	require.Equal(t, types.ValidationStatusInvalid, report.ValidationStatus)
	require.Contains(t, report.Flags, "FAILED_VALIDATIONS:1")
}

func TestAggregate_BelowThresholdIsWarning(t *testing.T) {
	now := time.Now()
	results := []types.ValidationResult{
		{FieldName: "identifier", Value: "1234567893", Status: types.ValidationStatusValid, Confidence: 0.5, Source: types.SourceIdentifier, Timestamp: now},
	}
	report := Aggregate("job-1", "P1", results, 0.9, "validation-engine", now)
	require.Equal(t, types.ValidationStatusWarning, report.ValidationStatus)
}

func TestAggregate_DisagreementAcrossSourcesIsFlagged(t *testing.T) {
	now := time.Now()
	results := []types.ValidationResult{
		{FieldName: "identifier", Value: "1234567893", Status: types.ValidationStatusValid, Confidence: 0.9, Source: types.SourceIdentifier, Timestamp: now},
		{FieldName: "practice_name", Value: "ST MARY HOSPITAL", Status: types.ValidationStatusValid, Confidence: 0.9, Source: types.SourceIdentifier, Timestamp: now},
		{FieldName: "practice_name", Value: "ST MARYS CLINIC", Status: types.ValidationStatusValid, Confidence: 0.6, Source: types.SourceHospitalWebsite, Timestamp: now},
	}
	report := Aggregate("job-1", "P1", results, 0.8, "validation-engine", now)
	// identifier (0.40 weight) outweighs hospital_website (0.20), so the
	// hospital_website row is the one that lost the tie-break.
	require.Contains(t, report.Flags, "DISAGREEMENT:practice_name:hospital_website")
}

func TestAggregate_WeightsFavorHigherWeightSource(t *testing.T) {
	now := time.Now()
	results := []types.ValidationResult{
		{FieldName: "identifier", Value: "1234567893", Status: types.ValidationStatusValid, Confidence: 0.97, Source: types.SourceIdentifier, Timestamp: now},
		{FieldName: "identifier", Value: "0000000000", Status: types.ValidationStatusWarning, Confidence: 0.3, Source: types.SourceLicenseBoard, Timestamp: now},
	}
	report := Aggregate("job-1", "P1", results, 0.8, "validation-engine", now)
	// identifier (0.40 weight) should outvote license_board (0.15 weight)
	require.Equal(t, "1234567893", report.AggregatedFields["identifier"])
}
