package rules

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/cuemby/provenance/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestNormalizeE164(t *testing.T) {
	cases := map[string]string{
		"(415) 555-0123": "+14155550123",
		"415-555-0123":   "+14155550123",
		"+14155550123":   "+14155550123",
	}
	for in, want := range cases {
		got, ok := normalizeE164(in)
		require.True(t, ok, in)
		require.Equal(t, want, got)
	}

	_, ok := normalizeE164("123")
	require.False(t, ok)
}

func TestPhoneRule_EmptyProducesNoResult(t *testing.T) {
	r := phoneRule{}
	results := r.Evaluate(types.ProviderSubmission{}, nil, time.Now())
	require.Nil(t, results)
}

func TestPhoneRule_MalformedIsInvalid(t *testing.T) {
	r := phoneRule{}
	out := r.Evaluate(types.ProviderSubmission{PhonePrimary: "123"}, nil, time.Now())
	require.Len(t, out, 1)
	require.Equal(t, types.ValidationStatusInvalid, out[0].Status)
}

func TestEmailRule_MalformedIsInvalid(t *testing.T) {
	r := emailRule{}
	out := r.Evaluate(types.ProviderSubmission{Email: "not-an-email"}, nil, time.Now())
	require.Len(t, out, 1)
	require.Equal(t, types.ValidationStatusInvalid, out[0].Status)
}

func TestEmailRule_NoMXIsWarning(t *testing.T) {
	r := emailRule{lookupMX: func(domain string) ([]*net.MX, error) {
		return nil, errors.New("no such host")
	}}
	out := r.Evaluate(types.ProviderSubmission{Email: "doc@example.com"}, nil, time.Now())
	require.Len(t, out, 1)
	require.Equal(t, types.ValidationStatusWarning, out[0].Status)
}

func TestEmailRule_ResolvedMXIsValid(t *testing.T) {
	r := emailRule{lookupMX: func(domain string) ([]*net.MX, error) {
		return []*net.MX{{Host: "mail." + domain, Pref: 10}}, nil
	}}
	out := r.Evaluate(types.ProviderSubmission{Email: "doc@hospital.org"}, nil, time.Now())
	require.Len(t, out, 1)
	require.Equal(t, types.ValidationStatusValid, out[0].Status)
}

func TestIdentifierRule_NoResultProducesNothing(t *testing.T) {
	r := identifierRule{}
	out := r.Evaluate(types.ProviderSubmission{}, map[types.TaskType]*types.WorkerTaskResult{}, time.Now())
	require.Nil(t, out)
}

func TestIdentifierRule_SuccessProducesValid(t *testing.T) {
	r := identifierRule{}
	results := map[types.TaskType]*types.WorkerTaskResult{
		types.TaskTypeIdentifierCheck: {Success: true, OverallConfidence: 0.97},
	}
	out := r.Evaluate(types.ProviderSubmission{Identifier: "1234567893"}, results, time.Now())
	require.Len(t, out, 1)
	require.Equal(t, types.ValidationStatusValid, out[0].Status)
	require.Equal(t, types.SourceIdentifier, out[0].Source)
}

func TestAddressRule_FailureIsInvalid(t *testing.T) {
	r := addressRule{}
	results := map[types.TaskType]*types.WorkerTaskResult{
		types.TaskTypeAddressValidation: {Success: false, ErrorMessage: "not found"},
	}
	out := r.Evaluate(types.ProviderSubmission{}, results, time.Now())
	require.Len(t, out, 1)
	require.Equal(t, types.ValidationStatusInvalid, out[0].Status)
}

func TestLicenseRule_LowNameMatchIsWarning(t *testing.T) {
	r := licenseRule{}
	results := map[types.TaskType]*types.WorkerTaskResult{
		types.TaskTypeLicenseVerification: {
			Success:          true,
			NormalizedFields: map[string]string{"license_number": "A1", "license_status": "active"},
			FieldConfidence:  map[string]float64{"license_number": 0.9, "license_status": 0.3},
		},
	}
	out := r.Evaluate(types.ProviderSubmission{}, results, time.Now())
	require.Len(t, out, 2)
	require.Equal(t, types.ValidationStatusWarning, out[1].Status)
}

func TestLicenseRule_SuspendedIsInvalidWithFlagEvidence(t *testing.T) {
	r := licenseRule{}
	results := map[types.TaskType]*types.WorkerTaskResult{
		types.TaskTypeLicenseVerification: {
			Success:          true,
			NormalizedFields: map[string]string{"license_number": "A1", "license_status": "suspended"},
			FieldConfidence:  map[string]float64{"license_number": 0.9, "license_status": 1.0},
		},
	}
	out := r.Evaluate(types.ProviderSubmission{}, results, time.Now())
	require.Len(t, out, 2)
	require.Equal(t, "license_status", out[1].FieldName)
	require.Equal(t, "suspended", out[1].Value)
	require.Equal(t, types.ValidationStatusInvalid, out[1].Status)
}

func TestLicenseRule_ActiveWithHighNameMatchIsValid(t *testing.T) {
	r := licenseRule{}
	results := map[types.TaskType]*types.WorkerTaskResult{
		types.TaskTypeLicenseVerification: {
			Success:          true,
			NormalizedFields: map[string]string{"license_number": "A1", "license_status": "active"},
			FieldConfidence:  map[string]float64{"license_number": 0.9, "license_status": 0.95},
		},
	}
	out := r.Evaluate(types.ProviderSubmission{}, results, time.Now())
	require.Len(t, out, 2)
	require.Equal(t, types.ValidationStatusValid, out[1].Status)
}

func TestAddressRule_ApproximateTierIsWarningNotInvalid(t *testing.T) {
	r := addressRule{}
	results := map[types.TaskType]*types.WorkerTaskResult{
		types.TaskTypeAddressValidation: {
			Success:          true,
			NormalizedFields: map[string]string{"address_street": "500 HARBOR BLVD"},
			SourceMetadata:   map[string]string{"place_id": "pl_abc123", "geometry_tier": "approximate"},
		},
	}
	out := r.Evaluate(types.ProviderSubmission{}, results, time.Now())
	require.NotEmpty(t, out)
	require.Equal(t, types.ValidationStatusWarning, out[0].Status)
}

func TestAddressRule_RooftopTierIsValid(t *testing.T) {
	r := addressRule{}
	results := map[types.TaskType]*types.WorkerTaskResult{
		types.TaskTypeAddressValidation: {
			Success:          true,
			NormalizedFields: map[string]string{"address_street": "500 HARBOR BLVD"},
			SourceMetadata:   map[string]string{"place_id": "pl_abc123", "geometry_tier": "rooftop"},
		},
	}
	out := r.Evaluate(types.ProviderSubmission{}, results, time.Now())
	require.NotEmpty(t, out)
	require.Equal(t, types.ValidationStatusValid, out[0].Status)
}

func TestAddressRule_NoPlaceIDIsInvalid(t *testing.T) {
	r := addressRule{}
	results := map[types.TaskType]*types.WorkerTaskResult{
		types.TaskTypeAddressValidation: {
			Success:          true,
			NormalizedFields: map[string]string{"address_street": "500 HARBOR BLVD"},
			SourceMetadata:   map[string]string{},
		},
	}
	out := r.Evaluate(types.ProviderSubmission{}, results, time.Now())
	require.NotEmpty(t, out)
	require.Equal(t, types.ValidationStatusInvalid, out[0].Status)
}

func TestPhoneRule_ImplausibleNANPExchangeIsInvalid(t *testing.T) {
	r := phoneRule{}
	out := r.Evaluate(types.ProviderSubmission{PhonePrimary: "555-000-0000"}, nil, time.Now())
	require.Len(t, out, 1)
	require.Equal(t, types.ValidationStatusInvalid, out[0].Status)
	require.Equal(t, 0.0, out[0].Confidence)
}

func TestPhoneRule_PlausibleNANPIsValid(t *testing.T) {
	r := phoneRule{}
	out := r.Evaluate(types.ProviderSubmission{PhonePrimary: "(415) 555-0123"}, nil, time.Now())
	require.Len(t, out, 1)
	require.Equal(t, types.ValidationStatusValid, out[0].Status)
	require.Equal(t, 0.9, out[0].Confidence)
}

func TestNameMatchRule_SplitsGivenAndFamilyNameIndependently(t *testing.T) {
	r := nameMatchRule{}
	results := map[types.TaskType]*types.WorkerTaskResult{
		types.TaskTypeIdentifierCheck: {
			Success: true,
			NormalizedFields: map[string]string{
				"given_name":  "ALICIA",
				"family_name": "NAKAMOOR",
			},
		},
	}
	out := r.Evaluate(types.ProviderSubmission{GivenName: "Alicia", FamilyName: "Nakamura"}, results, time.Now())
	require.Len(t, out, 2)

	byField := map[string]types.ValidationResult{}
	for _, res := range out {
		byField[res.FieldName] = res
	}
	require.Equal(t, types.ValidationStatusValid, byField["given_name"].Status)
	require.Equal(t, types.ValidationStatusInvalid, byField["family_name"].Status)
}

func TestEngineRun_CombinesAllApplicableRules(t *testing.T) {
	e := NewEngine()
	sub := types.ProviderSubmission{PhonePrimary: "415-555-0123", Email: "doc@example.com"}
	out := e.Run(sub, map[types.TaskType]*types.WorkerTaskResult{}, time.Now())
	// only phone + email rules fire with no task results and no name
	require.GreaterOrEqual(t, len(out), 1)
}
