// Package rules implements the validation rules engine: each rule
// turns one task's evidence (or, for phone/email, the submission alone)
// into one or more per-field ValidationResult rows with a status,
// confidence, and contributing ValidationSource. The Report Aggregator
// (pkg/aggregator) fuses these into the per-field and per-provider
// verdicts.
package rules

import (
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/cuemby/provenance/pkg/types"
)

// Rule evaluates one concern against a submission and the task results
// gathered for it so far, possibly returning zero results if its
// dependency (e.g. a task result) is absent.
type Rule interface {
	Name() string
	Evaluate(sub types.ProviderSubmission, results map[types.TaskType]*types.WorkerTaskResult, now time.Time) []types.ValidationResult
}

// Engine runs every registered Rule and flattens their output.
type Engine struct {
	rules []Rule
}

// NewEngine builds an Engine with every registered rule.
func NewEngine() *Engine {
	return &Engine{
		rules: []Rule{
			identifierRule{},
			addressRule{},
			licenseRule{},
			nameMatchRule{},
			phoneRule{},
			emailRule{},
		},
	}
}

// Run evaluates every rule and returns the combined, unordered result set.
func (e *Engine) Run(sub types.ProviderSubmission, results map[types.TaskType]*types.WorkerTaskResult, now time.Time) []types.ValidationResult {
	var out []types.ValidationResult
	for _, r := range e.rules {
		out = append(out, r.Evaluate(sub, results, now)...)
	}
	return out
}

func tierStatus(confidence float64) types.ValidationStatus {
	switch {
	case confidence >= 0.85:
		return types.ValidationStatusValid
	case confidence >= 0.6:
		return types.ValidationStatusWarning
	default:
		return types.ValidationStatusInvalid
	}
}

// identifierRule repackages the identifier_check task's evidence — the
// connector already applied the Luhn-based format check before calling
// the registry.
type identifierRule struct{}

func (identifierRule) Name() string { return "identifier_match" }

func (identifierRule) Evaluate(sub types.ProviderSubmission, results map[types.TaskType]*types.WorkerTaskResult, now time.Time) []types.ValidationResult {
	r, ok := results[types.TaskTypeIdentifierCheck]
	if !ok {
		return nil
	}
	status := types.ValidationStatusInvalid
	if r.Success {
		status = tierStatus(r.OverallConfidence)
	}
	return []types.ValidationResult{{
		FieldName:   "identifier",
		Value:       sub.Identifier,
		Status:      status,
		Confidence:  r.OverallConfidence,
		Source:      types.SourceIdentifier,
		CriteriaMet: r.Success,
		Details:     r.ErrorMessage,
		Timestamp:   now,
	}}
}

// addressRule passes only when the geocoder returned a place_id and a
// geometry-accuracy tier of rooftop or range_interpolated; an approximate
// tier is a warning, not a failure, and a missing place_id is invalid.
type addressRule struct{}

func (addressRule) Name() string { return "address_geocode" }

func (addressRule) Evaluate(sub types.ProviderSubmission, results map[types.TaskType]*types.WorkerTaskResult, now time.Time) []types.ValidationResult {
	r, ok := results[types.TaskTypeAddressValidation]
	if !ok {
		return nil
	}
	if !r.Success {
		return []types.ValidationResult{{
			FieldName: "address_street", Value: sub.AddressStreet, Status: types.ValidationStatusInvalid,
			Source: types.SourceAddress, Details: r.ErrorMessage, Timestamp: now,
		}}
	}

	placeID := r.SourceMetadata["place_id"]
	tier := r.SourceMetadata["geometry_tier"]

	var status types.ValidationStatus
	var details string
	switch {
	case placeID == "":
		status = types.ValidationStatusInvalid
		details = "geocoder returned no place_id"
	case tier == "rooftop", tier == "range_interpolated":
		status = types.ValidationStatusValid
	case tier == "approximate":
		status = types.ValidationStatusWarning
		details = "geocoder match is approximate, not rooftop-accurate"
	default:
		status = types.ValidationStatusInvalid
		details = "unrecognized geometry accuracy tier"
	}

	var out []types.ValidationResult
	for _, field := range []string{"address_street", "address_city", "address_zip"} {
		value := r.NormalizedFields[field]
		conf := r.OverallConfidence
		if fc, ok := r.FieldConfidence[field]; ok {
			conf = fc
		}
		out = append(out, types.ValidationResult{
			FieldName: field, Value: value, Status: status, Confidence: conf,
			Source: types.SourceAddress, CriteriaMet: status == types.ValidationStatusValid,
			Details: details, Timestamp: now,
		})
	}
	return out
}

// licenseRule passes only when the board reports the license active AND
// the name on record agrees with the submission by fuzzy match ≥0.85; any
// of expired/suspended/revoked is invalid regardless of the name match,
// and a board that offers no status at all is unknown.
type licenseRule struct{}

func (licenseRule) Name() string { return "license_lookup" }

func (licenseRule) Evaluate(sub types.ProviderSubmission, results map[types.TaskType]*types.WorkerTaskResult, now time.Time) []types.ValidationResult {
	r, ok := results[types.TaskTypeLicenseVerification]
	if !ok {
		return nil
	}
	if !r.Success {
		return []types.ValidationResult{{
			FieldName: "license_number", Value: sub.LicenseNumber, Status: types.ValidationStatusInvalid,
			Source: types.SourceLicenseBoard, Details: r.ErrorMessage, Timestamp: now,
		}}
	}

	boardStatus := r.NormalizedFields["license_status"]
	nameMatch := r.FieldConfidence["license_status"]

	var status types.ValidationStatus
	var details string
	switch boardStatus {
	case "active":
		if nameMatch >= 0.85 {
			status = types.ValidationStatusValid
		} else {
			status = types.ValidationStatusWarning
			details = "submitted name diverges from the board's name on file"
		}
	case "expired":
		status = types.ValidationStatusInvalid
		details = "license is expired"
	case "suspended":
		status = types.ValidationStatusInvalid
		details = "license is suspended"
	case "revoked":
		status = types.ValidationStatusInvalid
		details = "license is revoked"
	default:
		status = types.ValidationStatusUnknown
		details = "board returned no license status"
	}

	return []types.ValidationResult{
		{
			FieldName: "license_number", Value: r.NormalizedFields["license_number"],
			Status: types.ValidationStatusValid, Confidence: r.FieldConfidence["license_number"],
			Source: types.SourceLicenseBoard, CriteriaMet: true, Timestamp: now,
		},
		{
			FieldName: "license_status", Value: boardStatus,
			Status: status, Confidence: nameMatch, Source: types.SourceLicenseBoard,
			CriteriaMet: status == types.ValidationStatusValid, Details: details, Timestamp: now,
		},
	}
}

// nameMatchRule fuzzy-compares given_name and family_name independently
// against whatever a source already normalized them to, so a mismatch in
// one does not mask agreement in the other.
type nameMatchRule struct{}

func (nameMatchRule) Name() string { return "name_match" }

func (nameMatchRule) Evaluate(sub types.ProviderSubmission, results map[types.TaskType]*types.WorkerTaskResult, now time.Time) []types.ValidationResult {
	submittedByField := map[string]string{
		"given_name":  sub.GivenName,
		"family_name": sub.FamilyName,
	}

	var out []types.ValidationResult
	for taskType, source := range map[types.TaskType]types.ValidationSource{
		types.TaskTypeIdentifierCheck: types.SourceIdentifier,
	} {
		r, ok := results[taskType]
		if !ok || !r.Success {
			continue
		}
		for _, field := range []string{"given_name", "family_name"} {
			submitted := strings.ToUpper(strings.TrimSpace(submittedByField[field]))
			onFile := strings.ToUpper(strings.TrimSpace(r.NormalizedFields[field]))
			if submitted == "" || onFile == "" {
				continue
			}
			distance := levenshtein.ComputeDistance(submitted, onFile)
			maxLen := len(submitted)
			if len(onFile) > maxLen {
				maxLen = len(onFile)
			}
			ratio := 1.0
			if maxLen > 0 {
				ratio = 1.0 - float64(distance)/float64(maxLen)
				if ratio < 0 {
					ratio = 0
				}
			}
			status := types.ValidationStatusInvalid
			confidence := ratio
			details := ""
			if ratio >= 0.85 {
				status = types.ValidationStatusValid
				if confidence < 0.85 {
					confidence = 0.85
				}
			} else {
				details = "name on submission diverges from " + string(source) + "'s record"
			}
			out = append(out, types.ValidationResult{
				FieldName: field, Value: submittedByField[field], Status: status, Confidence: confidence,
				Source: source, CriteriaMet: status == types.ValidationStatusValid, Details: details, Timestamp: now,
			})
		}
	}
	return out
}

// e164Pattern matches a normalized E.164 phone number: + followed by 8-15 digits.
var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

// phoneRule normalizes a US-style phone number to E.164, then checks it
// is a plausible NANP number: area code and exchange code each must open
// with a digit 2-9, and neither may be an N11 service code (211, 411,
// 911, …). Phone numbers carry no checksum digit to verify against — no
// library in this codebase's dependency set performs phone-number
// validity lookups, so this plausibility check is implemented directly
// against the standard library (see DESIGN.md).
type phoneRule struct{}

func (phoneRule) Name() string { return "phone_format" }

func (phoneRule) Evaluate(sub types.ProviderSubmission, results map[types.TaskType]*types.WorkerTaskResult, now time.Time) []types.ValidationResult {
	if strings.TrimSpace(sub.PhonePrimary) == "" {
		return nil
	}
	normalized, ok := normalizeE164(sub.PhonePrimary)
	if !ok {
		return []types.ValidationResult{{
			FieldName: "phone_primary", Value: sub.PhonePrimary, Status: types.ValidationStatusInvalid,
			Source: types.SourceIdentifier, Details: "could not normalize to E.164", Timestamp: now,
		}}
	}

	if !nanpPlausible(normalized) {
		return []types.ValidationResult{{
			FieldName: "phone_primary", Value: normalized, Status: types.ValidationStatusInvalid,
			Source: types.SourceIdentifier, Details: "area code or exchange code is not a valid NANP number",
			Timestamp: now,
		}}
	}

	return []types.ValidationResult{{
		FieldName: "phone_primary", Value: normalized, Status: types.ValidationStatusValid, Confidence: 0.9,
		Source: types.SourceIdentifier, CriteriaMet: true, Timestamp: now,
	}}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizeE164 accepts common US phone formats ("(415) 555-0123",
// "415-555-0123", "+14155550123") and returns the E.164 form.
func normalizeE164(raw string) (string, bool) {
	digits := digitsOnly(raw)
	switch len(digits) {
	case 10:
		digits = "1" + digits
	case 11:
		if digits[0] != '1' {
			return "", false
		}
	default:
		return "", false
	}
	normalized := "+" + digits
	if !e164Pattern.MatchString(normalized) {
		return "", false
	}
	return normalized, true
}

// nanpPlausible reports whether an E.164-normalized US/Canada number has
// a plausible NANP area code and exchange code: both must open with 2-9,
// and neither may be a reserved N11 service-code shape (e.g. 911, 411).
func nanpPlausible(e164 string) bool {
	digits := digitsOnly(e164)
	if len(digits) != 11 || digits[0] != '1' {
		return false
	}
	national := digits[1:]
	return nanpNXXValid(national[0:3]) && nanpNXXValid(national[3:6])
}

func nanpNXXValid(nxx string) bool {
	if nxx[0] < '2' || nxx[0] > '9' {
		return false
	}
	if nxx[1] == '1' && nxx[2] == '1' {
		return false
	}
	return true
}

// emailRule checks RFC-shaped syntax and that the domain carries an MX
// record. Like phoneRule, this is a stdlib carve-out (see DESIGN.md):
// net.LookupMX has no equivalent among this codebase's dependencies.
type emailRule struct {
	lookupMX func(domain string) ([]*net.MX, error)
}

func (emailRule) Name() string { return "email_format" }

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func (e emailRule) Evaluate(sub types.ProviderSubmission, results map[types.TaskType]*types.WorkerTaskResult, now time.Time) []types.ValidationResult {
	email := strings.TrimSpace(sub.Email)
	if email == "" {
		return nil
	}
	if !emailPattern.MatchString(email) {
		return []types.ValidationResult{{
			FieldName: "email", Value: email, Status: types.ValidationStatusInvalid,
			Source: types.SourceHospitalWebsite, Details: "malformed email address", Timestamp: now,
		}}
	}

	lookupMX := e.lookupMX
	if lookupMX == nil {
		lookupMX = net.LookupMX
	}
	parts := strings.SplitN(email, "@", 2)
	domain := parts[1]
	mxRecords, err := lookupMX(domain)

	status := types.ValidationStatusValid
	confidence := 0.9
	details := ""
	if err != nil || len(mxRecords) == 0 {
		status = types.ValidationStatusWarning
		confidence = 0.5
		details = "domain has no resolvable mail exchanger"
	}

	return []types.ValidationResult{{
		FieldName: "email", Value: email, Status: status, Confidence: confidence,
		Source: types.SourceHospitalWebsite, CriteriaMet: status == types.ValidationStatusValid,
		Details: details, Timestamp: now,
	}}
}
