// Package aggregator implements the report aggregator: it fuses
// per-rule ValidationResult rows into one FieldSummary per field and one
// ProviderReport per provider, applying the fixed source weights and the
// status/flag rules from the data model.
package aggregator

import (
	"fmt"
	"sort"
	"time"

	"github.com/cuemby/provenance/pkg/types"
)

// criticalFields cannot be invalid without failing the whole provider.
// "license" in the data model names the board's reported standing, which
// the rules engine surfaces under the license_status field.
var criticalFields = map[string]bool{
	"identifier":     true,
	"license_status": true,
	"family_name":    true,
}

// Aggregate fuses all ValidationResult rows collected for one provider
// into a ProviderReport. threshold is the job's configured
// confidence_threshold; below it (and not already invalid) the provider
// is reported as a warning.
func Aggregate(jobID, providerID string, results []types.ValidationResult, threshold float64, generatedBy string, processingStart time.Time) *types.ProviderReport {
	byField := make(map[string][]types.ValidationResult)
	for _, r := range results {
		byField[r.FieldName] = append(byField[r.FieldName], r)
	}

	fieldSummaries := make(map[string]types.FieldSummary, len(byField))
	aggregatedFields := make(map[string]string, len(byField))
	flagSet := make(map[string]bool)

	fieldNames := make([]string, 0, len(byField))
	for name := range byField {
		fieldNames = append(fieldNames, name)
	}
	sort.Strings(fieldNames)

	var confidenceSum float64
	anyInvalidCritical := false
	anyWarning := false
	invalidCount := 0

	for _, name := range fieldNames {
		rows := byField[name]
		summary := fuseField(name, rows)
		fieldSummaries[name] = summary
		aggregatedFields[name] = summary.AgreedValue
		confidenceSum += summary.Confidence

		switch summary.Status {
		case types.ValidationStatusInvalid:
			invalidCount++
			if criticalFields[name] {
				anyInvalidCritical = true
			}
		case types.ValidationStatusWarning:
			anyWarning = true
		}

		for _, f := range namedFlagsFor(name, summary.AgreedValue, summary.Status) {
			flagSet[f] = true
		}

		if disagreement, ok := detectDisagreement(name, rows); ok {
			flagSet[disagreement] = true
		}
	}

	if invalidCount > 0 {
		flagSet[fmt.Sprintf("FAILED_VALIDATIONS:%d", invalidCount)] = true
	}

	// Σ(weight·field_confidence)/Σ(weight) over contributing sources is
	// already folded into each summary's Confidence by fuseField; the
	// overall confidence is the unweighted mean of those per-field values.
	overallConfidence := 0.0
	if len(fieldNames) > 0 {
		overallConfidence = confidenceSum / float64(len(fieldNames))
	}

	if _, ok := byField["identifier"]; !ok {
		flagSet["MISSING_IDENTIFIER"] = true
		anyInvalidCritical = true
	}

	status := types.ValidationStatusValid
	switch {
	case anyInvalidCritical:
		status = types.ValidationStatusInvalid
	case anyWarning || overallConfidence < threshold:
		status = types.ValidationStatusWarning
	}

	flags := make([]string, 0, len(flagSet))
	for f := range flagSet {
		flags = append(flags, f)
	}
	sort.Strings(flags)

	return &types.ProviderReport{
		ProviderID:          providerID,
		JobID:               jobID,
		OverallConfidence:   overallConfidence,
		ValidationStatus:    status,
		FieldSummaries:      fieldSummaries,
		AggregatedFields:    aggregatedFields,
		Flags:               flags,
		ValidationTimestamp: time.Now(),
		ProcessingTime:      time.Since(processingStart),
		GeneratedBy:         generatedBy,
	}
}

// fuseField picks the agreed value (the non-empty value with the highest
// summed source weight, ties broken by the higher row confidence, then by
// the lexicographically smaller value) and averages confidence weighted
// by each row's source weight.
func fuseField(name string, rows []types.ValidationResult) types.FieldSummary {
	valueVotes := make(map[string]float64)
	valueConf := make(map[string]float64)
	var sources []types.ValidationSource
	seenSource := make(map[types.ValidationSource]bool)
	worstStatus := types.ValidationStatusValid

	var weightedConfidence, weightTotal float64

	for _, r := range rows {
		weight := types.SourceWeights[r.Source]
		if weight == 0 {
			weight = 0.1
		}
		if r.Value != "" {
			valueVotes[r.Value] += weight
			if r.Confidence > valueConf[r.Value] {
				valueConf[r.Value] = r.Confidence
			}
		}
		weightedConfidence += r.Confidence * weight
		weightTotal += weight

		if !seenSource[r.Source] {
			seenSource[r.Source] = true
			sources = append(sources, r.Source)
		}
		if statusSeverity(r.Status) > statusSeverity(worstStatus) {
			worstStatus = r.Status
		}
	}

	agreedValue := ""
	bestVote := -1.0
	for value, vote := range valueVotes {
		if vote > bestVote || (vote == bestVote && (valueConf[value] > valueConf[agreedValue] ||
			(valueConf[value] == valueConf[agreedValue] && value < agreedValue))) {
			bestVote = vote
			agreedValue = value
		}
	}

	confidence := 0.0
	if weightTotal > 0 {
		confidence = weightedConfidence / weightTotal
	}

	return types.FieldSummary{
		FieldName:           name,
		AgreedValue:         agreedValue,
		Confidence:          confidence,
		Status:              worstStatus,
		ContributingSources: sources,
		ValidationCount:     len(rows),
	}
}

func statusSeverity(s types.ValidationStatus) int {
	switch s {
	case types.ValidationStatusInvalid:
		return 3
	case types.ValidationStatusWarning:
		return 2
	case types.ValidationStatusUnknown, types.ValidationStatusPending:
		return 1
	default:
		return 0
	}
}

// namedFlagsFor maps a field's resolved status and agreed value to the
// stable, machine-readable flag codes the data model names for it.
func namedFlagsFor(field, value string, status types.ValidationStatus) []string {
	if status == types.ValidationStatusValid {
		return nil
	}
	switch field {
	case "license_status":
		switch value {
		case "expired":
			return []string{"LICENSE_EXPIRED"}
		case "suspended":
			return []string{"LICENSE_SUSPENDED"}
		case "revoked":
			return []string{"LICENSE_REVOKED"}
		}
	case "given_name", "family_name":
		return []string{"NAME_MISMATCH"}
	case "phone_primary":
		return []string{"PHONE_INVALID"}
	case "address_street", "address_city", "address_zip":
		return []string{"ADDRESS_LOW_ACCURACY"}
	}
	return nil
}

// detectDisagreement flags a field whose rows carry more than one
// distinct non-empty value from more than one source. The tie-break rule
// — higher declared source weight, then higher per-field confidence,
// then lexicographically smaller value — picks the winner; the next
// candidate in that order that still disagrees is the losing source
// named in the flag.
func detectDisagreement(name string, rows []types.ValidationResult) (string, bool) {
	type candidate struct {
		value  string
		source types.ValidationSource
		weight float64
		conf   float64
	}

	var candidates []candidate
	for _, r := range rows {
		if r.Value == "" {
			continue
		}
		weight := types.SourceWeights[r.Source]
		if weight == 0 {
			weight = 0.1
		}
		candidates = append(candidates, candidate{value: r.Value, source: r.Source, weight: weight, conf: r.Confidence})
	}
	if len(candidates) < 2 {
		return "", false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].weight != candidates[j].weight {
			return candidates[i].weight > candidates[j].weight
		}
		if candidates[i].conf != candidates[j].conf {
			return candidates[i].conf > candidates[j].conf
		}
		return candidates[i].value < candidates[j].value
	})

	winner := candidates[0]
	for _, c := range candidates[1:] {
		if c.value != winner.value {
			return fmt.Sprintf("DISAGREEMENT:%s:%s", name, c.source), true
		}
	}
	return "", false
}
