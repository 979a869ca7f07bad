package connector

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/provenance/pkg/types"
)

// NPIConnector simulates the national identifier registry lookup for the
// identifier_check rule: a 10-digit identifier with a valid Luhn check
// digit (NPI prefix 80840) is treated as found.
type NPIConnector struct{}

func (c *NPIConnector) Source() types.ValidationSource { return types.SourceIdentifier }

func (c *NPIConnector) Execute(ctx context.Context, task *types.WorkerTask) (*types.WorkerTaskResult, error) {
	id := strings.TrimSpace(task.Payload.Identifier)
	result := &types.WorkerTaskResult{
		TaskType:    task.TaskType,
		ProviderID:  task.ProviderID,
		JobID:       task.JobID,
		Attempt:     task.Attempt,
		CompletedAt: time.Now(),
	}

	if id == "" {
		result.Success = false
		result.ErrorMessage = "no identifier supplied"
		return result, nil
	}

	if !validNPIFormat(id) {
		result.Success = false
		result.ErrorMessage = "identifier failed checksum validation"
		return result, nil
	}

	result.Success = true
	result.OverallConfidence = 0.97
	result.NormalizedFields = map[string]string{
		"identifier":        id,
		"given_name":        strings.ToUpper(task.Payload.GivenName),
		"family_name":       strings.ToUpper(task.Payload.FamilyName),
		"practice_name":     strings.ToUpper(task.Payload.PracticeName),
		"primary_taxonomy":  task.Payload.PrimaryTaxonomy,
	}
	result.FieldConfidence = map[string]float64{
		"identifier":  0.99,
		"given_name":  0.85,
		"family_name": 0.85,
	}
	result.SourceMetadata = map[string]string{"registry": "national_identifier_registry"}
	return result, nil
}

// validNPIFormat checks a 10-digit identifier against the Luhn algorithm
// with NPI's fixed 80840 prefix, the same checksum applied before ever
// calling out to the registry.
func validNPIFormat(id string) bool {
	if len(id) != 10 {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return luhnValid("80840" + id)
}

func luhnValid(digits string) bool {
	sum := 0
	alt := false
	for i := len(digits) - 1; i >= 0; i-- {
		d, err := strconv.Atoi(string(digits[i]))
		if err != nil {
			return false
		}
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}
