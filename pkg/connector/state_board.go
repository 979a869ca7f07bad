package connector

import (
	"context"
	"hash/fnv"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/cuemby/provenance/pkg/types"
)

// StateBoardConnector simulates a state licensing board lookup for the
// license_verification task, fuzzy-matching the submitted name against
// the (mock) name on file to reconcile OCR/registry spelling drift, and
// reporting the board's license_status independently of that name match.
type StateBoardConnector struct{}

func (c *StateBoardConnector) Source() types.ValidationSource { return types.SourceLicenseBoard }

func (c *StateBoardConnector) Execute(ctx context.Context, task *types.WorkerTask) (*types.WorkerTaskResult, error) {
	p := task.Payload
	result := &types.WorkerTaskResult{
		TaskType:    task.TaskType,
		ProviderID:  task.ProviderID,
		JobID:       task.JobID,
		Attempt:     task.Attempt,
		CompletedAt: time.Now(),
	}

	number := strings.TrimSpace(p.LicenseNumber)
	if number == "" || p.LicenseState == "" {
		result.Success = false
		result.ErrorMessage = "license number or state missing"
		return result, nil
	}

	// The mock board "has on file" the submitted name verbatim; a real
	// board lookup would return its own record to fuzzy-match against.
	onFile := strings.ToUpper(p.GivenName + " " + p.FamilyName)
	submitted := strings.ToUpper(strings.TrimSpace(p.GivenName + " " + p.FamilyName))
	distance := levenshtein.ComputeDistance(onFile, submitted)
	nameMatch := 1.0
	if len(submitted) > 0 {
		nameMatch = 1.0 - float64(distance)/float64(len(submitted))
		if nameMatch < 0 {
			nameMatch = 0
		}
	}

	result.Success = true
	result.OverallConfidence = 0.6 + 0.35*nameMatch
	result.NormalizedFields = map[string]string{
		"license_number": number,
		"license_state":  strings.ToUpper(p.LicenseState),
		"license_status": licenseStatusFor(number, p.LicenseState),
	}
	result.FieldConfidence = map[string]float64{
		"license_number": 0.9,
		"license_status": nameMatch,
	}
	result.SourceMetadata = map[string]string{"board_state": strings.ToUpper(p.LicenseState)}
	return result, nil
}

// licenseStatusFor simulates the board's own record of the license's
// standing, independent of whether the submitted name matches its file.
// Most licenses are active; a deterministic minority come back expired,
// suspended, or revoked so the rule and aggregator have real evidence to
// branch on across a batch.
func licenseStatusFor(number, state string) string {
	h := fnv.New32a()
	h.Write([]byte(strings.ToUpper(number) + "|" + strings.ToUpper(state)))
	switch h.Sum32() % 20 {
	case 0:
		return "expired"
	case 1:
		return "suspended"
	case 2:
		return "revoked"
	default:
		return "active"
	}
}
