package connector

import (
	"context"
	"strings"
	"time"

	"github.com/cuemby/provenance/pkg/types"
)

// EnrichmentConnector simulates a supplemental lookup (hospital/practice
// website affiliation) used to corroborate practice_name and taxonomy
// when the stronger sources disagree or are absent.
type EnrichmentConnector struct{}

func (c *EnrichmentConnector) Source() types.ValidationSource { return types.SourceHospitalWebsite }

func (c *EnrichmentConnector) Execute(ctx context.Context, task *types.WorkerTask) (*types.WorkerTaskResult, error) {
	p := task.Payload
	result := &types.WorkerTaskResult{
		TaskType:    task.TaskType,
		ProviderID:  task.ProviderID,
		JobID:       task.JobID,
		Attempt:     task.Attempt,
		CompletedAt: time.Now(),
	}

	if strings.TrimSpace(p.PracticeName) == "" {
		result.Success = false
		result.ErrorMessage = "no practice name to enrich against"
		return result, nil
	}

	result.Success = true
	result.OverallConfidence = 0.55
	result.NormalizedFields = map[string]string{
		"practice_name": strings.ToUpper(p.PracticeName),
	}
	result.FieldConfidence = map[string]float64{"practice_name": 0.55}
	result.SourceMetadata = map[string]string{"enrichment_source": "practice_directory"}
	return result, nil
}
