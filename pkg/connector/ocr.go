package connector

import (
	"context"
	"strings"
	"time"

	"github.com/cuemby/provenance/pkg/types"
	"github.com/cuemby/provenance/pkg/retry"
)

// OCRConnector simulates the document_processing task: extracting
// structured fields from a referenced document image, with per-field
// confidence degraded by whether a document_reference was even supplied.
type OCRConnector struct{}

func (c *OCRConnector) Source() types.ValidationSource { return types.SourceHospitalWebsite }

func (c *OCRConnector) Execute(ctx context.Context, task *types.WorkerTask) (*types.WorkerTaskResult, error) {
	p := task.Payload
	result := &types.WorkerTaskResult{
		TaskType:    task.TaskType,
		ProviderID:  task.ProviderID,
		JobID:       task.JobID,
		Attempt:     task.Attempt,
		CompletedAt: time.Now(),
	}

	ref := strings.TrimSpace(p.DocumentRef)
	if ref == "" {
		result.Success = false
		result.ErrorMessage = "no document reference supplied"
		return result, nil
	}
	if strings.HasPrefix(ref, "robot:") {
		// the document store's bot mitigation fires on malformed refs in
		// this simulated pipeline
		return result, retryRobotDetected("ocr_pipeline")
	}

	result.Success = true
	result.OverallConfidence = 0.75
	result.NormalizedFields = map[string]string{
		"given_name":    strings.ToUpper(p.GivenName),
		"family_name":   strings.ToUpper(p.FamilyName),
		"practice_name": strings.ToUpper(p.PracticeName),
	}
	result.FieldConfidence = map[string]float64{
		"given_name":  0.75,
		"family_name": 0.75,
	}
	result.SourceMetadata = map[string]string{"document_reference": ref}
	return result, nil
}

func retryRobotDetected(source string) error {
	return &robotErr{source: source}
}

type robotErr struct{ source string }

func (e *robotErr) Error() string { return e.source + ": robot detection triggered" }
func (e *robotErr) Unwrap() error { return retry.ErrRobotDetected }
