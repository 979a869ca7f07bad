package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cuemby/provenance/pkg/orchestrator"
	"github.com/cuemby/provenance/pkg/types"
	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a batch of provider records for validation",
	Long: `Submit reads a JSON file containing an array of provider records
and an optional "options" object, then creates a validation job.
See testdata/batch.example.json for the expected shape.

Examples:
  # Submit a batch
  validationctl submit -f batch.json

  # Submit with an idempotency key
  validationctl submit -f batch.json --idempotency-key batch-2026-07-31`,
	RunE: runSubmit,
}

var statusCmd = &cobra.Command{
	Use:   "status JOB_ID",
	Short: "Show a job's progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var reportCmd = &cobra.Command{
	Use:   "report JOB_ID",
	Short: "Show every provider report generated for a job so far",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel JOB_ID",
	Short: "Cancel a running job",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	submitCmd.Flags().StringP("file", "f", "", "JSON file containing providers and options (required)")
	submitCmd.Flags().String("idempotency-key", "", "Idempotency key for safe batch resubmission")
	submitCmd.Flags().String("priority", "normal", "Job priority: low, normal, high, urgent")
	_ = submitCmd.MarkFlagRequired("file")
}

// batchFile is the on-disk shape submit reads: a list of providers plus
// the validation options to run against every one of them.
type batchFile struct {
	Providers []types.ProviderSubmission `json:"providers"`
	Options   *types.ValidationOptions   `json:"options,omitempty"`
}

func runSubmit(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	idempotencyKey, _ := cmd.Flags().GetString("idempotency-key")
	priority, _ := cmd.Flags().GetString("priority")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var batch batchFile
	if err := json.Unmarshal(data, &batch); err != nil {
		return fmt.Errorf("failed to parse batch file: %w", err)
	}

	req := orchestrator.SubmitRequest{
		IdempotencyKey: idempotencyKey,
		Priority:       types.JobPriority(priority),
		Providers:      batch.Providers,
	}
	if batch.Options != nil {
		req.Options = *batch.Options
	}

	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	job, err := eng.orchestrator.SubmitBatch(context.Background(), req)
	if err != nil {
		return fmt.Errorf("failed to submit batch: %w", err)
	}

	fmt.Printf("✓ Job submitted: %s\n", job.JobID)
	fmt.Printf("  Status: %s\n", job.Status)
	fmt.Printf("  Providers: %d\n", job.ProviderCount)
	fmt.Printf("  Priority: %s\n", job.Priority)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	job, err := eng.orchestrator.Status(args[0])
	if err != nil {
		return fmt.Errorf("failed to fetch job status: %w", err)
	}

	fmt.Printf("Job: %s\n", job.JobID)
	fmt.Printf("  Status: %s\n", job.Status)
	fmt.Printf("  Progress: %.1f%% (%d/%d completed, %d failed)\n",
		job.ProgressPercentage, job.CompletedCount, job.ProviderCount, job.FailedCount)
	fmt.Printf("  Created: %s\n", job.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Updated: %s\n", job.UpdatedAt.Format("2006-01-02 15:04:05"))
	if job.Error != "" {
		fmt.Printf("  Error: %s\n", job.Error)
	}
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	reports, err := eng.orchestrator.Report(args[0])
	if err != nil {
		return fmt.Errorf("failed to fetch job reports: %w", err)
	}

	if len(reports) == 0 {
		fmt.Println("No reports generated yet")
		return nil
	}

	for _, r := range reports {
		fmt.Printf("Provider: %s\n", r.ProviderID)
		fmt.Printf("  Status: %s\n", r.ValidationStatus)
		fmt.Printf("  Confidence: %.2f\n", r.OverallConfidence)
		if len(r.Flags) > 0 {
			fmt.Printf("  Flags: %v\n", r.Flags)
		}
		fmt.Println()
	}
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.orchestrator.Cancel(args[0]); err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}

	fmt.Printf("✓ Job cancelled: %s\n", args[0])
	return nil
}
