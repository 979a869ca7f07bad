package types

import "time"

// ProviderSubmission is the input record about a healthcare practitioner
// submitted for validation. provider_id is externally supplied and opaque
// to the engine; it is the sole identity key within a job.
type ProviderSubmission struct {
	ProviderID       string `json:"provider_id" validate:"required"`
	GivenName        string `json:"given_name,omitempty"`
	FamilyName       string `json:"family_name,omitempty"`
	Identifier       string `json:"identifier,omitempty"` // 10-digit practitioner identifier (NPI-shaped)
	PhonePrimary     string `json:"phone_primary,omitempty"`
	PhoneAlt         string `json:"phone_alt,omitempty"`
	Email            string `json:"email,omitempty"`
	AddressStreet    string `json:"address_street,omitempty"`
	AddressCity      string `json:"address_city,omitempty"`
	AddressState     string `json:"address_state,omitempty"`
	AddressZip       string `json:"address_zip,omitempty"`
	LicenseNumber    string `json:"license_number,omitempty"`
	LicenseState     string `json:"license_state,omitempty"`
	DocumentRef      string `json:"document_reference,omitempty"`
	PracticeName     string `json:"practice_name,omitempty"`
	PrimaryTaxonomy  string `json:"primary_taxonomy,omitempty"`
}

// ValidationOptions controls which sources a batch exercises and the
// acceptance thresholds applied to the resulting report.
type ValidationOptions struct {
	EnableIdentifierCheck  bool    `json:"enable_identifier_check"`
	EnableAddressValidation bool   `json:"enable_address_validation"`
	EnableDocumentProcessing bool  `json:"enable_document_processing"`
	EnableLicenseValidation bool   `json:"enable_license_validation"`
	EnableEnrichment       bool    `json:"enable_enrichment"`
	ConfidenceThreshold    float64 `json:"confidence_threshold" validate:"gte=0,lte=1"`
	MaxRetries             int     `json:"max_retries" validate:"gte=0"`
	TimeoutSeconds         int     `json:"timeout_seconds" validate:"gt=0"`
}

// DefaultValidationOptions returns the intake layer's default task
// selection and confidence threshold.
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		EnableIdentifierCheck:   true,
		EnableAddressValidation: true,
		EnableDocumentProcessing: false,
		EnableLicenseValidation: true,
		EnableEnrichment:        false,
		ConfidenceThreshold:     0.8,
		MaxRetries:              3,
		TimeoutSeconds:          300,
	}
}

// JobStatus is the lifecycle state of a batch job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// JobPriority ranks jobs for queue preemption.
type JobPriority string

const (
	JobPriorityLow    JobPriority = "low"
	JobPriorityNormal JobPriority = "normal"
	JobPriorityHigh   JobPriority = "high"
	JobPriorityUrgent JobPriority = "urgent"
)

// priorityRank orders priorities for queue comparisons; higher rank wins.
var priorityRank = map[JobPriority]int{
	JobPriorityLow:    0,
	JobPriorityNormal:  1,
	JobPriorityHigh:    2,
	JobPriorityUrgent:  3,
}

// Rank returns the numeric rank of a priority, defaulting to normal for
// unrecognized values.
func (p JobPriority) Rank() int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return priorityRank[JobPriorityNormal]
}

// Job is a batch validation request accepted by the Orchestrator.
type Job struct {
	JobID              string            `json:"job_id"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	Status             JobStatus         `json:"status"`
	Priority           JobPriority       `json:"priority"`
	ProviderCount      int               `json:"provider_count"`
	CompletedCount     int               `json:"completed_count"`
	FailedCount        int               `json:"failed_count"`
	ValidationOptions  ValidationOptions `json:"validation_options"`
	ProgressPercentage float64           `json:"progress_percentage"`
	IdempotencyKey     string            `json:"idempotency_key"`
	ProviderIDs        []string          `json:"provider_ids"`
	Submissions        map[string]ProviderSubmission `json:"submissions"`
	Error              string            `json:"error,omitempty"`
}

// TaskType identifies which external source a WorkerTask targets.
type TaskType string

const (
	TaskTypeIdentifierCheck     TaskType = "identifier_check"
	TaskTypeAddressValidation   TaskType = "address_validation"
	TaskTypeDocumentProcessing  TaskType = "document_processing"
	TaskTypeLicenseVerification TaskType = "license_verification"
	TaskTypeEnrichmentLookup    TaskType = "enrichment_lookup"
)

// AllTaskTypes enumerates the fixed set of task types the pool dispatches.
var AllTaskTypes = []TaskType{
	TaskTypeIdentifierCheck,
	TaskTypeAddressValidation,
	TaskTypeDocumentProcessing,
	TaskTypeLicenseVerification,
	TaskTypeEnrichmentLookup,
}

// WorkerTask is one (provider, task_type) unit of work, exclusively owned
// by the queue until a worker reserves it.
type WorkerTask struct {
	TaskID              string                        `json:"task_id"`
	JobID               string                        `json:"job_id"`
	ProviderID          string                         `json:"provider_id"`
	TaskType            TaskType                       `json:"task_type"`
	Payload             ProviderSubmission             `json:"payload"`
	Priority            JobPriority                    `json:"priority"`
	Attempt             int                            `json:"attempt"`
	ScheduledAt         time.Time                      `json:"scheduled_at"`
	VisibilityDeadline  time.Time                      `json:"visibility_deadline"`
	TimeoutSeconds      int                            `json:"timeout_seconds"`
	MaxRetries          int                            `json:"max_retries"`
}

// WorkerTaskResult is the evidence emitted by one attempt at a task. The
// last successful attempt (or the last failed attempt if none succeed) is
// the authoritative record for a (provider, task_type) pair.
type WorkerTaskResult struct {
	TaskType          TaskType           `json:"task_type"`
	ProviderID        string             `json:"provider_id"`
	JobID             string             `json:"job_id"`
	Attempt           int                `json:"attempt"`
	Success           bool               `json:"success"`
	OverallConfidence float64            `json:"overall_confidence"`
	NormalizedFields  map[string]string  `json:"normalized_fields,omitempty"`
	FieldConfidence   map[string]float64 `json:"field_confidence,omitempty"`
	ErrorMessage      string             `json:"error_message,omitempty"`
	SourceMetadata    map[string]string  `json:"source_metadata,omitempty"`
	CompletedAt       time.Time          `json:"completed_at"`
}

// ValidationSource names the weighted evidence source a rule draws from.
type ValidationSource string

const (
	SourceIdentifier      ValidationSource = "identifier"
	SourceAddress         ValidationSource = "address"
	SourceHospitalWebsite ValidationSource = "hospital_website"
	SourceLicenseBoard    ValidationSource = "license_board"
)

// SourceWeights are the fixed fusion weights from the rules table; they
// sum to 1.0.
var SourceWeights = map[ValidationSource]float64{
	SourceIdentifier:      0.40,
	SourceAddress:         0.25,
	SourceHospitalWebsite: 0.20,
	SourceLicenseBoard:    0.15,
}

// ValidationStatus is the per-field or per-report verdict.
type ValidationStatus string

const (
	ValidationStatusValid   ValidationStatus = "valid"
	ValidationStatusInvalid ValidationStatus = "invalid"
	ValidationStatusWarning ValidationStatus = "warning"
	ValidationStatusUnknown ValidationStatus = "unknown"
	ValidationStatusPending ValidationStatus = "pending"
)

// ValidationResult is one rule firing against one (provider, field).
// Multiple results may exist per (provider, field) — one per rule.
type ValidationResult struct {
	FieldName   string           `json:"field_name"`
	Value       string           `json:"value"`
	Status      ValidationStatus `json:"status"`
	Confidence  float64          `json:"confidence"`
	Source      ValidationSource `json:"source"`
	CriteriaMet bool             `json:"criteria_met"`
	Details     string           `json:"details,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

// FieldSummary is the fused, per-field view across all evidence and rules.
type FieldSummary struct {
	FieldName          string           `json:"field_name"`
	AgreedValue        string           `json:"agreed_value"`
	Confidence         float64          `json:"confidence"`
	Status             ValidationStatus `json:"status"`
	ContributingSources []ValidationSource `json:"contributing_sources"`
	ValidationCount    int              `json:"validation_count"`
}

// ProviderReport is the final per-provider verdict for one job.
type ProviderReport struct {
	ProviderID          string                   `json:"provider_id"`
	JobID               string                   `json:"job_id"`
	OverallConfidence   float64                  `json:"overall_confidence"`
	ValidationStatus    ValidationStatus         `json:"validation_status"`
	FieldSummaries      map[string]FieldSummary  `json:"field_summaries"`
	AggregatedFields    map[string]string        `json:"aggregated_fields"`
	Flags               []string                 `json:"flags"`
	ValidationTimestamp time.Time                `json:"validation_timestamp"`
	ProcessingTime      time.Duration            `json:"processing_time"`
	GeneratedBy         string                   `json:"generated_by"`
}

// IdempotencyRecord binds one logical submission to one job.
type IdempotencyRecord struct {
	Key         string    `json:"key"`
	JobID       string    `json:"job_id"`
	RequestHash string    `json:"request_hash"`
	CreatedAt   time.Time `json:"created_at"`
	TTL         time.Duration `json:"ttl"`
}

// Expired reports whether the record's TTL has elapsed as of now.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return now.After(r.CreatedAt.Add(r.TTL))
}
