// Package connector defines the external-source adapters workers call
// when executing a WorkerTask: one Connector per task_type, each
// returning normalized fields with per-field confidence and the
// ValidationSource whose fusion weight it contributes to.
package connector

import (
	"context"
	"fmt"

	"github.com/cuemby/provenance/pkg/types"
)

// Connector executes one WorkerTask against an external source and
// returns normalized fields plus a per-field confidence map. A non-nil
// error is expected to be classifiable by pkg/retry.Classify.
type Connector interface {
	Execute(ctx context.Context, task *types.WorkerTask) (*types.WorkerTaskResult, error)
	Source() types.ValidationSource
}

// Registry maps each TaskType to the Connector responsible for it.
type Registry struct {
	connectors map[types.TaskType]Connector
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{connectors: make(map[types.TaskType]Connector)}
}

// Register binds a Connector to a task type, overwriting any prior
// binding — tests commonly swap in a fake connector this way.
func (r *Registry) Register(taskType types.TaskType, c Connector) {
	r.connectors[taskType] = c
}

// Get returns the Connector bound to taskType, or an error if none is
// registered — a worker encountering this has a configuration bug, not a
// transient failure.
func (r *Registry) Get(taskType types.TaskType) (Connector, error) {
	c, ok := r.connectors[taskType]
	if !ok {
		return nil, fmt.Errorf("connector: no connector registered for task type %q", taskType)
	}
	return c, nil
}

// RegisterDefaults wires the five reference connectors this package
// ships, matching the default TaskType set.
func RegisterDefaults(r *Registry) {
	r.Register(types.TaskTypeIdentifierCheck, &NPIConnector{})
	r.Register(types.TaskTypeAddressValidation, &PlacesConnector{})
	r.Register(types.TaskTypeDocumentProcessing, &OCRConnector{})
	r.Register(types.TaskTypeLicenseVerification, &StateBoardConnector{})
	r.Register(types.TaskTypeEnrichmentLookup, &EnrichmentConnector{})
}
