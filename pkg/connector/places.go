package connector

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/cuemby/provenance/pkg/types"
)

// PlacesConnector simulates a geocoding/places lookup for the
// address_validation task: given a street/city/state/zip it reports a
// normalized address, a place_id, and a geometry-accuracy tier — rooftop,
// range_interpolated, or approximate — based on how complete the input
// is. A street/city match with no state or zip to narrow it is only
// approximate; the full four-component address resolves to rooftop.
type PlacesConnector struct{}

func (c *PlacesConnector) Source() types.ValidationSource { return types.SourceAddress }

func (c *PlacesConnector) Execute(ctx context.Context, task *types.WorkerTask) (*types.WorkerTaskResult, error) {
	p := task.Payload
	result := &types.WorkerTaskResult{
		TaskType:    task.TaskType,
		ProviderID:  task.ProviderID,
		JobID:       task.JobID,
		Attempt:     task.Attempt,
		CompletedAt: time.Now(),
	}

	if strings.TrimSpace(p.AddressStreet) == "" || strings.TrimSpace(p.AddressCity) == "" {
		result.Success = false
		result.ErrorMessage = "address missing street or city"
		return result, nil
	}

	tier := "approximate"
	confidence := 0.75
	switch {
	case p.AddressState != "" && p.AddressZip != "":
		tier = "rooftop"
		confidence = 0.95
	case p.AddressState != "" || p.AddressZip != "":
		tier = "range_interpolated"
		confidence = 0.88
	}

	result.Success = true
	result.OverallConfidence = confidence
	result.NormalizedFields = map[string]string{
		"address_street": strings.ToUpper(strings.TrimSpace(p.AddressStreet)),
		"address_city":   strings.ToUpper(strings.TrimSpace(p.AddressCity)),
		"address_state":  strings.ToUpper(strings.TrimSpace(p.AddressState)),
		"address_zip":    strings.TrimSpace(p.AddressZip),
	}
	result.FieldConfidence = map[string]float64{
		"address_street": confidence,
		"address_city":   confidence,
		"address_zip":    confidence,
	}
	result.SourceMetadata = map[string]string{
		"geocoder":      "places_lookup",
		"geometry_tier": tier,
		"place_id":      placeIDFor(p.AddressStreet, p.AddressCity, p.AddressState, p.AddressZip),
	}
	return result, nil
}

// placeIDFor derives a stable place_id from the normalized address
// components, standing in for the geocoder's own opaque identifier.
func placeIDFor(street, city, state, zip string) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%s",
		strings.ToUpper(strings.TrimSpace(street)),
		strings.ToUpper(strings.TrimSpace(city)),
		strings.ToUpper(strings.TrimSpace(state)),
		strings.TrimSpace(zip))
	return fmt.Sprintf("pl_%016x", h.Sum64())
}
