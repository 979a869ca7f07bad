package connector

import (
	"context"
	"errors"
	"testing"

	"github.com/cuemby/provenance/pkg/retry"
	"github.com/cuemby/provenance/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r)

	for _, tt := range types.AllTaskTypes {
		c, err := r.Get(tt)
		require.NoError(t, err)
		require.NotNil(t, c)
	}

	_, err := r.Get(types.TaskType("unknown"))
	require.Error(t, err)
}

func TestNPIConnector_ValidIdentifier(t *testing.T) {
	c := &NPIConnector{}
	task := &types.WorkerTask{
		Payload: types.ProviderSubmission{Identifier: "1234567893", GivenName: "John", FamilyName: "Smith"},
	}
	result, err := c.Execute(context.Background(), task)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "JOHN", result.NormalizedFields["given_name"])
}

func TestNPIConnector_InvalidChecksum(t *testing.T) {
	c := &NPIConnector{}
	task := &types.WorkerTask{Payload: types.ProviderSubmission{Identifier: "9999999999"}}
	result, err := c.Execute(context.Background(), task)
	require.NoError(t, err)
	require.False(t, result.Success)
}

func TestOCRConnector_RobotDetectionClassifiesCorrectly(t *testing.T) {
	c := &OCRConnector{}
	task := &types.WorkerTask{Payload: types.ProviderSubmission{DocumentRef: "robot:captcha"}}
	_, err := c.Execute(context.Background(), task)
	require.Error(t, err)
	require.True(t, errors.Is(err, retry.ErrRobotDetected))
	require.Equal(t, retry.ClassificationRobotDetected, retry.Classify(err))
}

func TestStateBoardConnector_ExactNameMatchYieldsHighConfidence(t *testing.T) {
	c := &StateBoardConnector{}
	task := &types.WorkerTask{Payload: types.ProviderSubmission{
		LicenseNumber: "A123", LicenseState: "ca", GivenName: "Jane", FamilyName: "Doe",
	}}
	result, err := c.Execute(context.Background(), task)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.InDelta(t, 0.95, result.OverallConfidence, 0.001)
}
