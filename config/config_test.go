package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadContactPlanFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contact-plan.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"contactPlan": [
			{"contact": 1, "source": 1, "dest": 2, "finalDestinationEid": "ipn:3.1", "start": 0, "end": 10, "rate": 1000}
		]
	}`), 0o644))

	f, err := LoadContactPlanFile(path)
	require.NoError(t, err)
	require.Len(t, f.Contacts, 1)

	row := f.Contacts[0]
	require.EqualValues(t, 1, row.Contact)
	require.EqualValues(t, 2, row.Dest)
	require.EqualValues(t, 1000, row.Rate)

	dest, err := row.ParsedFinalDestination()
	require.NoError(t, err)
	require.EqualValues(t, 3, dest.Node)
	require.EqualValues(t, 1, dest.Service)
}

func TestLoadContactPlanFileMissing(t *testing.T) {
	_, err := LoadContactPlanFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestLoadNodeConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hdtn.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"myNodeId": 1,
		"outducts": [
			{"convergenceLayer": "udp", "remoteHostname": "127.0.0.1", "remotePort": 4556, "bundlePipelineLimit": 50}
		],
		"inducts": [
			{"convergenceLayer": "udp", "boundPort": 4557, "numRxCircularBufferElements": 100, "numRxCircularBufferBytesPerElement": 65536, "endpointIdStr": "ipn:1.1"}
		]
	}`), 0o644))

	cfg, err := LoadNodeConfigFile(path)
	require.NoError(t, err)
	require.EqualValues(t, 1, cfg.MyNodeID)
	require.Len(t, cfg.Outducts, 1)
	require.Equal(t, "udp", cfg.Outducts[0].ConvergenceLayer)
	require.Equal(t, 4556, cfg.Outducts[0].RemotePort)
	require.Len(t, cfg.Inducts, 1)
	require.Equal(t, "ipn:1.1", cfg.Inducts[0].EndpointIDStr)
}
