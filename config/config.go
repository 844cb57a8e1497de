// Package config defines the JSON boundary structs the core reads at
// the edge of the external configuration loader (spec.md §1, §6). The
// loader itself — file discovery, environment overlay, validation
// beyond what the core needs — is an external collaborator; this
// package only owns the shapes the core consumes.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hdtn-go/bpcore/eid"
)

// ContactRow is one row of the contactPlan array (spec.md §6).
type ContactRow struct {
	Contact             uint64 `json:"contact"`
	Source              uint64 `json:"source"`
	Dest                uint64 `json:"dest"`
	FinalDestinationEID string `json:"finalDestinationEid"`
	Start               int64  `json:"start"`
	End                 int64  `json:"end"`
	Rate                uint64 `json:"rate"`
}

// ParsedFinalDestination parses FinalDestinationEID as an IPN EID.
func (r ContactRow) ParsedFinalDestination() (eid.EID, error) {
	return eid.ParseIPN(r.FinalDestinationEID)
}

// ContactPlanFile is the top-level shape of a contact-plan JSON file.
type ContactPlanFile struct {
	Contacts []ContactRow `json:"contactPlan"`
}

// LoadContactPlanFile reads and parses a contact-plan file from path.
func LoadContactPlanFile(path string) (*ContactPlanFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading contact plan file: %w", err)
	}
	var f ContactPlanFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parsing contact plan file: %w", err)
	}
	return &f, nil
}

// OutductConfig is the per-outduct settings the core reads (spec.md
// §6).
type OutductConfig struct {
	ConvergenceLayer               string `json:"convergenceLayer"`
	RemoteHostname                 string `json:"remoteHostname"`
	RemotePort                     int    `json:"remotePort"`
	BundlePipelineLimit            int    `json:"bundlePipelineLimit"`
	TcpclV3MyMaxTxSegmentSizeBytes int    `json:"tcpclV3MyMaxTxSegmentSizeBytes"`
	KeepAliveIntervalSeconds       int    `json:"keepAliveIntervalSeconds"`
}

// InductConfig is the per-induct settings the core reads (spec.md §6).
type InductConfig struct {
	ConvergenceLayer                  string `json:"convergenceLayer"`
	BoundPort                         int    `json:"boundPort"`
	NumRxCircularBufferElements       int    `json:"numRxCircularBufferElements"`
	NumRxCircularBufferBytesPerElement int   `json:"numRxCircularBufferBytesPerElement"`
	EndpointIDStr                     string `json:"endpointIdStr"`
}

// NodeConfig is the top-level HDTN-node configuration file shape.
type NodeConfig struct {
	MyNodeID uint64          `json:"myNodeId"`
	Outducts []OutductConfig `json:"outducts"`
	Inducts  []InductConfig  `json:"inducts"`
}

// LoadNodeConfigFile reads and parses a node configuration file from
// path.
func LoadNodeConfigFile(path string) (*NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading node config file: %w", err)
	}
	var c NodeConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parsing node config file: %w", err)
	}
	return &c, nil
}
