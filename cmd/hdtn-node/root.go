package main

import (
	"github.com/spf13/cobra"
)

var (
	hdtnConfigFile  string
	contactPlanFile string
	eventsFile      string
	cutThroughOnly  bool
)

// rootCmd is the sole command this binary exposes: a one-process HDTN
// node (spec.md §6's flag set).
var rootCmd = &cobra.Command{
	Use:   "hdtn-node",
	Short: "Run a one-process bundle-protocol forwarding node",
	Long: `hdtn-node loads a node configuration and contact plan, then runs
the contact-plan scheduler, custody/ACS engine, rate-limited egress, and
convergence-layer sinks/sources as one process until interrupted.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode(cmd, runnerOptions{
			hdtnConfigFile:  hdtnConfigFile,
			contactPlanFile: contactPlanFile,
			eventsFile:      eventsFile,
			cutThroughOnly:  cutThroughOnly,
		})
	},
}

func init() {
	rootCmd.Flags().StringVar(&hdtnConfigFile, "hdtn-config-file", "hdtn.json", "HDTN node configuration file")
	rootCmd.Flags().StringVar(&contactPlanFile, "contact-plan-file", "contact-plan.json", "contact plan file")
	rootCmd.Flags().StringVar(&eventsFile, "events-file", "", "optional path to append a JSON-lines log of link-up/link-down events")
	rootCmd.Flags().BoolVar(&cutThroughOnly, "cut-through-only-test", false, "forward directly to egress once a destination link is up, skipping custody acceptance and CTEB attachment (link-state admission gating still applies)")
}
