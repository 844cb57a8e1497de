// Command hdtn-node wires the contact-plan scheduler, custody/ACS
// engine, rate-limited egress, and datagram/stream convergence layers
// into one running node (spec.md §2/§6).
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
