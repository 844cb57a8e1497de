package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunNodeFailsOnMissingConfigFile(t *testing.T) {
	err := runNode(rootCmd, runnerOptions{
		hdtnConfigFile:  filepath.Join(t.TempDir(), "missing.json"),
		contactPlanFile: filepath.Join(t.TempDir(), "missing-plan.json"),
	})
	require.Error(t, err)
}

func TestCleanupListRunsInReverseOrderAndAggregatesErrors(t *testing.T) {
	var order []int
	c := newCleanupList()
	c.add(func() error { order = append(order, 1); return nil })
	c.add(func() error { order = append(order, 2); return assertErr("boom") })
	c.add(func() error { order = append(order, 3); return nil })

	err := c.runAll()
	require.Error(t, err)
	require.Equal(t, []int{3, 2, 1}, order)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
