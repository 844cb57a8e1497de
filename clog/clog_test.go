package clog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingProvider struct {
	criticals, errors, warns, debugs []string
}

func (p *recordingProvider) Critical(format string, v ...interface{}) {
	p.criticals = append(p.criticals, format)
}
func (p *recordingProvider) Error(format string, v ...interface{}) {
	p.errors = append(p.errors, format)
}
func (p *recordingProvider) Warn(format string, v ...interface{}) {
	p.warns = append(p.warns, format)
}
func (p *recordingProvider) Debug(format string, v ...interface{}) {
	p.debugs = append(p.debugs, format)
}

func TestWithComponentTagsMessages(t *testing.T) {
	rec := &recordingProvider{}
	log := New("node")
	log.SetProvider(rec)

	fwd := log.WithComponent("forwarder")
	fwd.Error("link down")
	require.Equal(t, []string{"[forwarder] link down"}, rec.errors)

	acs := fwd.WithComponent("acs")
	acs.Debug("discharged %d", 3)
	require.Equal(t, []string{"[forwarder.acs] discharged %d"}, rec.debugs)

	// the root handle is untouched by tagging its derivatives.
	log.Warn("untagged")
	require.Equal(t, []string{"untagged"}, rec.warns)
}

func TestWithComponentInheritsEnabledStateAtDeriveTime(t *testing.T) {
	rec := &recordingProvider{}
	log := New("node")
	log.SetProvider(rec)
	log.LogMode(false)

	child := log.WithComponent("egress")
	child.Critical("should be suppressed")
	require.Empty(t, rec.criticals)

	log.LogMode(true)
	child.Critical("still suppressed: enabled state was copied, not linked")
	require.Empty(t, rec.criticals)
}

func TestNopDiscardsEverything(t *testing.T) {
	log := Nop().WithComponent("induct")
	log.Critical("ignored")
	log.Error("ignored")
	log.Warn("ignored")
	log.Debug("ignored")
}
