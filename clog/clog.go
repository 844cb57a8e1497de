// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package clog provides the leveled logger handle that every core engine
// receives at construction. There is no package-level logger and no
// init()-time global: the scheduler, egress engine, CLA managers, custody
// engine and forwarder are each handed their own Clog so a caller can mute,
// redirect or fan out logging per engine without touching the others.
//
// A handle also carries an optional dotted component tag (WithComponent),
// so one process-wide Clog can be derived into "forwarder", "forwarder.acs",
// "egress.outduct0", and so on without every engine constructing its own
// *log.Logger or agreeing on a prefix convention by hand.
package clog

import (
	"log"
	"os"
	"sync/atomic"
)

// Provider is the sink a Clog writes through. RFC5424 severities are
// collapsed to the four the core actually distinguishes between.
type Provider interface {
	Critical(format string, v ...interface{})
	Error(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Debug(format string, v ...interface{})
}

// Clog is an enable/disable-able handle bound to a single Provider and an
// optional component tag.
type Clog struct {
	provider  Provider
	component string
	// 1 = enabled, 0 = disabled
	enabled uint32
}

// New returns a Clog writing to stdout via the standard library logger,
// prefixed with name, enabled by default.
func New(name string) Clog {
	c := Clog{
		provider: stdProvider{log.New(os.Stdout, name+": ", log.LstdFlags)},
	}
	c.LogMode(true)
	return c
}

// Nop returns a Clog that discards everything. Useful as a default handle
// for tests and for engines a caller does not want instrumented.
func Nop() Clog {
	return Clog{provider: nopProvider{}}
}

// WithComponent returns a copy of c tagged with component, so every
// message it logs is prefixed "[component] ". Calling WithComponent again
// on the result nests the tag ("forwarder" -> "forwarder.acs"), letting a
// single process-wide handle fan out into per-engine and per-sub-engine
// loggers (run.go hands the scheduler, forwarder, egress outducts, and CLA
// managers each their own tagged derivative of one root Clog). The
// provider and current enabled state are carried over unchanged; toggling
// LogMode on the derived handle does not affect the one it was derived
// from, matching Clog's existing pass-by-value semantics.
func (c Clog) WithComponent(component string) Clog {
	if c.component != "" {
		component = c.component + "." + component
	}
	return Clog{provider: c.provider, component: component, enabled: c.enabled}
}

// LogMode enables or disables output without replacing the provider.
func (c *Clog) LogMode(enable bool) {
	if enable {
		atomic.StoreUint32(&c.enabled, 1)
	} else {
		atomic.StoreUint32(&c.enabled, 0)
	}
}

// SetProvider redirects output to p. A nil p is ignored.
func (c *Clog) SetProvider(p Provider) {
	if p != nil {
		c.provider = p
	}
}

func (c Clog) tag(format string) string {
	if c.component == "" {
		return format
	}
	return "[" + c.component + "] " + format
}

// Critical logs a CRITICAL level message.
func (c Clog) Critical(format string, v ...interface{}) {
	if atomic.LoadUint32(&c.enabled) == 1 {
		c.provider.Critical(c.tag(format), v...)
	}
}

// Error logs an ERROR level message.
func (c Clog) Error(format string, v ...interface{}) {
	if atomic.LoadUint32(&c.enabled) == 1 {
		c.provider.Error(c.tag(format), v...)
	}
}

// Warn logs a WARN level message.
func (c Clog) Warn(format string, v ...interface{}) {
	if atomic.LoadUint32(&c.enabled) == 1 {
		c.provider.Warn(c.tag(format), v...)
	}
}

// Debug logs a DEBUG level message.
func (c Clog) Debug(format string, v ...interface{}) {
	if atomic.LoadUint32(&c.enabled) == 1 {
		c.provider.Debug(c.tag(format), v...)
	}
}

type stdProvider struct {
	*log.Logger
}

var _ Provider = stdProvider{}

func (p stdProvider) Critical(format string, v ...interface{}) { p.Printf("[C] "+format, v...) }
func (p stdProvider) Error(format string, v ...interface{})    { p.Printf("[E] "+format, v...) }
func (p stdProvider) Warn(format string, v ...interface{})     { p.Printf("[W] "+format, v...) }
func (p stdProvider) Debug(format string, v ...interface{})    { p.Printf("[D] "+format, v...) }

type nopProvider struct{}

var _ Provider = nopProvider{}

func (nopProvider) Critical(string, ...interface{}) {}
func (nopProvider) Error(string, ...interface{})    {}
func (nopProvider) Warn(string, ...interface{})     {}
func (nopProvider) Debug(string, ...interface{})    {}
