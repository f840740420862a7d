// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package qrtr

import (
	"log"
	"time"

	"github.com/jacobsa/timeutil"
)

// observerConfig holds the construction-time options for Create, the same
// role MountConfig plays for the teacher's Mount: a plain struct assembled
// by functional options rather than a long positional constructor.
type observerConfig struct {
	lookupTimeout time.Duration
	debugLogger   *log.Logger
	errorLogger   *log.Logger
	clock         timeutil.Clock
	metrics       *Metrics
}

func defaultObserverConfig() observerConfig {
	return observerConfig{
		lookupTimeout: 0,
		debugLogger:   getLogger(),
		errorLogger:   defaultErrorLogger(),
		clock:         timeutil.RealClock(),
	}
}

// Option configures Create.
type Option func(*observerConfig)

// WithLookupTimeout sets the budget Create waits for the initial lookup
// burst to quiesce (§4.2 step 6). Zero, the default, means Create returns
// immediately and nodes are discovered asynchronously via NodeAdded.
func WithLookupTimeout(d time.Duration) Option {
	return func(c *observerConfig) { c.lookupTimeout = d }
}

// WithDebugLogger overrides the package's default -qrtr.debug-gated logger
// for this Observer.
func WithDebugLogger(l *log.Logger) Option {
	return func(c *observerConfig) { c.debugLogger = l }
}

// WithErrorLogger overrides the always-on diagnostic logger used for
// InvariantViolation and SocketIO conditions (§7).
func WithErrorLogger(l *log.Logger) Option {
	return func(c *observerConfig) { c.errorLogger = l }
}

// WithClock injects the time source used to compute the deadline that
// Create logs when WithLookupTimeout expires. Log line timestamps come from
// the *log.Logger itself, not from this clock. The debounce and lookup
// timers still run against the real clock (see DESIGN.md), so a simulated
// clock such as timeutil.SimulatedClock changes what is logged, not when
// timers actually fire.
func WithClock(c timeutil.Clock) Option {
	return func(cfg *observerConfig) { cfg.clock = c }
}

// WithMetrics attaches a Metrics instance (see metrics.go) that the
// Observer updates as it processes control packets and WaitForNode calls.
// Nil, the default, disables instrumentation entirely.
func WithMetrics(m *Metrics) Option {
	return func(c *observerConfig) { c.metrics = m }
}

// clientConfig holds Open's construction-time options.
type clientConfig struct {
	debugLogger *log.Logger
	errorLogger *log.Logger
	onMessage   MessageHandler
}

func defaultClientConfig() clientConfig {
	return clientConfig{
		debugLogger: getLogger(),
		errorLogger: defaultErrorLogger(),
	}
}

// ClientOption configures Open.
type ClientOption func(*clientConfig)

// WithMessageHandler registers the callback invoked for every inbound
// datagram on the client's socket (§4.3's "message(bytes)" event). Without
// one, inbound datagrams are read and discarded.
func WithMessageHandler(h MessageHandler) ClientOption {
	return func(c *clientConfig) { c.onMessage = h }
}

// WithClientDebugLogger overrides the default debug logger for a Client.
func WithClientDebugLogger(l *log.Logger) ClientOption {
	return func(c *clientConfig) { c.debugLogger = l }
}

// WithClientErrorLogger overrides the default error logger for a Client.
func WithClientErrorLogger(l *log.Logger) ClientOption {
	return func(c *clientConfig) { c.errorLogger = l }
}
