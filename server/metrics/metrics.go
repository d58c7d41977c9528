/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package metrics exposes the Prometheus counters/gauges a host process
// embedding a pshell server would want on its own registry: none of this
// is named by the wire protocol, it is the natural extra the
// host-process-embedding use case invites.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics is one server's metric set, registered against a caller-owned
// prometheus.Registerer so multiple embedded servers in one process
// don't collide on the default registry.
type Metrics struct {
	CommandsDispatched prometheus.Counter
	CommandErrors      *prometheus.CounterVec
	ActiveSessions     prometheus.Gauge
	BufferResizes      prometheus.Counter
}

// New builds and registers a Metrics set labeled with the server name,
// mirroring the teacher's pattern of namespacing metrics per embedded
// component rather than relying on global registration order.
func New(reg prometheus.Registerer, serverName string) *Metrics {
	m := &Metrics{
		CommandsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "pshell",
			Subsystem:   "server",
			Name:        "commands_dispatched_total",
			Help:        "Total commands dispatched by this server.",
			ConstLabels: prometheus.Labels{"server": serverName},
		}),
		CommandErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "pshell",
			Subsystem:   "server",
			Name:        "command_errors_total",
			Help:        "Commands that ended in an error, by error code.",
			ConstLabels: prometheus.Labels{"server": serverName},
		}, []string{"code"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "pshell",
			Subsystem:   "server",
			Name:        "active_sessions",
			Help:        "Currently connected interactive sessions (tcp/local).",
			ConstLabels: prometheus.Labels{"server": serverName},
		}),
		BufferResizes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "pshell",
			Subsystem:   "server",
			Name:        "buffer_resizes_total",
			Help:        "Times the output buffer grew and renegotiated payload size.",
			ConstLabels: prometheus.Labels{"server": serverName},
		}),
	}
	reg.MustRegister(m.CommandsDispatched, m.CommandErrors, m.ActiveSessions, m.BufferResizes)
	return m
}
