// Package telemetry instruments bundle throughput, stage duration, and
// budget utilization, exposed as Prometheus metrics on an internal
// /metrics endpoint rather than a remote collector — there is no
// distributed trace to propagate across the fixing-agent subprocess
// boundary.
package telemetry
