// Package prometheus exposes Engine metrics through client_golang.
//
// [Collector] reads [authcore.Engine.MetricsSnapshot] on every scrape and
// emits const metrics, so the Engine keeps its lock-free counters and no
// state is duplicated. Counter names are authcore_*_total; the validation
// latency histogram is authcore_validate_latency_seconds.
//
// The collector is not registered anywhere by default. Callers register it
// with their own registry, or mount [Handler].
package prometheus
