// Package metrics exposes Prometheus collectors for mirror runs.
//
// A Collector owns its own registry so that several collectors (one per
// test, one per server) never clash on the global default registry. Every
// method is safe to call on a nil *Collector, which lets the crawl and
// download code record metrics unconditionally.
package metrics
