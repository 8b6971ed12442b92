// Package pipeline decodes the progress payloads a pipeline run pushes over its
// event stream and turns them into display values: a completion percentage, a
// status line and an estimated time to finish.
//
// It also provides [Poll], the status-polling fallback used when a run's event
// stream fails for good.
package pipeline
