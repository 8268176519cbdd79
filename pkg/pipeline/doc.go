/*
Package pipeline assembles the ladle components into a runnable
process.

A Runtime owns the shared connections (Postgres, Redis) and the
components selected by Options: the HTTP API, the worker pools for any
subset of the four queue stages, the scheduled publisher, the queue
reaper, and the metrics collector. New builds everything without
starting anything; Run starts the selected pieces and blocks until the
context is canceled and every worker has settled its current delivery.

The same binary serves three deployment shapes:

	pipeline.ServerOptions(version)    everything in one process
	pipeline.WorkerOptions("llm")      just the llm stage workers
	pipeline.WorkerOptions()           all four stages, no API

Stage dependencies are built only when their stage is active, so a
reconciler-only worker runs without an LLM key or geocoder
configuration. The publisher state file locks exclusively, which limits
the API and the publish schedule to a single process per state path.
*/
package pipeline
