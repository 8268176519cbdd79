/*
Package log configures the process-wide zerolog logger and the child
logger helpers the pipeline components use.

Init is called once, from main, before anything logs: it sets the
global severity filter and points the root Logger at JSON output for
deployments or zerolog's console writer for running a stage by hand.
Everything after that is plain zerolog.

# Field Conventions

Components never log through the root Logger directly; they derive a
child with their identity attached and log through that:

	log := log.WithComponent("reconciler")
	log.Info().Str("org_id", id).Msg("merge committed")

Four fields are standard across the pipeline, each with a helper:

  - component: which package is speaking (WithComponent)
  - queue: which queue a worker pool serves (WithQueue)
  - job_id: the pipeline job a line belongs to (WithJobID)
  - scraper_id: the source a payload came from (WithScraperID)

Handlers combine them per job, so every line a record produces on its
way through the stages carries the same job_id and can be stitched
back into one story:

	logger := h.log.With().Str("job_id", job.JobID).Logger()

# What Not To Log

Payload contents stay out of the logs; scraped pages can carry
personal data, and the content store already keeps the bytes by hash.
The same goes for provider API keys and anything else from the
credential sections of the config.
*/
package log
