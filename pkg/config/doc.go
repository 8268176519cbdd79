/*
Package config defines the single configuration object shared by every
ladle process.

Values layer in a fixed order: built-in defaults, then an optional
YAML file, then LADLE_* environment variables. Later layers override
earlier ones field by field, so a deployment can ship one YAML file
and tune per-process differences (credentials, the broker URL) through
the environment.

# Layout

Config has one section per component: Log, Queue, LLM, Validator,
Geocoder, Reconciler, Publisher, Workers, plus the top-level
connection strings (BrokerURL, DatabaseURL, APIAddr,
ContentStorePath). Sections are plain structs with yaml tags; a
section's zero value is never used directly because Default fills
every field before the file and environment are applied.

Durations are stored as integer seconds (or milliseconds where noted)
and exposed through accessor methods that return time.Duration, so
YAML stays unit-explicit and call sites never convert.

# Environment Overrides

Only operational knobs have environment forms: connection strings,
credentials, the LLM provider selection, publisher target, and the
validation threshold. Tuning parameters (breaker windows, rate
limits, pool sizes) are file-only; if a deployment needs to change
them it should change its config file, not its process environment.

# Usage

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

Load applies all three layers and validates the result. An empty path
skips the file layer; Default().Validate() always passes, so a bare
process with only environment variables set still starts.
*/
package config
