/*
Package health probes the pipeline's dependencies for the readiness
endpoint.

A Checker is one named dependency probe; a Set runs its checkers in
order with an individual timeout per probe, so one hung dependency
cannot eat the whole readiness budget. Results carry the probe
latency and an error string rather than an error value because they
are destined for a JSON response.

Three checkers cover the stack: PostgresChecker pings the canonical
store, RedisChecker pings the broker, and HTTPChecker probes an
external endpoint such as a geocoding provider's base URL. HTTPChecker
accepts 200-399 by default; WithStatusRange widens or narrows that
when a probe target answers its root with something else.

The API server owns the Set and serves its results on /healthz:
healthy when every probe passes, 503 with the per-check breakdown
otherwise. Postgres and Redis are always probed; geocoder provider
probes join only when geocoder.health_probes opts in, since a public
provider outage should not mark the process unready by default.
Probes run on demand per request, not on a timer, so the endpoint
always reflects the current state.
*/
package health
