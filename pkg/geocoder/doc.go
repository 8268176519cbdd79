/*
Package geocoder resolves addresses to coordinates through a chain of
HTTP providers with a shared cache and per-provider circuit breakers.

The chain is ordered by configuration (default: ArcGIS, Nominatim,
Census). Each HTTP provider sits behind its own rate limiter and
circuit breaker; a provider whose breaker is open is skipped, and
breaker transitions are mirrored into the broker so every worker
process in the fleet observes a trip, not just the one that suffered
the failures. An optional synthetic provider places addresses at their
state centroid when the whole chain comes up empty.

# Architecture

	Geocode(addr)
	     |
	     v
	+-----------+  miss   +--------------------------------------+
	|   cache   |-------->| chain: arcgis -> nominatim -> census |
	| (broker)  |         |  each: [rate limit][breaker][HTTP]   |
	+-----------+         +--------------------------------------+
	     ^                        |                    |
	     |   store on success     |          all failed/no match
	     +------------------------+                    |
	                                                   v
	                                        +--------------------+
	                                        | centroid fallback  |
	                                        | (state table, no   |
	                                        |  network)          |
	                                        +--------------------+

# Results

A Result carries the coordinates plus provenance: which provider
answered, that provider's precision label (high, mid, low, lowest), and
whether the answer came from a fallback position in the chain. The
validator uses provenance to price fallback and centroid results into
the record score.

Error contract:

  - ErrNotGeocodable: providers answered, nobody matched. A data
    problem; retrying will not help.
  - transient pipeline error: nothing in the chain was reachable. The
    caller should retry the enclosing job.

# Caching

One shared namespace with one TTL. Keys are the SHA-256 of the
normalized address (lowercased, whitespace collapsed), so trivially
different renderings of the same address share an entry. Cached entries
keep full provenance; a cache hit scores identically to the original
lookup.

# Circuit Breakers

Each provider gets a sony/gobreaker breaker: failures within the
rolling window beyond the threshold open the circuit for the cooldown.
A clean "no candidates" answer counts as success. Open/close
transitions write or clear `ladle:breaker:geocoder:<provider>` in the
broker, and every call checks that flag first, so one process tripping
a provider quiets the whole fleet for the cooldown.

# Usage

	svc, err := geocoder.New(cfg.Geocoder, b, ev)
	if err != nil {
		return err
	}

	res, err := svc.Geocode(ctx, geocoder.Address{
		Line1: "123 Main St",
		City:  "Austin",
		State: "TX",
	})

# Integration Points

  - pkg/validator: coordinate enrichment and state correction
  - pkg/broker: cache entries and mirrored breaker flags
  - pkg/metrics: per-provider request counters, cache hit ratio,
    breaker gauges
*/
package geocoder
