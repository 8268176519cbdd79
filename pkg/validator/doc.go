// Package validator is the pipeline's quality gate: it enriches
// aligned records and scores them against deduction rule families.
//
// # Scoring
//
// Every record starts at 100. Each rule family deducts at most once,
// using its first matching rule:
//
//	coordinates   missing -100 | (0,0) -100 | outside the US -95
//	test data     seeded test content -95 | placeholder address -75
//	state         written state contradicts the coordinates -20
//	precision     centroid fallback -15 | non-primary geocoder -10
//	city          missing -10
//	postal code   missing -5
//
// The final score clamps at zero. A record is accepted when it reaches
// the configured threshold and is not flagged as test data; test
// content is rejected no matter how complete it looks.
//
// # Enrichment
//
// Before scoring, records with missing or implausible coordinates are
// geocoded from their address (pkg/geocoder handles caching, provider
// fallback, and breakers). Geocoded records whose written state
// contradicts the resulting coordinates get the state corrected,
// unless the ZIP code backs the written state; source-stated
// coordinates are never corrected, only deducted. State names are
// normalized to USPS codes throughout ("Texas" becomes "TX",
// unrecognized strings become empty).
//
// A geocoder chain outage retries the job. A definitive no-match does
// not: the record simply scores without coordinates and is rejected.
//
// # Outcomes
//
// Accepted records move to the reconciler queue under the same job id.
// Rejected records persist a structured rejection row (score, rule
// outcomes, the record itself) for auditing and ack the job; rejection
// is a business verdict, never a dead letter.
package validator
