/*
Package broker wraps the shared Redis connection and the small
coordination primitives built on it.

Everything cross-process that is not durable data lives here: the
queue substrate borrows the connection, and the broker itself owns
named locks, quota holds, mirrored breaker flags, and the geocode
cache. Durable state (content records, canonical entities) never
touches Redis; losing the broker loses in-flight coordination, not
data.

# Key Namespace

All keys are prefixed and colon-joined by Key:

	ladle:q:<name>:...       queue substrate (owned by pkg/queue)
	ladle:lock:<name>        named locks with fencing tokens
	ladle:quota:<provider>   LLM quota holds
	ladle:breaker:<name>     mirrored circuit breaker flags
	ladle:cache:<hash>       geocode cache entries

# Locks

AcquireLock takes a named lock with a TTL and a random fencing token.
Release and Refresh are compare-and-delete/extend scripts on that
token, so a holder that lost the lock to TTL expiry cannot stomp the
next holder. ErrLockHeld from Acquire means "skip this cycle";
ErrLockLost from Refresh means "stop the work". The publisher uses
this to keep concurrent publish cycles from racing.

# Coordination Flags

Quota holds and breaker flags exist so one process's failure teaches
the fleet. SetQuotaHold records a provider's quota exhaustion with a
compounding multiplier that survives the hold, so consecutive trips
keep growing the delay; every LLM worker checks the hold before
calling out. SetBreakerOpen mirrors a local gobreaker trip with the
cooldown as TTL; every geocoder call checks the flag before spending
a request on a provider that another process already saw fail.

# Usage

	b, err := broker.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer b.Close()

Tests wrap miniredis with NewWithClient instead of dialing out.
*/
package broker
