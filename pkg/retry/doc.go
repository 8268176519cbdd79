/*
Package retry holds the two retry shapes the pipeline uses.

Do wraps cenkalti/backoff for in-process retries: call a dependency a
few times with jittered exponential backoff before giving up, with an
optional predicate that declares an error permanent. The reconciler
uses it around its merge transactions, where losing a race to a
sibling process deserves another attempt with the winner's rows now
visible.

Delay is for retries that happen through the queue instead of in
process: it turns a delivery's attempt number into the redelivery
delay (base doubled per prior attempt, capped), which stage handlers
return as the redelivery outcome. The queue holds the message, so no
goroutine sleeps on a retry.
*/
package retry
