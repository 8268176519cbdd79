// Package llm turns scraped payloads into structured HSDS records
// through a pluggable completion provider.
//
// # Architecture
//
// The package splits into three layers. Providers speak to one model
// backend and classify its failures. The Aligner owns one alignment
// call end to end. The Handler binds alignment to the queue substrate
// and the content store lifecycle.
//
//	┌────────────────────────────────────────────────┐
//	│                    Handler                     │
//	│   quota park · lifecycle · outcome mapping     │
//	├────────────────────────────────────────────────┤
//	│                    Aligner                     │
//	│   prompt · timeout · parse · classification    │
//	├──────────────┬──────────────┬──────────────────┤
//	│    OpenAI    │  Subprocess  │      Mock        │
//	└──────────────┴──────────────┴──────────────────┘
//
// # Providers
//
// Three providers cover production, self-hosting, and development:
//
//   - openai: the chat completions API through langchaingo, or any
//     compatible endpoint via base_url
//   - subprocess: a local command fed the prompt on stdin, answering
//     on stdout. Exit 0 is success, 75 (EX_TEMPFAIL) is transient,
//     anything else permanent unless stderr names a quota problem.
//   - mock: a canned valid record, scriptable per call in tests
//
// Each provider classifies its own failures into *Error kinds at the
// boundary, so nothing above it inspects provider-specific errors.
//
// # Error kinds
//
// Every alignment failure carries one kind, which the handler maps to
// a queue outcome:
//
//	quota_exceeded      trip the fleet-wide hold, retry after it
//	provider_transient  retry with exponential spacing
//	timeout             retry with exponential spacing
//	malformed_output    retry a bounded number of times, then fail
//	schema_violation    retry a bounded number of times, then fail
//	provider_permanent  mark failed, dead letter immediately
//
// # Quota coordination
//
// One 429 pauses the whole fleet. The QuotaGuard records a hold in the
// broker; every worker checks it before spending a provider call and
// parks its job for the remainder when one is active. Consecutive
// trips compound the hold up to a ceiling, and one success resets the
// multiplier. Broker failures report "clear": risking an extra 429
// beats stalling the pipeline on a coordination hiccup.
//
// # Usage
//
//	aligner, err := llm.NewAligner(cfg.LLM, brk, ev)
//	if err != nil {
//		return err
//	}
//	handler := llm.NewHandler(store, aligner, validatorQ, ev, cfg.LLM.MaxOutputRetries)
//	pool := worker.NewPool(llmQ, handler, worker.Options{Workers: 4})
//
// # Integration Points
//
//   - pkg/contentstore: job lifecycle (pending, completed, failed) and
//     payload/output blobs
//   - pkg/queue: the llm queue feeds Handle; accepted output goes to
//     the validator queue under the same job id
//   - pkg/broker: quota holds shared across workers
//   - pkg/hsds: prompt schema and strict output parsing
//
// See pkg/validator for what happens to a record after alignment.
package llm
