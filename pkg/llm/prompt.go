package llm

import (
	"strings"

	"github.com/ladleio/ladle/pkg/hsds"
)

// promptHeader is the instruction block shared by every provider. The
// schema it references is the single canonical one in pkg/hsds;
// provider-specific envelopes (chat roles, stdin framing) are applied
// at the provider boundary only.
const promptHeader = `You convert scraped food-assistance listings into structured HSDS JSON.

Respond with exactly one JSON object and nothing else. No prose, no
markdown fences, no explanations. The object must validate against this
JSON Schema (HSDS ` + hsds.SchemaVersion + ` subset):

`

const promptRules = `

Rules:
- Copy names, addresses, and phone numbers verbatim from the source.
- Omit a field entirely when the source does not state it. Never guess.
- Include latitude/longitude only when the source states coordinates.
- Use two-letter USPS state codes when the state is unambiguous.
- schedules[].freq must be WEEKLY or MONTHLY; omit schedules you cannot
  express that way.
- service status defaults to "active" unless the source says otherwise.

Source document`

// BuildPrompt assembles the alignment prompt for one scraped payload
func BuildPrompt(payload []byte, scraperID, sourceURL string) string {
	var b strings.Builder
	b.Grow(len(promptHeader) + len(hsds.SchemaJSON) + len(promptRules) + len(payload) + 128)

	b.WriteString(promptHeader)
	b.WriteString(hsds.SchemaJSON)
	b.WriteString(promptRules)
	if scraperID != "" {
		b.WriteString(" (scraper ")
		b.WriteString(scraperID)
		if sourceURL != "" {
			b.WriteString(", from ")
			b.WriteString(sourceURL)
		}
		b.WriteString(")")
	}
	b.WriteString(":\n\n")
	b.Write(payload)
	return b.String()
}
