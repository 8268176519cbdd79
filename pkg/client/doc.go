/*
Package client is the Go wrapper around the ladle HTTP API.

A scraper's whole integration is one call:

	cl := client.New("http://ladle.internal:8080")

	resp, err := cl.Submit(ctx, payloadBytes, types.SourceMetadata{
		ScraperID: "nyc_efap",
		SourceURL: pageURL,
		ScrapedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if resp.Deduplicated {
		// nothing new, the pipeline already has these bytes
	}

Non-2xx answers come back as *APIError with the server's message, so
callers can switch on StatusCode for 413 (payload too large) or 409
(publish already running) without string matching.
*/
package client
