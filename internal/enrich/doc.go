// Package enrich resolves message sender references into chat.UserDisplay
// values. An Enricher owns a Cache that lives for one session and is shared by
// every enrichment call; a failed lookup never aborts a batch.
package enrich
