// Package compaction keeps conversation context inside the token
// budget.
//
// Two mechanisms work together:
//
//   - Compression (Compressor): when the assembled context exceeds the
//     threshold fraction of the budget, older conversation messages are
//     replaced with a single generated summary. Memory content injected
//     as system messages is never summarized away.
//
//   - Periodic summarization (Summarizer): every SummaryInterval
//     assistant turns, the most recent turn range is summarized,
//     corrected against the conversation's active constraints, stored
//     durably, and indexed for semantic retrieval.
//
// Compression is synchronous and bounded to a single request.
// Summarization runs in the background and tolerates partial failure:
// a summary that cannot be indexed is still stored.
package compaction
