// Package convoctx provides hierarchical context management for
// conversational AI applications.
//
// Conversations accumulate history faster than any model context window
// can hold it. ConvoCtx keeps each turn inside a fixed token budget by
// layering three memory tiers over the raw transcript:
//
//   - Short-term: a sliding window of recent turns in Redis, falling
//     back to PostgreSQL when the cache is cold or down
//   - Long-term: periodic summaries of older turn ranges, stored in
//     PostgreSQL
//   - Semantic: summaries embedded and indexed in Weaviate, retrieved
//     by similarity across the user's past conversations
//
// On top of the tiers, a constraint system extracts durable user
// instructions (preferences, rules, corrections, facts, bans) from the
// conversation and re-injects them into the system prompt, so they
// survive summarization and window eviction.
//
// # Quick Start
//
//	pool, _ := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
//	store := storage.NewPostgresStore(pool)
//	client, err := convoctx.NewClient(convoctx.Dependencies{
//	    Store:     store,
//	    Cache:     cache.NewRedisStore(rdb),
//	    Generator: llm.NewAnthropicGenerator(&anthropicClient, model),
//	}, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	conv, result, _ := client.StartConversation(ctx, "user-1", "", "Hi, I'm 26 and use Postgres")
//	result, _ = client.SendMessage(ctx, conv.ID, "user-1", "Actually I'm 27, not 26")
//
// Every turn is budgeted: when the assembled context exceeds the
// compression threshold, older messages are summarized in place before
// the model is called.
package convoctx
