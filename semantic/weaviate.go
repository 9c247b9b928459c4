package semantic

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

const (
	// ClassName is the Weaviate class holding indexed summaries.
	ClassName = "ConversationSummary"

	conversationIDProperty = "conversationId"
	summaryIDProperty      = "summaryId"
	userIDProperty         = "userId"
	textProperty           = "text"
	rangeStartProperty     = "turnRangeStart"
	rangeEndProperty       = "turnRangeEnd"
)

// WeaviateIndex implements Index on a Weaviate class with external
// vectors (vectorizer "none").
type WeaviateIndex struct {
	client *weaviate.Client
	logger *log.Logger
}

// NewWeaviateIndex creates an index on the given client.
func NewWeaviateIndex(client *weaviate.Client, logger *log.Logger) *WeaviateIndex {
	if logger == nil {
		logger = log.Default()
	}
	return &WeaviateIndex{client: client, logger: logger}
}

// EnsureSchema creates the summary class if it does not exist.
func (idx *WeaviateIndex) EnsureSchema(ctx context.Context) error {
	exists, err := idx.client.Schema().ClassExistenceChecker().WithClassName(ClassName).Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: checking class existence: %v", ErrIndex, err)
	}
	if exists {
		return nil
	}

	classObj := &models.Class{
		Class:       ClassName,
		Description: "Conversation summaries indexed for cross-conversation recall",
		Properties: []*models.Property{
			{
				Name:     conversationIDProperty,
				DataType: []string{"text"},
			},
			{
				Name:     summaryIDProperty,
				DataType: []string{"text"},
			},
			{
				Name:     userIDProperty,
				DataType: []string{"text"},
			},
			{
				Name:     textProperty,
				DataType: []string{"text"},
			},
			{
				Name:     rangeStartProperty,
				DataType: []string{"int"},
			},
			{
				Name:     rangeEndProperty,
				DataType: []string{"int"},
			},
		},
		Vectorizer: "none",
	}

	if err := idx.client.Schema().ClassCreator().WithClass(classObj).Do(ctx); err != nil {
		return fmt.Errorf("%w: creating summary schema: %v", ErrIndex, err)
	}

	idx.logger.Info("Summary schema created", "class", ClassName)
	return nil
}

// Upsert writes a record keyed by its summary ID.
func (idx *WeaviateIndex) Upsert(ctx context.Context, rec Record) error {
	if len(rec.Vector) == 0 {
		return fmt.Errorf("record has no vector")
	}

	obj := &models.Object{
		Class: ClassName,
		ID:    strfmt.UUID(rec.SummaryID.String()),
		Properties: map[string]interface{}{
			conversationIDProperty: rec.ConversationID.String(),
			summaryIDProperty:      rec.SummaryID.String(),
			userIDProperty:         rec.UserID,
			textProperty:           rec.Text,
			rangeStartProperty:     rec.TurnRangeStart,
			rangeEndProperty:       rec.TurnRangeEnd,
		},
		Vector: rec.Vector,
	}

	result, err := idx.client.Batch().ObjectsBatcher().WithObjects(obj).Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: indexing summary: %v", ErrIndex, err)
	}
	for _, res := range result {
		if res.Result != nil && res.Result.Errors != nil && len(res.Result.Errors.Error) > 0 {
			return fmt.Errorf("%w: indexing summary: %s", ErrIndex, res.Result.Errors.Error[0].Message)
		}
	}

	idx.logger.Debug("Indexed summary", "summary_id", rec.SummaryID, "user_id", rec.UserID)
	return nil
}

// Search runs a nearVector query filtered to the owning user and maps
// cosine distance to a [0, 1] relevance score.
func (idx *WeaviateIndex) Search(ctx context.Context, q Query) ([]SearchResult, error) {
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("query has no vector")
	}
	if q.UserID == "" {
		return nil, fmt.Errorf("query has no user id")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 5
	}

	nearVector := idx.client.GraphQL().NearVectorArgBuilder().WithVector(q.Vector)
	if q.MinScore > 0 {
		nearVector = nearVector.WithCertainty(float32(q.MinScore))
	}

	userFilter := filters.Where().
		WithPath([]string{userIDProperty}).
		WithOperator(filters.Equal).
		WithValueText(q.UserID)

	fields := []graphql.Field{
		{Name: conversationIDProperty},
		{Name: textProperty},
		{
			Name: "_additional",
			Fields: []graphql.Field{
				{Name: "id"},
				{Name: "distance"},
			},
		},
	}

	resp, err := idx.client.GraphQL().Get().
		WithClassName(ClassName).
		WithNearVector(nearVector).
		WithWhere(userFilter).
		WithLimit(limit).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndex, err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("%w: query errors: %v", ErrIndex, resp.Errors)
	}

	return parseSearchResponse(resp.Data, q.MinScore, idx.logger)
}

func parseSearchResponse(data map[string]models.JSONObject, minScore float64, logger *log.Logger) ([]SearchResult, error) {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	classData, ok := get[ClassName].([]interface{})
	if !ok {
		return nil, nil
	}

	results := make([]SearchResult, 0, len(classData))
	for _, item := range classData {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		text, _ := obj[textProperty].(string)
		convIDStr, _ := obj[conversationIDProperty].(string)
		convID, err := uuid.Parse(convIDStr)
		if err != nil {
			logger.Warn("Skipping hit with bad conversation id", "conversation_id", convIDStr)
			continue
		}

		score := 0.0
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			if distance, ok := additional["distance"].(float64); ok {
				// Cosine distance in [0, 2] maps to certainty in [0, 1].
				score = 1 - distance/2
			}
		}
		if score < minScore {
			continue
		}

		results = append(results, SearchResult{
			ConversationID: convID,
			Summary:        text,
			Score:          score,
		})
	}
	return results, nil
}
