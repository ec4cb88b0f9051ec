package files

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/teamfiles/pkg/opensearch"
	"github.com/dmitrymomot/teamfiles/pkg/storage"
)

// SearchQuery is a full-text query scoped to a team and, when ChannelID is
// set, to one channel.
type SearchQuery struct {
	TeamID    int64
	ChannelID int64
	Query     string
}

// Searcher resolves a query to the storage entry ids that match it.
type Searcher interface {
	SearchIDs(ctx context.Context, q SearchQuery) ([]string, error)
}

// Document is the indexed projection of a storage entry.
type Document struct {
	EntryID   string `json:"entry_id"`
	TeamID    int64  `json:"team_id"`
	ChannelID int64  `json:"channel_id,omitempty"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	IsFolder  bool   `json:"is_folder"`
	Content   string `json:"content,omitempty"`
}

type Indexer interface {
	IndexDocument(ctx context.Context, doc Document) error
	RemoveDocument(ctx context.Context, entryID string) error
}

type nopIndexer struct{}

func (nopIndexer) IndexDocument(context.Context, Document) error { return nil }
func (nopIndexer) RemoveDocument(context.Context, string) error  { return nil }

// IndexMapping is the OpenSearch mapping of the files index.
const IndexMapping = `{
  "mappings": {
    "properties": {
      "entry_id":   {"type": "keyword"},
      "team_id":    {"type": "long"},
      "channel_id": {"type": "long"},
      "name":       {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "path":       {"type": "keyword"},
      "is_folder":  {"type": "boolean"},
      "content":    {"type": "text"}
    }
  }
}`

// OpenSearchIndex implements Searcher and Indexer on an OpenSearch index.
// Documents are keyed by entry id.
type OpenSearchIndex struct {
	docs  *opensearch.Documents
	limit int
}

// NewOpenSearchIndex returns an index returning at most limit ids per query.
func NewOpenSearchIndex(docs *opensearch.Documents, limit int) *OpenSearchIndex {
	if limit <= 0 {
		limit = DefaultConfig().SearchLimit
	}
	return &OpenSearchIndex{docs: docs, limit: limit}
}

// EnsureIndex creates the index with IndexMapping when missing.
func (o *OpenSearchIndex) EnsureIndex(ctx context.Context) error {
	return o.docs.EnsureIndex(ctx, IndexMapping)
}

func (o *OpenSearchIndex) IndexDocument(ctx context.Context, doc Document) error {
	if err := o.docs.Put(ctx, doc.EntryID, doc); err != nil {
		return fmt.Errorf("files: index %s: %w", doc.Path, err)
	}
	return nil
}

func (o *OpenSearchIndex) RemoveDocument(ctx context.Context, entryID string) error {
	if err := o.docs.Delete(ctx, entryID); err != nil {
		return fmt.Errorf("files: remove %s from index: %w", entryID, err)
	}
	return nil
}

func (o *OpenSearchIndex) SearchIDs(ctx context.Context, q SearchQuery) ([]string, error) {
	ids, err := o.docs.SearchIDs(ctx, searchBody(q), o.limit)
	if err != nil {
		return nil, fmt.Errorf("files: search %q: %w", q.Query, err)
	}
	return ids, nil
}

func searchBody(q SearchQuery) map[string]any {
	filter := []any{
		map[string]any{"term": map[string]any{"team_id": q.TeamID}},
	}
	if q.ChannelID != 0 {
		filter = append(filter, map[string]any{"term": map[string]any{"channel_id": q.ChannelID}})
	}
	return map[string]any{
		"bool": map[string]any{
			"filter": filter,
			"must": []any{
				map[string]any{"multi_match": map[string]any{
					"query":  q.Query,
					"fields": []string{"name^3", "content"},
				}},
			},
		},
	}
}

func pathEntryID(p *TranslatedPath) string { return storage.EntryID(p.PhysicalPath) }
