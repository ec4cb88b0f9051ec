package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// Documents reads and writes JSON documents of a single index.
type Documents struct {
	client *opensearch.Client
	index  string
}

// NewDocuments binds client to index.
func NewDocuments(client *opensearch.Client, index string) *Documents {
	return &Documents{client: client, index: index}
}

// Index returns the bound index name.
func (d *Documents) Index() string { return d.index }

// EnsureIndex creates the index with mapping unless it already exists.
func (d *Documents) EnsureIndex(ctx context.Context, mapping string) error {
	exists, err := opensearchapi.IndicesExistsRequest{Index: []string{d.index}}.Do(ctx, d.client)
	if err != nil {
		return errors.Join(ErrRequestFailed, err)
	}
	_ = exists.Body.Close()
	if exists.StatusCode == http.StatusOK {
		return nil
	}

	res, err := opensearchapi.IndicesCreateRequest{
		Index: d.index,
		Body:  strings.NewReader(mapping),
	}.Do(ctx, d.client)
	if err != nil {
		return errors.Join(ErrRequestFailed, err)
	}
	return checkResponse(res, "create index")
}

// Put stores doc under id, replacing any previous version.
func (d *Documents) Put(ctx context.Context, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	res, err := opensearchapi.IndexRequest{
		Index:      d.index,
		DocumentID: id,
		Body:       bytes.NewReader(body),
	}.Do(ctx, d.client)
	if err != nil {
		return errors.Join(ErrRequestFailed, err)
	}
	return checkResponse(res, "index document")
}

// Delete removes the document. Missing documents are not an error.
func (d *Documents) Delete(ctx context.Context, id string) error {
	res, err := opensearchapi.DeleteRequest{
		Index:      d.index,
		DocumentID: id,
	}.Do(ctx, d.client)
	if err != nil {
		return errors.Join(ErrRequestFailed, err)
	}
	if res.StatusCode == http.StatusNotFound {
		_ = res.Body.Close()
		return nil
	}
	return checkResponse(res, "delete document")
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID string `json:"_id"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchIDs runs query and returns the ids of up to size hits.
func (d *Documents) SearchIDs(ctx context.Context, query any, size int) ([]string, error) {
	body, err := json.Marshal(map[string]any{
		"query":   query,
		"size":    size,
		"_source": false,
	})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	res, err := opensearchapi.SearchRequest{
		Index: []string{d.index},
		Body:  bytes.NewReader(body),
	}.Do(ctx, d.client)
	if err != nil {
		return nil, errors.Join(ErrRequestFailed, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, errors.Join(ErrRequestFailed, fmt.Errorf("search: status %d", res.StatusCode))
	}

	var out searchResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	ids := make([]string, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

func checkResponse(res *opensearchapi.Response, op string) error {
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return errors.Join(ErrRequestFailed, fmt.Errorf("%s: status %d: %s", op, res.StatusCode, bytes.TrimSpace(msg)))
	}
	return nil
}
