// Package opensearch connects to the search cluster that indexes file names
// and wiki pages.
//
// New builds a client from Config and checks the cluster is reachable.
// Documents wraps one index with the few calls the file service needs:
//
//	docs := opensearch.NewDocuments(client, cfg.Index)
//	_ = docs.Put(ctx, entryID, map[string]any{"name": "report.pdf", "team_id": 7})
//	ids, err := docs.SearchIDs(ctx, map[string]any{
//		"match": map[string]any{"name": "report"},
//	}, 100)
//
// Failures wrap ErrConnectionFailed, ErrHealthcheckFailed or ErrRequestFailed.
package opensearch
