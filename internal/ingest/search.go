package ingest

import (
	"context"
	"fmt"

	"github.com/trustint/trustint/internal/store"
)

// SearchResult is one row returned by Search.
type SearchResult struct {
	Scope   string `json:"scope"`
	Key     string `json:"key"`
	Content string `json:"content"`
}

// Search queries the search_idx FTS5 table for query, optionally
// restricted to scope ("trusts", "roles", "assets", "obligations"); scope
// "" or "all" searches every row regardless of scope.
func Search(ctx context.Context, s *store.Store, query, scope string) ([]SearchResult, error) {
	sqlQuery := `SELECT scope, key, content FROM search_idx WHERE search_idx MATCH ?`
	args := []any{query}
	if scope != "" && scope != "all" {
		sqlQuery += ` AND scope = ?`
		args = append(args, scope)
	}

	rows, err := s.DB().QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("ingest: search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Scope, &r.Key, &r.Content); err != nil {
			return nil, fmt.Errorf("ingest: search scan: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
