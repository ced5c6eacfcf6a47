package memory

import (
	"bytes"
	"context"
	"fmt"
	"strings"
)

// Guidance returns the guidance text for boardID: every global document
// followed by the board's own documents, each in key order, separated by
// blank lines. A nil store yields no guidance.
func Guidance(ctx context.Context, store Store, boardID string) (string, error) {
	if store == nil {
		return "", nil
	}

	keys, err := store.List(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list guidance: %w", err)
	}

	var global, board []string
	boardPrefix := BoardPrefix(boardID)
	for _, k := range keys {
		switch {
		case strings.HasPrefix(k, NamespaceGlobal+"/"):
			global = append(global, k)
		case boardID != "" && strings.HasPrefix(k, boardPrefix):
			board = append(board, k)
		}
	}

	selected := append(global, board...)
	if len(selected) == 0 {
		return "", nil
	}

	docs, err := store.Load(ctx, selected...)
	if err != nil {
		return "", fmt.Errorf("failed to load guidance: %w", err)
	}

	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if body := bytes.TrimSpace(d.Body); len(body) > 0 {
			parts = append(parts, string(body))
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
