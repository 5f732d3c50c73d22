package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxLineSize = 16 << 20

var errNotADocument = errors.New("not a JSON document")

type importResult struct {
	imported int
	skipped  int
}

// importDocuments upserts one document per non-empty line of source. Documents without an id get
// a random one. It stops at the first line
// that is not a JSON object or that the repository rejects and reports its line number.
func importDocuments(
	ctx context.Context,
	repository docstore.Repository,
	source io.Reader,
	databaseName, entityName string,
) (importResult, error) {
	var result importResult

	scanner := bufio.NewScanner(source)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++

		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			result.skipped++
			continue
		}

		var doc docstore.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return result, fmt.Errorf("line %d: %w: %w", line, errNotADocument, err)
		}

		if doc == nil {
			return result, fmt.Errorf("line %d: %w", line, errNotADocument)
		}

		id := doc.ID()
		if id == "" {
			id = uuid.NewString()
		}

		if _, err := repository.Upsert(ctx, databaseName, entityName, id, doc, docstore.UpsertOptions{DisableEvents: true}); err != nil {
			return result, fmt.Errorf("line %d: %w", line, err)
		}

		result.imported++
	}

	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("reading input failed: %w", err)
	}

	return result, nil
}
