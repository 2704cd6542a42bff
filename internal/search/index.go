package search

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aduong/rebook/internal/storage"
	"github.com/blevesearch/bleve/v2"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Index wraps a Bleve search index over library titles and authors
type Index struct {
	index bleve.Index
}

// IndexedDocument represents a book in the search index
type IndexedDocument struct {
	ID      string
	Title   string
	Author  string
	AddedAt time.Time
}

// SearchResult represents a search result
type SearchResult struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	Author    string              `json:"author"`
	Score     float64             `json:"score"`
	Fragments map[string][]string `json:"fragments,omitempty"` // Highlighted snippets
}

// FromMeta converts a library projection into an index document.
func FromMeta(meta storage.DocumentMeta) *IndexedDocument {
	return &IndexedDocument{
		ID:      meta.ID,
		Title:   meta.Title,
		Author:  meta.Author,
		AddedAt: meta.AddedAt,
	}
}

// Open opens or creates a Bleve index
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	return &Index{index: idx}, nil
}

// OpenMem creates an index that lives only in memory
func OpenMem() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create memory index: %w", err)
	}
	return &Index{index: idx}, nil
}

// buildIndexMapping analyzes every field with the English analyzer so
// field-less queries against _all stem the same way the fields were indexed
func buildIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("Title", bleve.NewTextFieldMapping())
	docMapping.AddFieldMappingsAt("Author", bleve.NewTextFieldMapping())
	docMapping.AddFieldMappingsAt("AddedAt", bleve.NewDateTimeFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = "en"
	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}

// Close closes the index
func (i *Index) Close() error {
	return i.index.Close()
}

// IndexDocument adds or updates a book in the index
func (i *Index) IndexDocument(doc *IndexedDocument) error {
	return i.index.Index(doc.ID, doc)
}

// Delete removes a book from the index
func (i *Index) Delete(id string) error {
	return i.index.Delete(id)
}

// Search performs a query string search (quotes, boolean operators, fuzzy ~)
func (i *Index) Search(queryStr string, limit int) ([]*SearchResult, error) {
	queryStr = strings.TrimSpace(queryStr)
	if queryStr == "" {
		return []*SearchResult{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	query := bleve.NewQueryStringQuery(queryStr)

	search := bleve.NewSearchRequestOptions(query, limit, 0, false)
	search.Highlight = bleve.NewHighlightWithStyle("html")
	search.Fields = []string{"Title", "Author"}

	results, err := i.index.Search(search)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	searchResults := make([]*SearchResult, 0, len(results.Hits))
	for _, hit := range results.Hits {
		result := &SearchResult{
			ID:        hit.ID,
			Score:     hit.Score,
			Fragments: hit.Fragments,
		}
		if title, ok := hit.Fields["Title"].(string); ok {
			result.Title = title
		}
		if author, ok := hit.Fields["Author"].(string); ok {
			result.Author = author
		}
		searchResults = append(searchResults, result)
	}

	return searchResults, nil
}

// Rebuild replaces the index contents with docs. progress, when set, is
// called after each batch.
func (i *Index) Rebuild(docs []storage.DocumentMeta, progress func(current, total int)) error {
	if err := i.clear(); err != nil {
		return err
	}

	const batchSize = 100
	batch := i.index.NewBatch()
	for n, doc := range docs {
		indexDoc := FromMeta(doc)
		if err := batch.Index(indexDoc.ID, indexDoc); err != nil {
			return fmt.Errorf("batch index %s: %w", doc.ID, err)
		}
		if batch.Size() >= batchSize || n == len(docs)-1 {
			if err := i.index.Batch(batch); err != nil {
				return fmt.Errorf("commit batch: %w", err)
			}
			batch.Reset()
			if progress != nil {
				progress(n+1, len(docs))
			}
		}
	}

	return nil
}

// clear deletes every indexed document
func (i *Index) clear() error {
	count, err := i.index.DocCount()
	if err != nil {
		return fmt.Errorf("count documents: %w", err)
	}
	if count == 0 {
		return nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	res, err := i.index.Search(req)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	batch := i.index.NewBatch()
	for _, hit := range res.Hits {
		batch.Delete(hit.ID)
	}
	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	return nil
}

// Count returns the number of documents in the index
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}
