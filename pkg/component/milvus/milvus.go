// Package milvus wraps the Milvus SDK for the chunk vector collection.
package milvus

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	milvusopts "github.com/kart-io/docqa/pkg/options/milvus"
)

// Field names of the chunk collection.
const (
	FieldChunkID    = "chunk_id"
	FieldDocumentID = "document_id"
	FieldChunkIndex = "chunk_index"
	FieldEmbedding  = "embedding"

	idMaxLength = 64
)

// Client wraps the Milvus SDK client.
type Client struct {
	client *milvusclient.Client
	opts   *milvusopts.Options
}

// New creates a new Milvus client.
func New(ctx context.Context, opts *milvusopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("milvus options is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
		DBName:   opts.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &Client{
		client: c,
		opts:   opts,
	}, nil
}

// Close closes the Milvus client connection.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

// Options returns the options the client was created with.
func (c *Client) Options() *milvusopts.Options {
	return c.opts
}

// EnsureCollection creates the chunk collection with a COSINE index when it
// does not exist and loads it into memory.
func (c *Client) EnsureCollection(ctx context.Context, name string, dimension int) error {
	exists, err := c.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if !exists {
		schema := entity.NewSchema().
			WithName(name).
			WithDescription("document chunk embeddings").
			WithAutoID(false).
			WithField(entity.NewField().
				WithName(FieldChunkID).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(idMaxLength).
				WithIsPrimaryKey(true)).
			WithField(entity.NewField().
				WithName(FieldDocumentID).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(idMaxLength)).
			WithField(entity.NewField().
				WithName(FieldChunkIndex).
				WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().
				WithName(FieldEmbedding).
				WithDataType(entity.FieldTypeFloatVector).
				WithDim(int64(dimension)))

		if err := c.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(name, schema)); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		idx := index.NewIvfFlatIndex(entity.COSINE, 128)
		createIdxTask, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(name, FieldEmbedding, idx))
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		if err := createIdxTask.Await(ctx); err != nil {
			return fmt.Errorf("failed to wait for index creation: %w", err)
		}
	}

	loadTask, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}

	return nil
}

// ChunkVector is one row of the chunk collection.
type ChunkVector struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int64
	Embedding  []float32
}

// Insert writes chunk vectors and flushes so they are searchable immediately.
func (c *Client) Insert(ctx context.Context, collection string, rows []ChunkVector) error {
	if len(rows) == 0 {
		return nil
	}

	chunkIDs := make([]string, len(rows))
	documentIDs := make([]string, len(rows))
	indexes := make([]int64, len(rows))
	vectors := make([][]float32, len(rows))
	for i, r := range rows {
		chunkIDs[i] = r.ChunkID
		documentIDs[i] = r.DocumentID
		indexes[i] = r.ChunkIndex
		vectors[i] = r.Embedding
	}

	_, err := c.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(collection,
		column.NewColumnVarChar(FieldChunkID, chunkIDs),
		column.NewColumnVarChar(FieldDocumentID, documentIDs),
		column.NewColumnInt64(FieldChunkIndex, indexes),
		column.NewColumnFloatVector(FieldEmbedding, len(vectors[0]), vectors),
	))
	if err != nil {
		return fmt.Errorf("failed to insert data: %w", err)
	}

	flushTask, err := c.client.Flush(ctx, milvusclient.NewFlushOption(collection))
	if err != nil {
		return fmt.Errorf("failed to flush collection: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for flush: %w", err)
	}

	return nil
}

// SearchHit is a single search result. Score is the cosine similarity.
type SearchHit struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int64
	Score      float32
}

// Search performs a COSINE similarity search restricted by filter.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, topK int, filter string) ([]SearchHit, error) {
	opt := milvusclient.NewSearchOption(collection, topK, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(FieldEmbedding).
		WithSearchParam("nprobe", "16").
		WithConsistencyLevel(entity.ClStrong).
		WithOutputFields(FieldDocumentID, FieldChunkIndex)
	if filter != "" {
		opt = opt.WithFilter(filter)
	}

	results, err := c.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	if len(results) == 0 {
		return []SearchHit{}, nil
	}

	rs := results[0]
	hits := make([]SearchHit, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		hit := SearchHit{Score: rs.Scores[i]}

		if idCol, ok := rs.IDs.(*column.ColumnVarChar); ok {
			hit.ChunkID = idCol.Data()[i]
		}

		for _, field := range rs.Fields {
			switch col := field.(type) {
			case *column.ColumnVarChar:
				if col.Name() == FieldDocumentID {
					hit.DocumentID = col.Data()[i]
				}
			case *column.ColumnInt64:
				if col.Name() == FieldChunkIndex {
					hit.ChunkIndex = col.Data()[i]
				}
			}
		}

		hits = append(hits, hit)
	}

	return hits, nil
}

// DeleteByDocument removes every vector of the given document.
func (c *Client) DeleteByDocument(ctx context.Context, collection, documentID string) error {
	expr := fmt.Sprintf("%s == %s", FieldDocumentID, strconv.Quote(documentID))
	if _, err := c.client.Delete(ctx, milvusclient.NewDeleteOption(collection).WithExpr(expr)); err != nil {
		return fmt.Errorf("failed to delete document vectors: %w", err)
	}
	return nil
}

// DocumentFilter builds a boolean expression matching any of the given document ids.
func DocumentFilter(documentIDs []string) string {
	quoted := make([]string, len(documentIDs))
	for i, id := range documentIDs {
		quoted[i] = strconv.Quote(id)
	}
	return fmt.Sprintf("%s in [%s]", FieldDocumentID, strings.Join(quoted, ", "))
}

// GetCollectionStats returns the number of entities in a collection.
func (c *Client) GetCollectionStats(ctx context.Context, collection string) (int64, error) {
	stats, err := c.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(collection))
	if err != nil {
		return 0, fmt.Errorf("failed to get collection stats: %w", err)
	}

	if val, ok := stats["row_count"]; ok {
		return strconv.ParseInt(val, 10, 64)
	}
	return 0, nil
}
