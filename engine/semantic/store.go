// Package semantic is the sole owner of the Qdrant vector index: collection
// bootstrap, chunk upsert/delete, and k-NN similarity search.
package semantic

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/StephaneWamba/real-time-rag/pkg/resilience"
)

// VectorStore is the sole owner of all Qdrant operations.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	breaker     *resilience.Breaker
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		breaker:     resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}, nil
}

// NewWithClients builds a VectorStore around pre-constructed Qdrant clients,
// bypassing the dial step. Used by tests to inject mock clients.
func NewWithClients(points pb.PointsClient, collections pb.CollectionsClient, collection string) *VectorStore {
	return &VectorStore{
		points:      points,
		collections: collections,
		collection:  collection,
		breaker:     resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
}

// Ping verifies connectivity by listing collections, satisfying
// health.Pinger for liveness checks.
func (v *VectorStore) Ping(ctx context.Context) error {
	_, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	return err
}

// Close closes the underlying gRPC connection. A VectorStore built via
// NewWithClients has none to close.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// EnsureCollection creates the collection with the given vector
// dimensionality and cosine distance if it does not already exist.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	return nil
}

// UpsertChunks stores one point per chunk, payload-tagged with the owning
// document, its version, and the chunk's position within it. The point ID is
// the chunk's deterministic UUID, so re-upserting the same chunk overwrites
// rather than duplicates.
func (v *VectorStore) UpsertChunks(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: map[string]*pb.Value{
				"document_id": {Kind: &pb.Value_StringValue{StringValue: r.DocumentID}},
				"content":     {Kind: &pb.Value_StringValue{StringValue: r.Content}},
				"chunk_index": {Kind: &pb.Value_IntegerValue{IntegerValue: int64(r.ChunkIndex)}},
				"version":     {Kind: &pb.Value_IntegerValue{IntegerValue: int64(r.Version)}},
			},
		}
	}

	wait := true
	err := v.breaker.Call(ctx, func(ctx context.Context) error {
		_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: v.collection,
			Wait:           &wait,
			Points:         points,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(records), err)
	}
	return nil
}

// DeleteDocumentChunks removes every point tagged with the given document,
// used on document deletion.
func (v *VectorStore) DeleteDocumentChunks(ctx context.Context, documentID string) error {
	wait := true
	err := v.breaker.Call(ctx, func(ctx context.Context) error {
		_, err := v.points.Delete(ctx, &pb.DeletePoints{
			CollectionName: v.collection,
			Wait:           &wait,
			Points: &pb.PointsSelector{
				PointsSelectorOneOf: &pb.PointsSelector_Filter{
					Filter: &pb.Filter{
						Must: []*pb.Condition{fieldMatch("document_id", documentID)},
					},
				},
			},
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("semantic: delete chunks for document %s: %w", documentID, err)
	}
	return nil
}

// Search performs k-NN cosine similarity search with no version floor.
func (v *VectorStore) Search(ctx context.Context, embedding []float32, topK int) ([]SearchResult, error) {
	return v.SearchMinVersion(ctx, embedding, topK, nil)
}

// SearchMinVersion performs k-NN similarity search, optionally restricted to
// chunks at or above minVersion — used to exclude chunks from a document
// revision that a concurrent update has since superseded.
func (v *VectorStore) SearchMinVersion(ctx context.Context, embedding []float32, topK int, minVersion *int) ([]SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}

	if minVersion != nil {
		gte := float64(*minVersion)
		req.Filter = &pb.Filter{
			Must: []*pb.Condition{
				{
					ConditionOneOf: &pb.Condition_Field{
						Field: &pb.FieldCondition{
							Key:   "version",
							Range: &pb.Range{Gte: &gte},
						},
					},
				},
			},
		}
	}

	var resp *pb.SearchResponse
	err := v.breaker.Call(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = v.points.Search(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	results := make([]SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		payload := r.GetPayload()
		results[i] = SearchResult{
			ID:         r.GetId().GetUuid(),
			Score:      r.GetScore(),
			Content:    payload["content"].GetStringValue(),
			DocumentID: payload["document_id"].GetStringValue(),
			Version:    int(payload["version"].GetIntegerValue()),
		}
	}
	return results, nil
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
