package vector

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantIndex backs the store_backend=qdrant option. It lazily creates each
// collection on first Upsert since collections are keyed per (kb, user)
// and are not known ahead of time.
//
// The exact client surface here (qdrant.NewClient, client.Upsert,
// client.Query, client.Delete, client.CreateCollection) is reconstructed
// from the go-client module version pinned in the pack's manifest; no
// in-pack caller source exercises this library beyond its go.mod listing,
// so this is a best-effort shape rather than a grounded one.
type QdrantIndex struct {
	client *qdrant.Client
	dim    uint64

	known map[string]bool
}

func NewQdrantIndex(url string, dim uint64) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: url, Port: 6334})
	if err != nil {
		return nil, fmt.Errorf("vector: qdrant client: %w", err)
	}
	return &QdrantIndex{client: client, dim: dim, known: make(map[string]bool)}, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context, collection string) error {
	if q.known[collection] {
		return nil
	}
	exists, err := q.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("vector: check collection %s: %w", collection, err)
	}
	if !exists {
		err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     q.dim,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("vector: create collection %s: %w", collection, err)
		}
	}
	q.known[collection] = true
	return nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, collection, id string, vec []float32, payload map[string]any) error {
	if err := q.ensureCollection(ctx, collection); err != nil {
		return err
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(id),
				Vectors: qdrant.NewVectors(vec...),
				Payload: qdrant.NewValueMap(payload),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vector: upsert into %s: %w", collection, err)
	}
	return nil
}

func (q *QdrantIndex) Search(ctx context.Context, collection string, vec []float32, topK int) ([]Hit, error) {
	if err := q.ensureCollection(ctx, collection); err != nil {
		return nil, err
	}

	limit := uint64(topK)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vector: query %s: %w", collection, err)
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		payload := make(map[string]any, len(p.Payload))
		for k, v := range p.Payload {
			payload[k] = v.AsInterface()
		}
		hits = append(hits, Hit{ID: p.Id.GetUuid(), Score: float64(p.Score), Payload: payload})
	}
	return hits, nil
}

func (q *QdrantIndex) Delete(ctx context.Context, collection, id string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelectorIDs([]*qdrant.PointId{qdrant.NewID(id)}),
	})
	if err != nil {
		return fmt.Errorf("vector: delete from %s: %w", collection, err)
	}
	return nil
}
