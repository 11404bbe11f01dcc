package index

import (
	"context"
	"encoding/hex"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// QdrantMirror optionally pushes every HNSW insert to a Qdrant collection
// so off-node dashboards can run ANN queries against a real vector service
// without the node's own query path depending on one. Adapted wholesale
// from the teacher's engine/semantic.VectorStore; the node's in-memory
// Index remains authoritative for query.knn.
type QdrantMirror struct {
	conn       *grpc.ClientConn
	points     pb.PointsClient
	collections pb.CollectionsClient
	collection string
}

// NewQdrantMirror dials the Qdrant gRPC endpoint at addr.
func NewQdrantMirror(addr, collection string) (*QdrantMirror, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("index: dial qdrant %s: %w", addr, err)
	}
	return &QdrantMirror{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// Close closes the underlying gRPC connection.
func (m *QdrantMirror) Close() error { return m.conn.Close() }

// EnsureCollection creates the mirror collection if it does not exist.
func (m *QdrantMirror) EnsureCollection(ctx context.Context, dims int) error {
	list, err := m.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("index: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == m.collection {
			return nil
		}
	}
	_, err = m.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: m.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: uint64(dims), Distance: pb.Distance_Cosine},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("index: create collection %s: %w", m.collection, err)
	}
	return nil
}

// Upsert mirrors a single grain insert into Qdrant, keyed by hex grain id.
func (m *QdrantMirror) Upsert(ctx context.Context, id [32]byte, vec []float32, authorPK [32]byte, createdMs int64) error {
	wait := true
	_, err := m.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: m.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: hex.EncodeToString(id[:])}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vec}}},
			Payload: map[string]*pb.Value{
				"author_pk":  {Kind: &pb.Value_StringValue{StringValue: hex.EncodeToString(authorPK[:])}},
				"created_ms": {Kind: &pb.Value_IntegerValue{IntegerValue: createdMs}},
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("index: mirror upsert: %w", err)
	}
	return nil
}
