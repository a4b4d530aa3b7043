// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package qdrant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Payload keys stored with every point.
const (
	payloadDocumentID = "documentId"
	payloadImageURL   = "imageUrl"
	payloadModel      = "model"
)

// DefaultCollectionPrefix names collections newsrag_text and newsrag_image.
const DefaultCollectionPrefix = "newsrag"

// Index mirrors embedding records into Qdrant, one collection per kind.
type Index struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
	prefix      string
	logger      *slog.Logger
}

var _ storage.VectorIndex = (*Index)(nil)

// Option configures an Index.
type Option func(*Index) error

// WithCollectionPrefix sets the prefix of the per-kind collection names.
func WithCollectionPrefix(prefix string) Option {
	return func(i *Index) error {
		if prefix == "" {
			return fmt.Errorf("collection prefix must not be empty")
		}
		i.prefix = prefix
		return nil
	}
}

// WithLogger sets a custom logger for the index.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Index) error {
		if logger != nil {
			i.logger = logger
		}
		return nil
	}
}

// NewIndex dials the Qdrant gRPC endpoint at addr and makes sure both collections exist.
func NewIndex(ctx context.Context, addr string, opts ...Option) (*Index, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}

	idx := &Index{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
		prefix:      DefaultCollectionPrefix,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(idx); err != nil {
			conn.Close()
			return nil, err
		}
	}
	idx.logger = idx.logger.With("component", "qdrant-index")

	for _, kind := range []core.Kind{core.KindText, core.KindImage} {
		if err := idx.ensureCollection(ctx, kind); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return idx, nil
}

// Close tears down the underlying gRPC connection.
func (i *Index) Close() error {
	if i.conn == nil {
		return nil
	}
	return i.conn.Close()
}

// CollectionName returns the collection holding records of kind.
func (i *Index) CollectionName(kind core.Kind) string {
	return i.prefix + "_" + string(kind)
}

// ensureCollection creates the collection of kind if it does not already exist.
func (i *Index) ensureCollection(ctx context.Context, kind core.Kind) error {
	name := i.CollectionName(kind)
	_, err := i.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	if err == nil {
		return nil
	}
	_, err = i.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(kind.Dimension()),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	i.logger.Info("created collection", "collection", name, "dimension", kind.Dimension())
	return nil
}

// Index upserts records, grouped into one request per kind.
func (i *Index) Index(ctx context.Context, records ...*core.Embedding) error {
	grouped := make(map[core.Kind][]*pb.PointStruct)
	for _, record := range records {
		if err := core.ValidateEmbedding(record); err != nil {
			return err
		}
		grouped[record.Kind] = append(grouped[record.Kind], toPoint(record))
	}

	wait := true
	for _, kind := range []core.Kind{core.KindText, core.KindImage} {
		points := grouped[kind]
		if len(points) == 0 {
			continue
		}
		_, err := i.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: i.CollectionName(kind),
			Wait:           &wait,
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("upsert %s: %w", i.CollectionName(kind), err)
		}
	}
	return nil
}

// Reset drops and recreates the collection of kind.
func (i *Index) Reset(ctx context.Context, kind core.Kind) error {
	if !kind.Valid() {
		return core.NewValidationError("kind", fmt.Sprintf("unknown kind %q", kind))
	}
	name := i.CollectionName(kind)
	if _, err := i.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name}); err != nil {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	return i.ensureCollection(ctx, kind)
}

// Search returns up to topK matches of kind ordered by descending cosine similarity.
// A non-positive topK yields no matches.
func (i *Index) Search(ctx context.Context, vector []float32, kind core.Kind, topK int) ([]core.Match, error) {
	if topK <= 0 {
		return []core.Match{}, nil
	}
	if err := core.CheckDimension(kind, vector); err != nil {
		return nil, err
	}

	name := i.CollectionName(kind)
	resp, err := i.points.Search(ctx, &pb.SearchPoints{
		CollectionName: name,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", name, err)
	}

	matches := make([]core.Match, 0, len(resp.GetResult()))
	for _, point := range resp.GetResult() {
		match, ok := fromScoredPoint(point)
		if !ok {
			i.logger.Warn("skipping point without document id", "collection", name, "id", point.GetId().GetUuid())
			continue
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// PointID derives a stable point id from a record key, so re-indexing replaces points.
func PointID(key core.EmbeddingKey) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key.String())).String()
}

func toPoint(record *core.Embedding) *pb.PointStruct {
	payload := map[string]*pb.Value{
		payloadDocumentID: stringValue(record.DocumentID),
		payloadModel:      stringValue(record.Model),
	}
	if record.ImageURL != "" {
		payload[payloadImageURL] = stringValue(record.ImageURL)
	}
	return &pb.PointStruct{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(record.Key())}},
		Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: record.Vector}}},
		Payload: payload,
	}
}

func fromScoredPoint(point *pb.ScoredPoint) (core.Match, bool) {
	docID := payloadString(point.GetPayload(), payloadDocumentID)
	if docID == "" {
		return core.Match{}, false
	}
	return core.Match{
		DocumentID: docID,
		ImageURL:   payloadString(point.GetPayload(), payloadImageURL),
		Score:      point.GetScore(),
	}, true
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func payloadString(payload map[string]*pb.Value, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if sv, ok := v.GetKind().(*pb.Value_StringValue); ok {
		return sv.StringValue
	}
	return ""
}
