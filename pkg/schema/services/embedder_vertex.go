package services

import (
	"context"
	"fmt"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"github.com/counsel-scripture-api/pkg/schema/config"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/structpb"
)

// vertexBatchLimit is the per-request instance cap of the text embedding
// publisher models.
const vertexBatchLimit = 250

// VertexEmbedder implements Embedder against a Vertex AI publisher model
type VertexEmbedder struct {
	client *aiplatform.PredictionClient
	model  string
}

// NewVertexEmbedder creates a Vertex AI embedder for the configured project,
// location, and model
func NewVertexEmbedder(ctx context.Context, cfg *config.Config) (*VertexEmbedder, error) {
	if cfg.GCPProjectID == "" {
		return nil, fmt.Errorf("GCP_PROJECT_ID is required for Vertex AI embeddings")
	}

	client, err := aiplatform.NewPredictionClient(ctx,
		option.WithEndpoint(fmt.Sprintf("%s-aiplatform.googleapis.com:443", cfg.GCPLocation)))
	if err != nil {
		return nil, fmt.Errorf("create Vertex AI client: %w", err)
	}

	return &VertexEmbedder{
		client: client,
		model: fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s",
			cfg.GCPProjectID, cfg.GCPLocation, cfg.VertexModel),
	}, nil
}

// Close closes the underlying prediction client
func (e *VertexEmbedder) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// Embed generates an embedding for a single text
func (e *VertexEmbedder) Embed(ctx context.Context, text string, taskType TaskType) ([]float64, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text}, taskType)
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for texts, splitting into requests of at
// most vertexBatchLimit instances
func (e *VertexEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType TaskType) ([][]float64, error) {
	embeddings := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += vertexBatchLimit {
		end := start + vertexBatchLimit
		if end > len(texts) {
			end = len(texts)
		}
		chunk, err := e.predict(ctx, texts[start:end], taskType)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, chunk...)
	}
	return embeddings, nil
}

func (e *VertexEmbedder) predict(ctx context.Context, texts []string, taskType TaskType) ([][]float64, error) {
	instances := make([]*structpb.Value, len(texts))
	for i, text := range texts {
		instance, err := structpb.NewStruct(map[string]interface{}{
			"content":   text,
			"task_type": string(taskType),
		})
		if err != nil {
			return nil, fmt.Errorf("build instance: %w", err)
		}
		instances[i] = structpb.NewStructValue(instance)
	}

	resp, err := e.client.Predict(ctx, &aiplatformpb.PredictRequest{
		Endpoint:  e.model,
		Instances: instances,
	})
	if err != nil {
		return nil, fmt.Errorf("vertex AI prediction failed: %w", err)
	}

	embeddings := make([][]float64, len(resp.Predictions))
	for i, prediction := range resp.Predictions {
		embedding, err := decodePrediction(prediction)
		if err != nil {
			return nil, fmt.Errorf("prediction %d: %w", i, err)
		}
		embeddings[i] = embedding
	}
	return embeddings, nil
}

// decodePrediction unwraps a publisher model prediction, which nests the
// vector under embeddings.values
func decodePrediction(prediction *structpb.Value) ([]float64, error) {
	predStruct := prediction.GetStructValue()
	if predStruct == nil {
		return nil, fmt.Errorf("prediction is not a struct")
	}
	embStruct := predStruct.Fields["embeddings"].GetStructValue()
	if embStruct == nil {
		return nil, fmt.Errorf("missing embeddings struct")
	}
	valuesList := embStruct.Fields["values"].GetListValue()
	if valuesList == nil {
		return nil, fmt.Errorf("missing embeddings values")
	}

	embedding := make([]float64, len(valuesList.Values))
	for i, v := range valuesList.Values {
		embedding[i] = v.GetNumberValue()
	}
	return embedding, nil
}
