package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/carelane/docqueue/internal/parse"
	"github.com/carelane/docqueue/pkg/dispatch"
	"github.com/carelane/docqueue/pkg/logger"
	"github.com/carelane/docqueue/pkg/storage"
)

// one request to the embeddings API carries at most this many chunks
const batchSize = 16

// EmbeddedDocument is the embed-stage output persisted to blob storage.
type EmbeddedDocument struct {
	DocumentID uuid.UUID `json:"documentId"`
	Model      string    `json:"model"`
	Chunks     []Chunk   `json:"chunks"`
}

type Chunk struct {
	Page      int       `json:"page"`
	Content   string    `json:"content"`
	Embedding []float64 `json:"embedding"`
}

// EmbeddingKey is where the embed stage writes its output for a document.
func EmbeddingKey(documentID uuid.UUID) string {
	return fmt.Sprintf("embeddings/%s.json", documentID)
}

// Processor turns parsed page text into embedding vectors.
type Processor struct {
	storage storage.Storage
	client  *Client
	logger  logger.Logger
}

func NewProcessor(store storage.Storage, client *Client, log logger.Logger) *Processor {
	return &Processor{
		storage: store,
		client:  client,
		logger:  log,
	}
}

func (p *Processor) Process(ctx context.Context, task dispatch.StagePayload) error {
	reader, err := p.storage.Get(ctx, parse.TextKey(task.DocumentID))
	if err != nil {
		return fmt.Errorf("failed to fetch parsed text: %w", err)
	}
	defer reader.Close()

	var parsed parse.ParsedDocument
	if err := json.NewDecoder(reader).Decode(&parsed); err != nil {
		return fmt.Errorf("failed to decode parsed text: %w", err)
	}

	var chunks []Chunk
	for _, page := range parsed.Pages {
		if page.Content == "" {
			continue
		}
		chunks = append(chunks, Chunk{Page: page.Number, Content: page.Content})
	}

	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		inputs := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			inputs = append(inputs, c.Content)
		}

		vectors, err := p.client.Embed(ctx, inputs)
		if err != nil {
			return fmt.Errorf("failed to embed chunks %d-%d: %w", start, end, err)
		}
		for i, v := range vectors {
			chunks[start+i].Embedding = v
		}
	}

	result := EmbeddedDocument{
		DocumentID: task.DocumentID,
		Model:      p.client.model,
		Chunks:     chunks,
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal embeddings: %w", err)
	}

	if _, err := p.storage.Store(ctx, bytes.NewReader(data), EmbeddingKey(task.DocumentID)); err != nil {
		return fmt.Errorf("failed to store embeddings: %w", err)
	}

	p.logger.Info("Document embedded",
		logger.String("documentId", task.DocumentID.String()),
		logger.Int("chunks", len(chunks)),
	)

	return nil
}
