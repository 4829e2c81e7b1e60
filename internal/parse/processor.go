package parse

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/carelane/docqueue/pkg/dispatch"
	"github.com/carelane/docqueue/pkg/logger"
	"github.com/carelane/docqueue/pkg/storage"
)

// ParsedDocument is the parse-stage output persisted to blob storage and
// consumed by the embed stage.
type ParsedDocument struct {
	DocumentID uuid.UUID `json:"documentId"`
	Filename   string    `json:"filename"`
	Hash       string    `json:"hash"`
	Pages      []Page    `json:"pages"`
}

type Page struct {
	Number  int    `json:"number"`
	Content string `json:"content"`
}

// TextKey is where the parse stage writes its output for a document.
func TextKey(documentID uuid.UUID) string {
	return fmt.Sprintf("text/%s.json", documentID)
}

// Processor extracts page text from uploaded PDFs.
type Processor struct {
	storage storage.Storage
	logger  logger.Logger
}

func NewProcessor(store storage.Storage, log logger.Logger) *Processor {
	return &Processor{
		storage: store,
		logger:  log,
	}
}

func (p *Processor) Process(ctx context.Context, task dispatch.StagePayload) error {
	reader, err := p.storage.Get(ctx, task.StorageKey)
	if err != nil {
		return fmt.Errorf("failed to fetch document: %w", err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	pages, err := extractPages(ctx, content)
	if err != nil {
		return fmt.Errorf("failed to extract text: %w", err)
	}

	hash := sha256.Sum256(content)
	parsed := ParsedDocument{
		DocumentID: task.DocumentID,
		Filename:   task.Filename,
		Hash:       hex.EncodeToString(hash[:]),
		Pages:      pages,
	}

	data, err := json.Marshal(parsed)
	if err != nil {
		return fmt.Errorf("failed to marshal parse result: %w", err)
	}

	if _, err := p.storage.Store(ctx, bytes.NewReader(data), TextKey(task.DocumentID)); err != nil {
		return fmt.Errorf("failed to store parse result: %w", err)
	}

	p.logger.Info("Document parsed",
		logger.String("documentId", task.DocumentID.String()),
		logger.Int("pages", len(pages)),
	)

	return nil
}

// extractPages pulls plain text from every page concurrently, capped at a
// small worker count.
func extractPages(ctx context.Context, content []byte) ([]Page, error) {
	reader := bytes.NewReader(content)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return nil, err
	}

	numPages := pdfReader.NumPage()
	results := make([]Page, numPages)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i := 1; i <= numPages; i++ {
		pageNum := i
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			page := pdfReader.Page(pageNum)
			if page.V.IsNull() {
				results[pageNum-1] = Page{Number: pageNum}
				return nil
			}

			text, err := page.GetPlainText(nil)
			if err != nil {
				return fmt.Errorf("failed to get text from page %d: %w", pageNum, err)
			}

			results[pageNum-1] = Page{
				Number:  pageNum,
				Content: strings.TrimSpace(text),
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
