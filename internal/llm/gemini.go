package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"nutriplan/internal/config"
	"nutriplan/internal/shared"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

const (
	geminiTextModel      = "gemini-1.5-flash"
	geminiEmbeddingModel = "text-embedding-004"
)

// GeminiClient is a client for the Google Gemini API. It serves both text
// generation and embeddings.
type GeminiClient struct {
	client    *genai.Client
	textModel string
	embedding *genai.EmbeddingModel
}

// NewGeminiClient creates a new Gemini API client.
func NewGeminiClient(ctx context.Context, cfg *config.Config) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{
		client:    client,
		textModel: geminiTextModel,
		embedding: client.EmbeddingModel(geminiEmbeddingModel),
	}, nil
}

// GenerateContent sends a prompt to the Gemini model and returns the generated text.
func (c *GeminiClient) GenerateContent(ctx context.Context, prompt string) (ContentResponse, error) {
	model := c.client.GenerativeModel(c.textModel)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return ContentResponse{}, geminiError(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ContentResponse{}, ErrNoContent
	}

	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return ContentResponse{}, fmt.Errorf("%w: generated content is not text", ErrInvalidOutput)
	}

	usage := shared.TokenUsage{Model: c.textModel}
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	return ContentResponse{Content: string(text), Usage: usage}, nil
}

// GenerateEmbedding returns the embedding vector for text.
func (c *GeminiClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	res, err := c.embedding.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, geminiError(err)
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, ErrNoContent
	}
	return res.Embedding.Values, nil
}

// Close closes the underlying Gemini client.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// geminiError classifies an API failure by its HTTP status, or by the HTTP
// equivalent of its gRPC code.
func geminiError(err error) error {
	status := geminiStatus(err)
	if status == 0 {
		return &shared.ExternalServiceError{Service: "gemini", Err: err}
	}
	return shared.NewExternalServiceError("gemini", status, err.Error())
}

func geminiStatus(err error) int {
	var apiErr *apierror.APIError
	if !errors.As(err, &apiErr) {
		var ok bool
		if apiErr, ok = apierror.FromError(err); !ok {
			return 0
		}
	}
	if code := apiErr.HTTPCode(); code > 0 {
		return code
	}
	if s := apiErr.GRPCStatus(); s != nil {
		return grpcHTTPStatus(s.Code())
	}
	return 0
}

func grpcHTTPStatus(c codes.Code) int {
	switch c {
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.InvalidArgument, codes.FailedPrecondition:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Internal, codes.Unknown, codes.DataLoss:
		return http.StatusInternalServerError
	}
	return 0
}
