package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/vbonduro/unlabel/internal/analysis"
	"github.com/vbonduro/unlabel/internal/domain"
)

// DecisionRequest is the body of POST /analyze/decision.
type DecisionRequest struct {
	Text             string         `json:"text"`
	UserIntent       string         `json:"user_intent,omitempty"`
	IncludeNutrition map[string]any `json:"include_nutrition,omitempty"`
}

// Decide submits text to the decision engine and returns the normalized
// decision. A body that is not a decision at all yields an error wrapping
// analysis.ErrSchemaMismatch.
func (c *Client) Decide(ctx context.Context, req DecisionRequest) (*domain.Decision, error) {
	body, err := c.postJSON(ctx, "/analyze/decision", req)
	if err != nil {
		return nil, err
	}
	return analysis.NormalizeDecision(body)
}

// AnalyzeImage uploads a label image as the multipart "file" field of
// POST /analyze/image.
func (c *Client) AnalyzeImage(ctx context.Context, r io.Reader, filename, mimeType string) (*domain.LegacyAnalysis, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/analyze/image", &buf, mw.FormDataContentType())
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return analysis.DecodeLegacyAnalysis(body)
}

// History lists the signed-in user's past analyses.
func (c *Client) History(ctx context.Context) ([]domain.HistoryEntry, error) {
	body, err := c.get(ctx, "/analyze/history")
	if err != nil {
		return nil, err
	}
	entries := []domain.HistoryEntry{}
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return entries, nil
}
