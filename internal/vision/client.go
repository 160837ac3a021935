package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gradesheet/gradesheet-api/internal/models"
	"github.com/gradesheet/gradesheet-api/pkg/config"
	apperrors "github.com/gradesheet/gradesheet-api/pkg/errors"
)

const extractionPrompt = `You are a data entry assistant for a teacher. Each image is a photo of one student's score sheet or test paper. For every image, extract the student's full name, the class written on the sheet if any, and the score. Respond with a JSON array only, one object per image in order, shaped as:
[{"index": 0, "name": "...", "class": "...", "score": "...", "confidence": "High|Medium|Low"}]
Use an empty string for anything you cannot read. Report confidence as High only when the handwriting is unambiguous.`

// Client calls the Gemini generateContent endpoint to read handwritten score
// sheets. A chunk of images goes out as one multimodal request and comes back
// as one JSON array, which keeps per-image latency and token cost down.
type Client struct {
	httpClient *http.Client
	keys       *KeyRing
	model      string
	baseURL    string
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

// NewClient builds a Gemini client from config. The logger may be nil.
func NewClient(cfg config.VisionConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	delay := cfg.RetryBaseDelay
	if delay <= 0 {
		delay = time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		keys:       NewKeyRing(cfg.APIKeys),
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxRetries: retries,
		baseDelay:  delay,
		logger:     logger,
	}
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

type extractedRecord struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Class      string `json:"class"`
	Score      string `json:"score"`
	Confidence string `json:"confidence"`
}

// ExtractChunk sends a chunk of base64-encoded images (data-URL prefixes are
// tolerated) and returns one RawRecord per image, positionally aligned with
// the input. Images the model skipped or misread come back as zero records.
func (c *Client) ExtractChunk(ctx context.Context, images []string, knownNames []string) ([]models.RawRecord, error) {
	if len(images) == 0 {
		return nil, apperrors.ErrEmptyBatch
	}

	body, err := json.Marshal(c.buildRequest(images, knownNames))
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	text, err := c.callWithRetry(ctx, body)
	if err != nil {
		return nil, err
	}

	return parseRecords(text, len(images)), nil
}

func (c *Client) buildRequest(images []string, knownNames []string) generateRequest {
	prompt := extractionPrompt
	if len(knownNames) > 0 {
		prompt += "\nThe class roster is: " + strings.Join(knownNames, ", ") +
			". When a handwritten name plausibly matches a roster entry, return the roster spelling."
	}

	parts := make([]part, 0, len(images)+1)
	parts = append(parts, part{Text: prompt})
	for _, img := range images {
		mime, data := splitDataURL(img)
		parts = append(parts, part{InlineData: &inlineData{MimeType: mime, Data: data}})
	}

	return generateRequest{
		Contents:         []content{{Parts: parts}},
		GenerationConfig: &generationConfig{Temperature: 0, ResponseMimeType: "application/json"},
	}
}

func (c *Client) callWithRetry(ctx context.Context, body []byte) (string, error) {
	key, err := c.keys.Current()
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		text, retryable, quotaHit, err := c.doRequest(ctx, key, body)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
		if quotaHit {
			key, _ = c.keys.Rotate()
			c.logger.Warn("extraction quota hit, rotating api key", zap.Int("attempt", attempt))
		} else {
			c.logger.Warn("extraction request failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		}
	}

	return "", fmt.Errorf("%w: %v", apperrors.ErrUpstream, lastErr)
}

// doRequest performs a single generateContent call. It reports whether the
// failure is retryable and whether it was a quota rejection (which also
// triggers a key rotation upstream).
func (c *Client) doRequest(ctx context.Context, key string, body []byte) (text string, retryable bool, quotaHit bool, err error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", false, false, fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, false, fmt.Errorf("call extraction api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", true, false, fmt.Errorf("read extraction response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		quota := resp.StatusCode == http.StatusTooManyRequests ||
			strings.Contains(string(raw), "RESOURCE_EXHAUSTED") ||
			strings.Contains(strings.ToLower(string(raw)), "quota")
		retry := quota || resp.StatusCode >= http.StatusInternalServerError
		return "", retry, quota, fmt.Errorf("extraction api status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed generateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", false, false, fmt.Errorf("decode extraction response: %w", err)
	}
	if parsed.Error != nil {
		return "", false, false, fmt.Errorf("extraction api error %s: %s", parsed.Error.Status, parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", false, false, fmt.Errorf("extraction response has no candidates")
	}

	var sb strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), false, false, nil
}

// parseRecords turns the model's text into positionally-aligned records. The
// model sometimes wraps JSON in markdown fences or returns fewer objects than
// images; a record whose index is out of range is clamped, and unparseable
// output yields all-zero records rather than an error so one bad chunk does
// not sink the batch.
func parseRecords(text string, n int) []models.RawRecord {
	records := make([]models.RawRecord, n)

	cleaned := stripFences(text)
	var extracted []extractedRecord
	if err := json.Unmarshal([]byte(cleaned), &extracted); err != nil {
		// Some responses wrap the array in a single object.
		var wrapper struct {
			Records []extractedRecord `json:"records"`
		}
		if err := json.Unmarshal([]byte(cleaned), &wrapper); err != nil || len(wrapper.Records) == 0 {
			return records
		}
		extracted = wrapper.Records
	}

	for i, rec := range extracted {
		idx := rec.Index
		if idx < 0 || idx >= n {
			idx = i
		}
		if idx < 0 || idx >= n {
			continue
		}
		records[idx] = models.RawRecord{
			Name:       strings.TrimSpace(rec.Name),
			ClassHint:  strings.TrimSpace(rec.Class),
			RawScore:   strings.TrimSpace(rec.Score),
			Confidence: models.ParseConfidence(strings.TrimSpace(rec.Confidence)),
		}
	}

	return records
}

func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	}
	return strings.TrimSpace(trimmed)
}

func splitDataURL(img string) (mime, data string) {
	mime = "image/jpeg"
	data = img
	if !strings.HasPrefix(img, "data:") {
		return mime, data
	}
	comma := strings.Index(img, ",")
	if comma < 0 {
		return mime, data
	}
	header := img[len("data:"):comma]
	data = img[comma+1:]
	if semi := strings.Index(header, ";"); semi > 0 {
		header = header[:semi]
	}
	if header != "" {
		mime = header
	}
	return mime, data
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
