// Package ocr calls the remote OCR service that reads fitness-app
// screenshots. The service speaks the Clova General OCR JSON protocol.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"example.com/steprelay/internal/domain"
	"example.com/steprelay/internal/retry"
)

// ErrEmptyResult indicates the OCR service returned no text fields.
var ErrEmptyResult = errors.New("ocr result contains no text fields")

// Client recognizes screenshot text via the remote OCR endpoint.
type Client struct {
	invokeURL   string
	secretKey   string
	httpClient  *http.Client
	retryConfig retry.Config
	log         *zap.Logger
}

// NewClient constructs a Client. invokeURL and secretKey come from the OCR
// provider's console.
func NewClient(invokeURL, secretKey string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	cfg := retry.DefaultConfig()
	cfg.Logger = log
	return &Client{
		invokeURL:   invokeURL,
		secretKey:   secretKey,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		retryConfig: cfg,
		log:         log,
	}
}

type ocrRequest struct {
	Version   string     `json:"version"`
	RequestID string     `json:"requestId"`
	Timestamp int64      `json:"timestamp"`
	Images    []ocrImage `json:"images"`
}

type ocrImage struct {
	Format string `json:"format"`
	Name   string `json:"name"`
	Data   string `json:"data"`
}

type ocrResponse struct {
	Images []struct {
		InferResult string `json:"inferResult"`
		Fields      []struct {
			InferText       string  `json:"inferText"`
			InferConfidence float64 `json:"inferConfidence"`
		} `json:"fields"`
	} `json:"images"`
}

// Recognize implements domain.Recognizer: it submits the screenshot and
// returns all recognized text fields joined with single spaces.
func (c *Client) Recognize(ctx context.Context, shot domain.Screenshot) (string, error) {
	format := shot.Format
	if format == "" {
		format = "jpg"
	}

	now := time.Now()
	payload, err := json.Marshal(ocrRequest{
		Version:   "V2",
		RequestID: strconv.FormatInt(now.UnixMilli(), 10),
		Timestamp: now.UnixMilli(),
		Images: []ocrImage{{
			Format: format,
			Name:   "health_app_screenshot",
			Data:   base64.StdEncoding.EncodeToString(shot.Data),
		}},
	})
	if err != nil {
		return "", err
	}

	var parsed ocrResponse
	err = retry.Do(ctx, c.retryConfig, func() error {
		return c.call(ctx, payload, &parsed)
	})
	if err != nil {
		return "", err
	}

	if len(parsed.Images) == 0 || len(parsed.Images[0].Fields) == 0 {
		return "", ErrEmptyResult
	}

	fields := parsed.Images[0].Fields
	texts := make([]string, 0, len(fields))
	for _, field := range fields {
		texts = append(texts, field.InferText)
	}

	text := strings.Join(texts, " ")
	c.log.Debug("ocr recognition complete",
		zap.Int("fields", len(fields)),
		zap.Int("text_length", len(text)),
	)
	return text, nil
}

func (c *Client) call(ctx context.Context, payload []byte, out *ocrResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.invokeURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-OCR-SECRET", c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ocr service returned %d: %s", resp.StatusCode, body)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
