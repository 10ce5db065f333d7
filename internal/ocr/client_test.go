package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"example.com/steprelay/internal/domain"
)

func TestRecognizeJoinsFields(t *testing.T) {
	var gotSecret string
	var gotRequest ocrRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get("X-OCR-SECRET")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"images": []map[string]interface{}{{
				"inferResult": "SUCCESS",
				"fields": []map[string]interface{}{
					{"inferText": "오늘", "inferConfidence": 0.99},
					{"inferText": "8,432", "inferConfidence": 0.98},
					{"inferText": "걸음", "inferConfidence": 0.97},
				},
			}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key", zap.NewNop())

	text, err := client.Recognize(context.Background(), domain.Screenshot{Format: "png", Data: []byte("img")})
	require.NoError(t, err)
	require.Equal(t, "오늘 8,432 걸음", text)

	require.Equal(t, "secret-key", gotSecret)
	require.Equal(t, "V2", gotRequest.Version)
	require.Len(t, gotRequest.Images, 1)
	require.Equal(t, "png", gotRequest.Images[0].Format)
	require.NotEmpty(t, gotRequest.Images[0].Data)
}

func TestRecognizeEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"images": []interface{}{}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key", zap.NewNop())

	_, err := client.Recognize(context.Background(), domain.Screenshot{Data: []byte("img")})
	require.ErrorIs(t, err, ErrEmptyResult)
}

func TestRecognizeRetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"images": []map[string]interface{}{{
				"fields": []map[string]interface{}{{"inferText": "912 걸음"}},
			}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key", zap.NewNop())

	text, err := client.Recognize(context.Background(), domain.Screenshot{Data: []byte("img")})
	require.NoError(t, err)
	require.Equal(t, "912 걸음", text)
	require.Equal(t, 3, attempts)
}
