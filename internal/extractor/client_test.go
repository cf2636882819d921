package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/classlens/classlens/internal/embedding"
)

func extractorServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/extract/faces", handler)
	return httptest.NewServer(mux)
}

func TestExtractFaces(t *testing.T) {
	vec := make([]float32, 128)
	vec[0] = 1

	server := extractorServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("request is not multipart: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file field: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model": "legacy-v1",
			"dim":   128,
			"faces": []map[string]any{
				{"embedding": vec, "bbox": []float64{10, 20, 110, 140}, "det_score": 0.98},
			},
		})
	})
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.ExtractFaces(context.Background(), []byte("fake-jpeg"))
	if err != nil {
		t.Fatalf("ExtractFaces returned error: %v", err)
	}

	if result.Version != embedding.LegacyV1 {
		t.Errorf("version = %v, want legacy-v1", result.Version)
	}
	if len(result.Faces) != 1 {
		t.Fatalf("got %d faces, want 1", len(result.Faces))
	}
	face := result.Faces[0]
	if len(face.Vector) != 128 || face.Vector[0] != 1 {
		t.Errorf("unexpected face vector: len=%d", len(face.Vector))
	}
	if face.DetScore != 0.98 {
		t.Errorf("det score = %v, want 0.98", face.DetScore)
	}
}

func TestExtractFacesNoDetections(t *testing.T) {
	server := extractorServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model": "arcface-v4",
			"dim":   512,
			"faces": []map[string]any{},
		})
	})
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.ExtractFaces(context.Background(), []byte("empty-classroom"))
	if err != nil {
		t.Fatalf("zero detections should not be an error, got: %v", err)
	}
	if len(result.Faces) != 0 {
		t.Errorf("got %d faces, want 0", len(result.Faces))
	}
}

func TestExtractFacesServerError(t *testing.T) {
	server := extractorServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	})
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.ExtractFaces(context.Background(), []byte("fake-jpeg"))
	if !errors.Is(err, ErrExtractionFailed) {
		t.Errorf("error = %v, want ErrExtractionFailed", err)
	}
}

func TestExtractFacesUnknownModel(t *testing.T) {
	server := extractorServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"model": "clip-b32", "dim": 768, "faces": []map[string]any{}})
	})
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.ExtractFaces(context.Background(), []byte("fake-jpeg"))
	if !errors.Is(err, ErrExtractionFailed) {
		t.Errorf("error = %v, want ErrExtractionFailed for unknown model", err)
	}
}

func TestExtractFacesDimensionMismatch(t *testing.T) {
	server := extractorServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model": "arcface-v4",
			"dim":   512,
			"faces": []map[string]any{
				{"embedding": []float32{1, 2, 3}, "bbox": []float64{0, 0, 1, 1}},
			},
		})
	})
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.ExtractFaces(context.Background(), []byte("fake-jpeg"))
	if !errors.Is(err, embedding.ErrDimensionMismatch) {
		t.Errorf("error = %v, want ErrDimensionMismatch", err)
	}
}

func TestExtractFacesUnreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")
	_, err := client.ExtractFaces(context.Background(), []byte("fake-jpeg"))
	if !errors.Is(err, ErrExtractionFailed) {
		t.Errorf("error = %v, want ErrExtractionFailed", err)
	}
}
