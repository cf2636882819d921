package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/classlens/classlens/internal/config"
	"github.com/classlens/classlens/internal/embedding"
	"github.com/classlens/classlens/internal/extractor"
)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Recognition: config.RecognitionConfig{
			MaxFaces: 50,
			Versions: map[string]config.VersionDefaults{
				string(embedding.LegacyV1):  {Dim: 128, Threshold: 0.55},
				string(embedding.ArcFaceV4): {Dim: 512, Threshold: 0.6},
			},
		},
	}
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// basisVec returns a unit vector of the given dimension with a single 1.0
// component. Distinct components are orthogonal, identical ones match exactly.
func basisVec(dim, component int) []float32 {
	v := make([]float32, dim)
	v[component%dim] = 1.0
	return v
}

// mockExtractorServer serves a fixed extraction result for any uploaded image
func mockExtractorServer(t *testing.T, model string, faces ...[]float32) *httptest.Server {
	t.Helper()

	type wireFace struct {
		Embedding []float32 `json:"embedding"`
		BBox      []float64 `json:"bbox"`
		DetScore  float64   `json:"det_score"`
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dim := 0
		wireFaces := make([]wireFace, 0, len(faces))
		for _, f := range faces {
			dim = len(f)
			wireFaces = append(wireFaces, wireFace{
				Embedding: f,
				BBox:      []float64{10, 10, 110, 110},
				DetScore:  0.98,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model": model,
			"dim":   dim,
			"faces": wireFaces,
		})
	}))
}

// failingExtractorServer always responds with an internal error
func failingExtractorServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
}

// extractorClient creates an extractor client connected to a mock server
func extractorClient(server *httptest.Server) *extractor.Client {
	return extractor.NewClient(server.URL)
}

// multipartPhotoRequest builds a multipart request with a dummy photo file
// and optional extra form fields
func multipartPhotoRequest(t *testing.T, method, path string, fields map[string]string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("photo", "class.jpg")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	part.Write([]byte("not-a-real-jpeg"))

	for key, value := range fields {
		writer.WriteField(key, value)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// jsonRequest builds a request with a JSON body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
