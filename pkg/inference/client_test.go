package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/menta2k/plastic-detector/pkg/types"
)

func newBackend(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func TestDetectUploadsMultipart(t *testing.T) {
	payload := []byte{0xff, 0xd8, 0xff, 0xd9}

	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != PredictPath {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}

		file, header, err := r.FormFile(UploadField)
		if err != nil {
			t.Errorf("Missing upload field: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()

		if header.Filename != UploadFilename {
			t.Errorf("Expected filename %s, got %s", UploadFilename, header.Filename)
		}
		if ct := header.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("Expected part content type image/jpeg, got %s", ct)
		}
		body, _ := io.ReadAll(file)
		if string(body) != string(payload) {
			t.Errorf("Uploaded bytes differ")
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"message":"Found 1 plastic item(s)","detections":[` +
			`{"class_name":"PETE","class_id":2,"confidence":0.87,"bounding_box":{"x1":10,"y1":10,"x2":100,"y2":100,"width":90,"height":90}}],` +
			`"image_size":{"width":640,"height":480}}`))
	})

	resp, err := c.Detect(context.Background(), types.Blob{MIME: "image/jpeg", Data: payload})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if !resp.Success || len(resp.Detections) != 1 {
		t.Fatalf("Unexpected response: %+v", resp)
	}

	det := resp.Detections[0]
	if det.ClassName != "PETE" || det.Confidence != 0.87 {
		t.Errorf("Unexpected detection: %+v", det)
	}
	if det.BoundingBox.X1 != 10 || det.BoundingBox.Y2 != 100 {
		t.Errorf("Unexpected box: %+v", det.BoundingBox)
	}
	if resp.ImageSize == nil || resp.ImageSize.Width != 640 {
		t.Errorf("Unexpected image size: %+v", resp.ImageSize)
	}
}

func TestDetectPropagatesAPIError(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Model not loaded. Check server logs."})
	})

	_, err := c.Detect(context.Background(), types.Blob{MIME: "image/jpeg", Data: []byte{1}})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != 500 || !apiErr.IsServerError() {
		t.Errorf("Unexpected status %d", apiErr.StatusCode)
	}
	if apiErr.Message != "Model not loaded. Check server logs." {
		t.Errorf("Unexpected message %q", apiErr.Message)
	}
}

func TestDetectLogsRejectedUploadAsWarning(t *testing.T) {
	for _, tt := range []struct {
		status int
		level  logrus.Level
	}{
		{http.StatusUnprocessableEntity, logrus.WarnLevel},
		{http.StatusBadGateway, logrus.ErrorLevel},
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		logger, hook := test.NewNullLogger()

		_, err := NewClient(srv.URL, WithLogger(logger)).Detect(context.Background(), types.Blob{Data: []byte{1}})
		srv.Close()

		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.IsBadRequest() != (tt.status == http.StatusUnprocessableEntity) {
			t.Errorf("Status %d: unexpected error %v", tt.status, err)
		}
		if entry := hook.LastEntry(); entry == nil || entry.Level != tt.level {
			t.Errorf("Status %d: expected a %s entry, got %+v", tt.status, tt.level, entry)
		}
	}
}

func TestDetectInvalidBody(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>proxy error</html>"))
	})

	_, err := c.Detect(context.Background(), types.Blob{Data: []byte{1}})
	if !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("Expected ErrInvalidResponse, got %v", err)
	}
}

func TestDetectTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Detect(context.Background(), types.Blob{Data: []byte{1}})
	if err == nil {
		t.Fatal("Expected transport error")
	}
}

func TestCheckHealth(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != HealthPath {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","model_loaded":true,"model_path":"models/best.pt"}`))
	})

	status := c.CheckHealth(context.Background())
	if status == nil {
		t.Fatal("Expected health status")
	}
	if !status.ModelLoaded || status.Status != "healthy" {
		t.Errorf("Unexpected status: %+v", status)
	}
}

func TestCheckHealthFailuresReturnNil(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if status := c.CheckHealth(context.Background()); status != nil {
		t.Errorf("Expected nil on non-2xx, got %+v", status)
	}

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	if status := NewClient(url).CheckHealth(context.Background()); status != nil {
		t.Errorf("Expected nil on network error, got %+v", status)
	}
}

func TestNewClientDefaults(t *testing.T) {
	if got := NewClient("").BaseURL(); got != DefaultBaseURL {
		t.Errorf("Expected %s, got %s", DefaultBaseURL, got)
	}
	if got := NewClient("http://example.test:8000/").BaseURL(); got != "http://example.test:8000" {
		t.Errorf("Expected trailing slash trimmed, got %s", got)
	}
}
