package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/matzehuels/atlasbake/pkg/cache"
	"github.com/matzehuels/atlasbake/pkg/pipeline"
	"github.com/matzehuels/atlasbake/pkg/store"
)

const sceneJSON = `{
  "settings": {"atlas_size": 64, "margin": 0},
  "items": [
    {"source": "red.png", "point": [0, 0, 0]},
    {"source": "blue.png", "point": [1, 0, 0]}
  ]
}`

func solidPNG(t *testing.T, c color.NRGBA) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "history.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(New(pipeline.NewRunner(c, nil, st, nil), Config{}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postBake(t *testing.T, srv *httptest.Server, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(srv.URL+"/v1/bakes", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func sceneRequest(t *testing.T) map[string]any {
	return map[string]any{
		"manifest": json.RawMessage(sceneJSON),
		"images": map[string]string{
			"red.png":  solidPNG(t, color.NRGBA{R: 255, A: 255}),
			"blue.png": solidPNG(t, color.NRGBA{B: 255, A: 255}),
		},
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestBakeRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	resp := postBake(t, srv, sceneRequest(t))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created bakeResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" || created.Cached {
		t.Fatalf("created = %+v", created)
	}
	if created.Stats.Placed != 2 || len(created.AtlasURLs) != 1 {
		t.Fatalf("placed = %d, urls = %v", created.Stats.Placed, created.AtlasURLs)
	}
	if loc := resp.Header.Get("Location"); loc != "/v1/bakes/"+created.ID {
		t.Errorf("Location = %q", loc)
	}

	again := postBake(t, srv, sceneRequest(t))
	if again.StatusCode != http.StatusOK {
		t.Fatalf("repeat status = %d", again.StatusCode)
	}

	get, err := http.Get(srv.URL + "/v1/bakes/" + created.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer get.Body.Close()
	if get.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", get.StatusCode)
	}

	img, err := http.Get(srv.URL + created.AtlasURLs[0])
	if err != nil {
		t.Fatal(err)
	}
	defer img.Body.Close()
	if img.StatusCode != http.StatusOK {
		t.Fatalf("atlas status = %d", img.StatusCode)
	}
	if ct := img.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if _, err := png.Decode(img.Body); err != nil {
		t.Errorf("atlas is not a png: %v", err)
	}

	list, err := http.Get(srv.URL + "/v1/bakes?limit=10")
	if err != nil {
		t.Fatal(err)
	}
	defer list.Body.Close()
	var history struct {
		Bakes []store.Record `json:"bakes"`
	}
	if err := json.NewDecoder(list.Body).Decode(&history); err != nil {
		t.Fatal(err)
	}
	if len(history.Bakes) == 0 || history.Bakes[0].ID != created.ID {
		t.Errorf("history = %+v, want newest %s", history.Bakes, created.ID)
	}
}

func TestBakeErrors(t *testing.T) {
	srv := newTestServer(t)
	red := solidPNG(t, color.NRGBA{R: 255, A: 255})

	tests := []struct {
		name string
		body any
		want int
	}{
		{"no manifest", map[string]any{"images": map[string]string{"red.png": red}}, http.StatusBadRequest},
		{"no images without root", map[string]any{"manifest": json.RawMessage(sceneJSON)}, http.StatusBadRequest},
		{"escaping image path", map[string]any{
			"manifest": json.RawMessage(sceneJSON),
			"images":   map[string]string{"../red.png": red},
		}, http.StatusBadRequest},
		{"bad base64", map[string]any{
			"manifest": json.RawMessage(sceneJSON),
			"images":   map[string]string{"red.png": "!!"},
		}, http.StatusBadRequest},
		{"invalid manifest", map[string]any{
			"manifest": json.RawMessage(`{"items":[]}`),
			"images":   map[string]string{"red.png": red},
		}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postBake(t, srv, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestGetErrors(t *testing.T) {
	srv := newTestServer(t)
	const missing = "7f1f3c2a-6a8e-4a4c-9f1e-2b6f0d1c9e3a"

	tests := []struct {
		path string
		want int
	}{
		{"/v1/bakes/not-a-uuid", http.StatusBadRequest},
		{"/v1/bakes?limit=-1", http.StatusBadRequest},
		{"/v1/bakes/" + missing, http.StatusNotFound},
		{"/v1/bakes/" + missing + "/atlases/0.png", http.StatusNotFound},
		{"/v1/bakes/" + missing + "/atlases/x.png", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			var body errorResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Error == "" {
				t.Error("empty error code")
			}
		})
	}
}
