package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/atlasbake/pkg/errors"
	"github.com/matzehuels/atlasbake/pkg/manifest"
	"github.com/matzehuels/atlasbake/pkg/pipeline"
	"github.com/matzehuels/atlasbake/pkg/store"
)

// bakeRequest is the body of POST /v1/bakes.
type bakeRequest struct {
	// Manifest is a JSON manifest.
	Manifest json.RawMessage `json:"manifest"`
	// Images maps source names to base64 encoded image files. When set,
	// sources resolve against these images only.
	Images     map[string]string `json:"images,omitempty"`
	Settings   manifest.Settings `json:"settings"`
	LayoutOnly bool              `json:"layout_only,omitempty"`
	Refresh    bool              `json:"refresh,omitempty"`
}

// bakeResponse is a result plus links to its atlases.
type bakeResponse struct {
	*pipeline.Result
	Cached    bool     `json:"cached"`
	AtlasURLs []string `json:"atlas_urls,omitempty"`
}

func newBakeResponse(res *pipeline.Result) bakeResponse {
	out := bakeResponse{Result: res, Cached: res.Cached}
	for _, at := range res.Atlases {
		if at.File != "" {
			out.AtlasURLs = append(out.AtlasURLs, fmt.Sprintf("/v1/bakes/%s/atlases/%d.png", res.ID, at.Index))
		}
	}
	return out
}

func (s *Server) handleCreateBake(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	var req bakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode request"))
		return
	}
	if len(req.Manifest) == 0 {
		s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "manifest is required"))
		return
	}

	root := s.cfg.Root
	if len(req.Images) > 0 {
		dir, err := os.MkdirTemp("", "atlasbake-")
		if err != nil {
			s.writeError(w, r, errors.Wrap(errors.ErrCodeInternal, err, "create work dir"))
			return
		}
		defer os.RemoveAll(dir)
		if err := writeImages(dir, req.Images); err != nil {
			s.writeError(w, r, err)
			return
		}
		root = dir
	}
	if root == "" {
		s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "images are required: this server has no source root"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()
	res, err := s.runner.Execute(ctx, pipeline.Options{
		ManifestData:    req.Manifest,
		ManifestFormat:  manifest.FormatJSON,
		Root:            root,
		Defaults:        s.cfg.Defaults,
		Overrides:       req.Settings,
		LayoutOnly:      req.LayoutOnly,
		Refresh:         req.Refresh,
		RestrictSources: true,
		Logger:          s.cfg.Logger,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Cached {
		status = http.StatusOK
	}
	w.Header().Set("Location", "/v1/bakes/"+res.ID)
	writeJSON(w, status, newBakeResponse(res))
}

// writeImages decodes every inline image into dir.
func writeImages(dir string, images map[string]string) error {
	for name, enc := range images {
		if err := errors.ValidateSourcePath(name); err != nil {
			return err
		}
		data, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "image %s is not valid base64", name)
		}
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "store image %s", name)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "store image %s", name)
		}
	}
	return nil
}

const defaultListLimit = 50

func (s *Server) handleListBakes(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "invalid limit %q", v))
			return
		}
		limit = n
	}
	records, err := s.runner.Store.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeStore, err, "list bakes"))
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	writeJSON(w, http.StatusOK, struct {
		Bakes []store.Record `json:"bakes"`
	}{records})
}

func (s *Server) handleGetBake(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := errors.ValidateBakeID(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.runner.Load(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res.Cached = true
	writeJSON(w, http.StatusOK, newBakeResponse(res))
}

func (s *Server) handleGetAtlas(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := errors.ValidateBakeID(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n < 0 {
		s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "invalid atlas index %q", chi.URLParam(r, "n")))
		return
	}
	data, err := s.runner.Atlas(r.Context(), id, n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=604800, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
