package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/facelocker/server/internal/biometric"
)

const (
	// 128 doubles encode to ~1 KiB; JSON bodies are larger but still small.
	maxVectorBody = 64 << 10
	maxImageBody  = 10 << 20
)

var (
	errUnsupportedMedia = errors.New("unsupported content type")
	errNoExtractor      = errors.New("image uploads are not enabled")
	errBadTolerance     = errors.New("tolerance must be a finite non-negative number")
)

// vectorRequest is the JSON body shared by enroll, verify, identify and
// locker action endpoints.
type vectorRequest struct {
	IdentityID string    `json:"identity_id"`
	Encoding   []float64 `json:"encoding"`
	Tolerance  *float64  `json:"tolerance,omitempty"`
	ImageRef   string    `json:"image_ref,omitempty"`
}

func (v vectorRequest) validate() error {
	if t := v.Tolerance; t != nil && (*t < 0 || math.IsNaN(*t) || math.IsInf(*t, 0)) {
		return fmt.Errorf("%w: got %v", errBadTolerance, *t)
	}
	return nil
}

func (v vectorRequest) tolerance() float64 {
	if v.Tolerance == nil {
		return -1
	}
	return *v.Tolerance
}

func mediaType(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return "application/json"
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return mt
}

// isProtobuf reports whether the body is a binary-encoded feature vector.
func isProtobuf(mt string) bool {
	return mt == "application/x-protobuf" ||
		mt == "application/protobuf" ||
		mt == "application/octet-stream"
}

// readVectorRequest decodes the presented vector from a JSON body, a
// binary vector, or an image passed through the configured extractor.
// For the non-JSON forms identity_id, tolerance and image_ref come from the
// query string.
func (s *Server) readVectorRequest(r *http.Request) (vectorRequest, biometric.FeatureVector, error) {
	mt := mediaType(r)

	if mt == "application/json" {
		var req vectorRequest
		dec := json.NewDecoder(io.LimitReader(r.Body, maxVectorBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return req, nil, fmt.Errorf("%w: invalid JSON body", biometric.ErrBadEncoding)
		}
		if err := req.validate(); err != nil {
			return req, nil, err
		}
		return req, biometric.FeatureVector(req.Encoding), nil
	}

	req, err := queryVectorRequest(r)
	if err != nil {
		return req, nil, err
	}

	switch {
	case isProtobuf(mt):
		body, err := io.ReadAll(io.LimitReader(r.Body, maxVectorBody))
		if err != nil {
			return req, nil, err
		}
		v, err := biometric.DecodeVector(body)
		return req, v, err

	case strings.HasPrefix(mt, "image/"):
		if s.extractor == nil {
			return req, nil, errNoExtractor
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxImageBody))
		if err != nil {
			return req, nil, err
		}
		v, err := s.extractor.Extract(r.Context(), body)
		return req, v, err
	}
	return req, nil, errUnsupportedMedia
}

func queryVectorRequest(r *http.Request) (vectorRequest, error) {
	q := r.URL.Query()
	req := vectorRequest{
		IdentityID: q.Get("identity_id"),
		ImageRef:   q.Get("image_ref"),
	}
	if t := q.Get("tolerance"); t != "" {
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return req, fmt.Errorf("%w: tolerance %q", biometric.ErrBadEncoding, t)
		}
		req.Tolerance = &f
	}
	return req, req.validate()
}

func (s *Server) writeVectorError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errUnsupportedMedia):
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", err.Error())
	case errors.Is(err, errNoExtractor):
		writeError(w, http.StatusUnsupportedMediaType, "no_extractor", err.Error())
	case errors.Is(err, errBadTolerance):
		writeError(w, http.StatusBadRequest, "invalid_tolerance", err.Error())
	default:
		s.writeServiceError(w, r, "read vector", err)
	}
}
