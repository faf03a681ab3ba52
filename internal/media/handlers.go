package media

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/clipshare/backend/internal/errors"
)

// Handler serves stored objects over HTTP with single-range support.
type Handler struct {
	client *Client
}

func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

// Serve streams the object named by the {key...} path segment.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) error {
	key := r.PathValue("key")
	if key == "" {
		return apperrors.NotFound("object")
	}

	info, err := h.client.StatObject(r.Context(), key)
	if err != nil {
		if IsNotFound(err) {
			return apperrors.NotFound("object")
		}
		return apperrors.StorageError("failed to stat object").WithCause(err)
	}

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Accept-Ranges", "bytes")
	if info.ETag != "" {
		w.Header().Set("ETag", info.ETag)
	}

	if start, end, ok := parseRange(r.Header.Get("Range"), info.Size); ok {
		body, err := h.client.GetObjectRange(r.Context(), key, start, end)
		if err != nil {
			return apperrors.StorageError("failed to read object range").WithCause(err)
		}
		defer body.Close()

		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, info.Size))
		w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
		w.WriteHeader(http.StatusPartialContent)
		io.Copy(w, body)
		return nil
	}

	body, err := h.client.GetObject(r.Context(), key)
	if err != nil {
		return apperrors.StorageError("failed to read object").WithCause(err)
	}
	defer body.Close()

	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.WriteHeader(http.StatusOK)
	io.Copy(w, body)
	return nil
}

// parseRange handles a single "bytes=start-end" range. Multi-range and
// syntactically invalid headers fall back to a full response.
func parseRange(header string, size int64) (start, end int64, ok bool) {
	if header == "" || size <= 0 {
		return 0, 0, false
	}

	spec, found := strings.CutPrefix(header, "bytes=")
	if !found || strings.Contains(spec, ",") {
		return 0, 0, false
	}

	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, false
	}

	if startStr == "" {
		// Suffix range: last N bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, false
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, true
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, false
	}

	end = size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return 0, 0, false
		}
		if end >= size {
			end = size - 1
		}
	}

	return start, end, true
}
