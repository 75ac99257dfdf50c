package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ragbot/ragbot-go/internal/logging"
)

// handleDocuments handles POST /api/documents. It accepts a multipart form
// with one or more PDF files under the "files" field, indexes each one, and
// persists the store. Files are processed independently: one bad PDF does
// not fail the rest, and the response reports the outcome per file.
func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.ingestor == nil {
		writeError(w, http.StatusNotImplemented, "document_processing", "document ingestion is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid multipart upload")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "no files uploaded (use the \"files\" field)")
		return
	}

	resp := uploadResponse{}
	failures := 0
	start := time.Now()

	for _, fh := range headers {
		result := uploadFileResult{Name: fh.Filename}

		f, err := fh.Open()
		if err != nil {
			result.Error = "could not open uploaded file"
			failures++
			resp.Files = append(resp.Files, result)
			continue
		}

		n, err := s.ingestor.IngestReader(r.Context(), fh.Filename, f, fh.Size)
		_ = f.Close()
		if err != nil {
			log.Warn("document ingestion failed",
				slog.String("file", fh.Filename),
				slog.Any("error", err),
			)
			result.Error = err.Error()
			failures++
		} else {
			result.Chunks = n
			resp.TotalChunks += n
			s.metrics.documentsIngestedTotal.Inc()
			s.metrics.chunksIndexedTotal.Add(float64(n))
		}
		resp.Files = append(resp.Files, result)
	}

	if failures == len(headers) {
		log.Error("all uploaded documents failed to process", slog.Int("files", failures))
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	// At least one file was indexed: persist the store and make sure the
	// session can answer from it.
	if s.cfg.PersistStore != nil {
		if err := s.cfg.PersistStore(); err != nil {
			log.Error("failed to persist vector store", slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, "document_processing", "documents were indexed but could not be saved")
			return
		}
	}
	if s.cfg.VectorStore != nil && !s.session.StoreReady() {
		s.session.AttachStore(s.cfg.VectorStore)
	}
	resp.StoreChunks = s.session.ChunkCount()

	log.Info("documents ingested",
		slog.Int("files", len(headers)-failures),
		slog.Int("failed", failures),
		slog.Int("chunks", resp.TotalChunks),
		slog.Duration("duration", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, resp)
}
