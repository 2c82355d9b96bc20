package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/givemetry/importer/internal/change"
	"github.com/givemetry/importer/internal/importer"
	"github.com/givemetry/importer/internal/mapping"
	"github.com/givemetry/importer/internal/match"
	"github.com/givemetry/importer/internal/parser"
	"github.com/givemetry/importer/internal/schema"
)

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// analyzeResponse is the result of file analysis: parsed structure plus a
// suggested field mapping for the client to confirm or adjust.
type analyzeResponse struct {
	Encoding    string              `json:"encoding"`
	Columns     []string            `json:"columns"`
	RowCount    int                 `json:"rowCount"`
	Diagnostics []parser.Diagnostic `json:"diagnostics,omitempty"`
	Suggestion  mapping.Suggestion  `json:"suggestion"`
}

// handleAnalyze parses an uploaded CSV and returns its structure together
// with a suggested column-to-field mapping. Nothing is written.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	kind, err := entityKind(r)
	if err != nil {
		respondError(w, r, http.StatusNotFound, err.Error())
		return
	}

	data, _, err := s.uploadRequest(w, r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	text, encoding, err := parser.Decode(data)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := parser.Parse(text, parser.DefaultOptions())
	if err != nil {
		respondStructural(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, analyzeResponse{
		Encoding:    encoding,
		Columns:     res.Columns,
		RowCount:    len(res.Rows),
		Diagnostics: res.Diagnostics,
		Suggestion:  mapping.SuggestWithConfig(res.Columns, kind, s.mappingConfig()),
	})
}

// handleValidateMapping validates a proposed field mapping without touching
// any data. The validation result is returned with status 200 whether or
// not the mapping is valid; the client reads Valid.
func (s *Server) handleValidateMapping(w http.ResponseWriter, r *http.Request) {
	kind, err := entityKind(r)
	if err != nil {
		respondError(w, r, http.StatusNotFound, err.Error())
		return
	}

	var body struct {
		Mapping mapping.FieldMapping `json:"mapping"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, mapping.Validate(body.Mapping, kind))
}

// handlePreview runs change detection for an upload without writing:
// how many rows would be created, updated, or left unchanged.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	kind, err := entityKind(r)
	if err != nil {
		respondError(w, r, http.StatusNotFound, err.Error())
		return
	}
	tenantID, err := requestTenant(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, fm, ok := s.parsedUpload(w, r, kind)
	if !ok {
		return
	}

	records := make([]schema.Record, 0, len(res.Rows))
	for _, row := range res.Rows {
		records = append(records, mapping.Apply(row.Values, fm))
	}

	det := change.NewDetector(s.changeStore(kind), kind, change.Options{})
	summary, err := det.DetectChanges(r.Context(), tenantID, records)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "change detection failed")
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// handleImport runs a full import of the uploaded file using the confirmed
// field mapping.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	kind, err := entityKind(r)
	if err != nil {
		respondError(w, r, http.StatusNotFound, err.Error())
		return
	}
	tenantID, err := requestTenant(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, fm, ok := s.parsedUpload(w, r, kind)
	if !ok {
		return
	}

	result, err := s.importerFor(kind).Process(r.Context(), tenantID, res.Rows, fm)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "import failed")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleCheckDuplicates checks incoming constituent records against the
// stored ones. A single record runs the full cascade including fuzzy name
// matching; a batch runs natural-key and email checks only.
func (s *Server) handleCheckDuplicates(w http.ResponseWriter, r *http.Request) {
	tenantID, err := requestTenant(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var body struct {
		Record  schema.Record   `json:"record"`
		Records []schema.Record `json:"records"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	m := match.New(s.constituents, match.Config{
		MinScore:      s.cfg.Matching.MinScore,
		MaxCandidates: s.cfg.Matching.MaxCandidates,
	})

	if len(body.Records) > 0 {
		results, err := m.CheckBulk(r.Context(), tenantID, body.Records)
		if err != nil {
			respondError(w, r, http.StatusInternalServerError, "duplicate check failed")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"results": results})
		return
	}

	if len(body.Record) == 0 {
		respondError(w, r, http.StatusBadRequest, "record or records is required")
		return
	}

	result, err := m.Check(r.Context(), tenantID, body.Record)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "duplicate check failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// parsedUpload reads the upload, requires a mapping, validates it, and
// parses the file. On failure it writes the response and returns ok=false.
func (s *Server) parsedUpload(w http.ResponseWriter, r *http.Request, kind schema.EntityKind) (*parser.Result, mapping.FieldMapping, bool) {
	data, fm, err := s.uploadRequest(w, r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return nil, nil, false
	}
	if len(fm) == 0 {
		respondError(w, r, http.StatusBadRequest, "mapping is required")
		return nil, nil, false
	}

	if v := mapping.Validate(fm, kind); !v.Valid {
		respondErrorDetails(w, r, http.StatusUnprocessableEntity, "invalid field mapping", v)
		return nil, nil, false
	}

	text, _, err := parser.Decode(data)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return nil, nil, false
	}

	res, err := parser.Parse(text, parser.DefaultOptions())
	if err != nil {
		respondStructural(w, r, err)
		return nil, nil, false
	}
	return res, fm, true
}

// uploadRequest extracts the CSV payload and optional mapping from a
// request. Multipart requests carry the file in "file" and the mapping as
// a JSON object in "mapping"; otherwise the whole body is the file.
func (s *Server) uploadRequest(w http.ResponseWriter, r *http.Request) ([]byte, mapping.FieldMapping, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadSize)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(s.cfg.Server.MaxUploadSize); err != nil {
			return nil, nil, fmt.Errorf("parse multipart form: %w", err)
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, nil, fmt.Errorf("file field is required: %w", err)
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return nil, nil, fmt.Errorf("read file: %w", err)
		}

		var fm mapping.FieldMapping
		if raw := r.FormValue("mapping"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &fm); err != nil {
				return nil, nil, fmt.Errorf("invalid mapping JSON: %w", err)
			}
		}
		return data, fm, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read request body: %w", err)
	}
	return data, nil, nil
}

// respondStructural maps a parse failure to a response: structural problems
// in the file are client errors, anything else is internal.
func respondStructural(w http.ResponseWriter, r *http.Request, err error) {
	var se *parser.StructuralError
	if errors.As(err, &se) {
		respondError(w, r, http.StatusUnprocessableEntity, se.Message)
		return
	}
	respondError(w, r, http.StatusInternalServerError, "parse failed")
}

// entityKind resolves the {kind} route parameter.
func entityKind(r *http.Request) (schema.EntityKind, error) {
	return schema.ParseEntityKind(chi.URLParam(r, "kind"))
}

// requestTenant extracts the tenant from the X-Tenant-ID header.
func requestTenant(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.Header.Get("X-Tenant-ID"))
	if raw == "" {
		return uuid.Nil, errors.New("X-Tenant-ID header is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid X-Tenant-ID: %w", err)
	}
	return id, nil
}

// mappingConfig builds the mapper thresholds from configuration.
func (s *Server) mappingConfig() mapping.Config {
	return mapping.Config{
		StrongThreshold: s.cfg.Matching.StrongThreshold,
		WeakThreshold:   s.cfg.Matching.WeakThreshold,
	}
}

// importerFor builds the import pipeline for one entity kind.
func (s *Server) importerFor(kind schema.EntityKind) *importer.Importer {
	opts := importer.Options{
		BatchSize:     s.cfg.Import.BatchSize,
		SkipUnchanged: s.cfg.Import.SkipUnchanged,
	}
	switch kind {
	case schema.Gifts:
		return importer.NewGiftImporter(s.gifts, s.constituents, opts)
	case schema.Contacts:
		return importer.NewContactImporter(s.contacts, s.constituents, opts)
	default:
		return importer.NewConstituentImporter(s.constituents, opts)
	}
}

// changeStore returns the change-detection store for one entity kind.
func (s *Server) changeStore(kind schema.EntityKind) change.Store {
	switch kind {
	case schema.Gifts:
		return s.gifts
	case schema.Contacts:
		return s.contacts
	default:
		return s.constituents
	}
}
