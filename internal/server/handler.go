package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"jobpulse/internal/errors"
	"jobpulse/internal/resume"
	"jobpulse/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// matchHandler accepts a resume upload and returns ranked job matches.
//
// Accepted payloads: multipart form with a "file" part, or a plain-text
// body. Query parameters: limit, min_similarity, include_gap, gap_depth.
func (s *Server) matchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	tracer := otel.Tracer("jobpulse.api")
	ctx, span := tracer.Start(ctx, "api.resume_match")
	defer span.End()

	payload, contentType, err := readResumePayload(r)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "input"))
		writeErrorResponse(w, "Invalid upload", err.Error(), http.StatusBadRequest)
		return
	}

	text, err := s.Extractor.Extract(payload, contentType, s.AppConfig.App.MaxResumePages)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "input"))
		writeErrorResponse(w, "Invalid resume", err.Error(), http.StatusBadRequest)
		return
	}

	input, err := parseMatchParams(r, text)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "input"))
		writeErrorResponse(w, "Invalid parameters", err.Error(), http.StatusBadRequest)
		return
	}

	span.SetAttributes(
		attribute.Int("resume.length", len(text)),
		attribute.Int("limit", input.Limit),
		attribute.Bool("include_gap", input.IncludeGap),
	)

	output, err := s.Analyzer.Analyze(ctx, input)
	if err != nil {
		span.RecordError(err)
		s.Metrics.RecordResumeAnalyzed(ctx, false)
		s.writeAnalyzeError(w, err)
		return
	}

	s.Metrics.RecordResumeAnalyzed(ctx, true)
	span.SetAttributes(
		attribute.Bool("success", true),
		attribute.Int("matches", len(output.Matches)),
	)

	writeJSONResponse(w, http.StatusOK, output)
}

// writeAnalyzeError maps analyzer failures onto the HTTP contract:
// exhaustion is the busy response, malformed input is the caller's fault,
// everything else is internal.
func (s *Server) writeAnalyzeError(w http.ResponseWriter, err error) {
	switch {
	case errors.IsExhausted(err):
		s.Logger.Warn("Analysis rejected: dispatcher exhausted")
		writeErrorResponse(w, "AI analysis busy", resume.BusyMessage, http.StatusTooManyRequests)
	case errors.IsInput(err):
		writeErrorResponse(w, "Invalid input", err.Error(), http.StatusBadRequest)
	default:
		s.Logger.LogError(err, "Resume analysis failed")
		writeErrorResponse(w, "Analysis failed", "Internal error during resume analysis", http.StatusInternalServerError)
	}
}

// readResumePayload pulls the resume bytes out of the request: the "file"
// multipart part when present, the raw body otherwise.
func readResumePayload(r *http.Request) ([]byte, string, error) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", errors.NewInputError("multipart form needs a 'file' part", err)
		}
		defer file.Close()

		payload, err := io.ReadAll(file)
		if err != nil {
			return nil, "", errors.NewInputError("failed to read uploaded file", err)
		}

		// Multipart writers default parts to application/octet-stream; the
		// filename extension is the more honest signal when present.
		partType := header.Header.Get("Content-Type")
		if byName := contentTypeFromName(header.Filename); byName != "" {
			partType = byName
		}
		return payload, partType, nil
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", errors.NewInputError("failed to read request body", err)
	}
	return payload, contentType, nil
}

func contentTypeFromName(name string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(name), ".txt"):
		return "text/plain"
	case strings.HasSuffix(strings.ToLower(name), ".pdf"):
		return "application/pdf"
	default:
		return ""
	}
}

// parseMatchParams reads the query parameters with their documented
// defaults: limit=5, min_similarity=0.3, include_gap=true, gap_depth=3.
func parseMatchParams(r *http.Request, text string) (types.AnalyzeResumeInput, error) {
	input := types.AnalyzeResumeInput{
		ResumeText:    text,
		Limit:         resume.DefaultLimit,
		MinSimilarity: resume.DefaultMinSimilarity,
		IncludeGap:    true,
		GapDepth:      resume.DefaultGapDepth,
	}

	query := r.URL.Query()

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > 100 {
			return input, errors.NewInputError("limit must be an integer in [1, 100]", err)
		}
		input.Limit = limit
	}

	if raw := query.Get("min_similarity"); raw != "" {
		minSim, err := strconv.ParseFloat(raw, 64)
		if err != nil || minSim < 0 || minSim > 1 {
			return input, errors.NewInputError("min_similarity must be a number in [0, 1]", err)
		}
		input.MinSimilarity = minSim
	}

	if raw := query.Get("include_gap"); raw != "" {
		includeGap, err := strconv.ParseBool(raw)
		if err != nil {
			return input, errors.NewInputError("include_gap must be a boolean", err)
		}
		input.IncludeGap = includeGap
	}

	if raw := query.Get("gap_depth"); raw != "" {
		depth, err := strconv.Atoi(raw)
		if err != nil || depth <= 0 {
			return input, errors.NewInputError("gap_depth must be a positive integer", err)
		}
		input.GapDepth = depth
	}

	return input, nil
}
