package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"jobpulse/internal/errors"
	"jobpulse/internal/formatters"
	"jobpulse/internal/resume"
	"jobpulse/internal/types"

	"github.com/spf13/cobra"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match a resume file against enriched jobs once",
	Long: `Run one resume analysis from the command line: extract a professional
profile, embed it, rank stored jobs by similarity, and report skill gaps
for the top matches.

The resume must be a plain-text file; PDF extraction happens upstream of
this tool.`,
	RunE: runMatch,
}

func init() {
	matchCmd.Flags().StringP("resume", "r", "", "Path to the resume text file (required)")
	matchCmd.Flags().IntP("limit", "l", resume.DefaultLimit, "Maximum number of matches")
	matchCmd.Flags().Float64P("min-similarity", "m", resume.DefaultMinSimilarity, "Minimum similarity threshold (0-1)")
	matchCmd.Flags().Bool("include-gap", true, "Include skill gap analysis for top matches")
	matchCmd.Flags().Int("gap-depth", resume.DefaultGapDepth, "Number of top matches to gap-analyze")
	matchCmd.Flags().StringP("format", "f", "", "Output format: json or text (default from config)")

	if err := matchCmd.MarkFlagRequired("resume"); err != nil {
		panic(err)
	}
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	resumePath, _ := cmd.Flags().GetString("resume")
	limit, _ := cmd.Flags().GetInt("limit")
	minSimilarity, _ := cmd.Flags().GetFloat64("min-similarity")
	includeGap, _ := cmd.Flags().GetBool("include-gap")
	gapDepth, _ := cmd.Flags().GetInt("gap-depth")
	format, _ := cmd.Flags().GetString("format")
	if format == "" {
		format = cfg.App.DefaultFormat
	}
	if err := formatters.ValidateFormat(format, cfg.App.SupportedFormats); err != nil {
		return err
	}

	text, err := readResumeFile(resumePath, cfg.App.MaxUploadSize)
	if err != nil {
		return err
	}

	dispatcher, err := buildDispatcher(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = dispatcher.Close() }()

	jobStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer jobStore.Close()

	analyzer := buildAnalyzer(dispatcher, jobStore, cfg, logger)

	output, err := analyzer.Analyze(ctx, types.AnalyzeResumeInput{
		ResumeText:    text,
		Limit:         limit,
		MinSimilarity: minSimilarity,
		IncludeGap:    includeGap,
		GapDepth:      gapDepth,
	})
	if err != nil {
		if errors.IsExhausted(err) {
			return fmt.Errorf("%s", resume.BusyMessage)
		}
		return err
	}

	rendered, err := formatters.FormatAnalysis(output, format)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return nil
}

// readResumeFile loads and bounds a plain-text resume file.
func readResumeFile(path string, maxSize int64) (string, error) {
	cleanPath := filepath.Clean(path)

	info, err := os.Stat(cleanPath)
	if err != nil {
		return "", errors.NewInputError("resume file not readable", err).
			WithContext("path", cleanPath)
	}
	if info.IsDir() {
		return "", errors.NewInputError("resume path is a directory", nil).
			WithContext("path", cleanPath)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return "", errors.NewInputError("resume file too large", nil).
			WithContext("size", info.Size()).
			WithContext("max", maxSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return "", errors.NewInputError("failed to read resume file", err).
			WithContext("path", cleanPath)
	}

	extractor := &resume.PlainTextExtractor{}
	return extractor.Extract(data, "text/plain", 0)
}
