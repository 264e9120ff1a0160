package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pg-insight/internal/logparse"
	"pg-insight/internal/observability"
	"pg-insight/internal/recommend"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [flags] <log-file>",
	Short: "Analyze a log file and print recommendations",
	Long: `Analyze parses the given log file (plain or .gz), prints the run
statistics, the slow queries, the most frequent query patterns, and the
derived index recommendations.

Output formats: text (default), json, markdown (recommendation report),
sql (runnable CREATE INDEX script).`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().IntP("sample", "s", 0, "parse a uniform random sample of this many lines (0 = all)")
	analyzeCmd.Flags().Float64P("threshold", "t", logparse.DefaultSlowThresholdMs, "slow-query threshold in ms")
	analyzeCmd.Flags().IntP("top", "n", 10, "number of patterns and slow queries to print")
	analyzeCmd.Flags().StringP("output", "o", "text", "output format (text, json, markdown, sql)")

	_ = viper.BindPFlag("sample", analyzeCmd.Flags().Lookup("sample"))
	_ = viper.BindPFlag("threshold", analyzeCmd.Flags().Lookup("threshold"))
	_ = viper.BindPFlag("top", analyzeCmd.Flags().Lookup("top"))
	_ = viper.BindPFlag("output", analyzeCmd.Flags().Lookup("output"))
}

// analysis is the JSON output shape of the analyze command.
type analysis struct {
	Stats           logparse.Stats             `json:"stats"`
	SlowQueries     []logparse.Query           `json:"slow_queries"`
	Patterns        []logparse.PatternGroup    `json:"patterns"`
	Recommendations []recommend.Recommendation `json:"recommendations"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	logLevel := slog.LevelWarn
	if viper.GetBool("debug") {
		logLevel = slog.LevelDebug
	} else if viper.GetBool("verbose") {
		logLevel = slog.LevelInfo
	}
	log := observability.NewLogger(logLevel.String())

	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	parser := logparse.NewParser(log)
	result, err := parser.Parse(context.Background(), f, logparse.Options{
		SourceName: path,
		SampleSize: viper.GetInt("sample"),
	})
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	threshold := viper.GetFloat64("threshold")
	slow := logparse.SlowQueries(result.Queries, threshold)
	patterns := logparse.GroupPatterns(result.Queries)
	recs := recommend.NewRecommender().Analyze(result.Queries)

	top := viper.GetInt("top")
	out := cmd.OutOrStdout()

	switch strings.ToLower(viper.GetString("output")) {
	case "text":
		printText(out, result.Stats, slow, patterns, recs, threshold, top)
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(analysis{
			Stats:           result.Stats,
			SlowQueries:     slow,
			Patterns:        patterns,
			Recommendations: recs,
		})
	case "markdown":
		fmt.Fprintln(out, recommend.MarkdownReport(recs))
	case "sql":
		fmt.Fprintln(out, recommend.SQLScript(recs))
	default:
		return fmt.Errorf("unknown output format: %s", viper.GetString("output"))
	}
	return nil
}

func printText(out io.Writer, stats logparse.Stats, slow []logparse.Query, patterns []logparse.PatternGroup, recs []recommend.Recommendation, threshold float64, top int) {
	fmt.Fprintf(out, "Lines processed:  %d\n", stats.TotalLines)
	fmt.Fprintf(out, "Queries parsed:   %d\n", stats.ParsedQueries)
	fmt.Fprintf(out, "Errors:           %d\n", stats.Errors)
	if !stats.StartTime.IsZero() {
		fmt.Fprintf(out, "Time range:       %s .. %s\n",
			stats.StartTime.Format("2006-01-02 15:04:05"),
			stats.EndTime.Format("2006-01-02 15:04:05"))
	}

	fmt.Fprintf(out, "\nSlow queries (>= %.0f ms): %d\n", threshold, len(slow))
	for i, q := range slow {
		if i >= top {
			fmt.Fprintf(out, "  ... and %d more\n", len(slow)-top)
			break
		}
		fmt.Fprintf(out, "  %8.1f ms  [%s]  %s\n", q.ExecutionTimeMs, q.Database, clip(q.QueryText, 100))
	}

	fmt.Fprintf(out, "\nTop patterns:\n")
	for i, g := range patterns {
		if i >= top {
			break
		}
		fmt.Fprintf(out, "  %5dx  %s\n", len(g.Queries), clip(g.Pattern, 100))
	}

	fmt.Fprintf(out, "\nRecommendations: %d\n", len(recs))
	for _, r := range recs {
		fmt.Fprintf(out, "  [%6.2f] %s\n", r.ImpactScore, r.Title)
		fmt.Fprintf(out, "           %s\n", r.SQLScript)
	}
}

func clip(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
