package logparse

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"regexp"
	"sort"
	"strings"
)

// Nominal execution time assigned when the ORM dialect gives no timing
// information, and the cap applied to the cached-age proxy. The cached
// formula (min(age*100, 10) ms) is a rough stand-in for latency, kept
// for compatibility with existing reports.
const (
	nominalExecTimeMs = 0.1
	cachedCapMs       = 10.0
)

var (
	generatedInRE = regexp.MustCompile(`generated in (\d+\.\d+)s`)
	cachedSinceRE = regexp.MustCompile(`cached since (\d+\.\d+)s ago`)
)

// Clause keywords that identify a bare continuation fragment.
var continuationClauses = []string{"FROM", "WHERE", "GROUP BY", "HAVING", "ORDER BY", "LIMIT", "JOIN", "UNION"}

const fragmentMarker = "did not match any log pattern:"

// Options controls one parse run.
type Options struct {
	// SourceName is used for transparent gzip detection (.gz suffix)
	// and logging. May be empty.
	SourceName string
	// SampleSize, when positive and smaller than the number of lines,
	// selects a uniform random subset of lines (without replacement)
	// to parse instead of the full stream. Sampled lines keep their
	// original order so multi-line statements can still be
	// reconstructed.
	SampleSize int
	// Rand seeds the sampler; nil uses the process-global source.
	Rand *rand.Rand
}

// Parser turns a log stream into reconstructed Query records. A Parser
// is stateless across runs: every Parse call builds its own parserState,
// so independent parsers (or repeated calls) never share buffers.
type Parser struct {
	log *slog.Logger
}

func NewParser(log *slog.Logger) *Parser {
	if log == nil {
		log = slog.Default()
	}
	return &Parser{log: log}
}

// Parse reads the stream to completion and returns every reconstructed
// Query in emission order plus the run statistics. Per-line faults
// never abort the run; only an unreadable stream is returned as an
// error.
func (p *Parser) Parse(ctx context.Context, r io.Reader, opts Options) (Result, error) {
	if strings.HasSuffix(opts.SourceName, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return Result{}, fmt.Errorf("open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	lines, err := readLines(r)
	if err != nil {
		return Result{}, err
	}
	p.log.Debug("log stream read", "source", opts.SourceName, "lines", len(lines))

	if opts.SampleSize > 0 && opts.SampleSize < len(lines) {
		lines = sampleLines(lines, opts.SampleSize, opts.Rand)
		p.log.Debug("sampled lines", "sample_size", opts.SampleSize)
	}

	run := newRun(p.log)
	for _, line := range lines {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		run.stats.TotalLines++
		run.handleLine(line)
	}
	run.flush()

	return Result{Queries: run.queries, Stats: run.stats}, nil
}

func readLines(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	// Allow long statement lines (up to 1 MiB).
	const maxLine = 1 << 20
	sc.Buffer(make([]byte, 64*1024), maxLine)

	var lines []string
	for sc.Scan() {
		lines = append(lines, strings.ToValidUTF8(sc.Text(), "�"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return lines, nil
}

// sampleLines picks n distinct lines uniformly at random, preserving
// their original order.
func sampleLines(lines []string, n int, rng *rand.Rand) []string {
	var perm []int
	if rng != nil {
		perm = rng.Perm(len(lines))
	} else {
		perm = rand.Perm(len(lines))
	}
	idx := perm[:n]
	sort.Ints(idx)
	out := make([]string, 0, n)
	for _, i := range idx {
		out = append(out, lines[i])
	}
	return out
}
