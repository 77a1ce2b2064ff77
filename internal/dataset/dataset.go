// Package dataset reads (query, passage) training pairs and writes
// (query, positive, negative) triplets as tab-separated files.
package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// maxLineBytes caps a single input line. Passages are sentence-sized in
// practice; 1MB leaves generous headroom without letting a corrupt file
// exhaust memory.
const maxLineBytes = 1024 * 1024

// Pair is one (query, positive passage) training pair. Immutable once
// parsed.
type Pair struct {
	Query   string
	Passage string
}

// Triplet is one (query, positive, negative) training example.
// The miner guarantees Negative differs from Positive.
type Triplet struct {
	Query    string
	Positive string
	Negative string
}

// ReadStats reports what the parser saw.
type ReadStats struct {
	// Lines is the total number of lines scanned.
	Lines int
	// Skipped is the number of malformed lines dropped.
	Skipped int
	// SkippedLines holds the 1-based line numbers of dropped lines.
	SkippedLines []int
}

// ReadPairs reads tab-separated pairs from path. Malformed lines (not
// exactly two tab-separated fields) are skipped, not fatal; the stats
// record how many and where. Parsing is deterministic: the same file
// always yields the same pair sequence.
func ReadPairs(path string) ([]Pair, *ReadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open pairs file: %w", err)
	}
	defer f.Close()

	pairs, stats, err := ParsePairs(f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read pairs file %s: %w", path, err)
	}
	return pairs, stats, nil
}

// ParsePairs parses tab-separated pairs from r.
func ParsePairs(r io.Reader) ([]Pair, *ReadStats, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var pairs []Pair
	stats := &ReadStats{}

	for scanner.Scan() {
		stats.Lines++
		line := strings.TrimSuffix(scanner.Text(), "\r")

		fields := strings.Split(line, "\t")
		if len(fields) != 2 {
			stats.Skipped++
			stats.SkippedLines = append(stats.SkippedLines, stats.Lines)
			continue
		}

		pairs = append(pairs, Pair{Query: fields[0], Passage: fields[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan failed at line %d: %w", stats.Lines+1, err)
	}

	return pairs, stats, nil
}

// TripletWriter streams triplets to a tab-separated file, one per line,
// in insertion order.
type TripletWriter struct {
	f     *os.File
	w     *bufio.Writer
	count int
}

// OpenTripletWriter creates or truncates the output file.
func OpenTripletWriter(path string) (*TripletWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create triplets file: %w", err)
	}
	return &TripletWriter{f: f, w: bufio.NewWriter(f)}, nil
}

// Write appends one triplet.
func (tw *TripletWriter) Write(t Triplet) error {
	if _, err := tw.w.WriteString(t.Query + "\t" + t.Positive + "\t" + t.Negative + "\n"); err != nil {
		return fmt.Errorf("failed to write triplet: %w", err)
	}
	tw.count++
	return nil
}

// Count returns the number of triplets written so far.
func (tw *TripletWriter) Count() int {
	return tw.count
}

// Close flushes buffered triplets and closes the file.
func (tw *TripletWriter) Close() error {
	if err := tw.w.Flush(); err != nil {
		tw.f.Close()
		return fmt.Errorf("failed to flush triplets: %w", err)
	}
	if err := tw.f.Close(); err != nil {
		return fmt.Errorf("failed to close triplets file: %w", err)
	}
	return nil
}
