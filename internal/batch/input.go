package batch

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

var (
	ErrNoURLs           = errors.New("no valid URLs found in input")
	ErrMissingURLColumn = errors.New("csv input must have a 'url' column")
)

// ReadURLList parses a .csv file with a url column, or any other file as one
// URL per line. Lines that do not look like URLs are logged and dropped.
func ReadURLList(path string, logger *log.Logger) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file %s: %w", path, err)
	}
	defer f.Close()

	r := skipBOM(f)
	var urls []string
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		urls, err = parseCSV(r, logger)
	} else {
		urls, err = parseLines(r, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("parse input file %s: %w", path, err)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoURLs)
	}
	return urls, nil
}

func parseLines(r io.Reader, logger *log.Logger) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !looksLikeURL(line) {
			warn(logger, "skipping invalid URL", "line", lineNo, "value", line)
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return urls, nil
}

func parseCSV(r io.Reader, logger *log.Logger) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingURLColumn
		}
		return nil, err
	}
	col := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), "url") {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, ErrMissingURLColumn
	}

	var urls []string
	row := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			return nil, err
		}
		if col >= len(record) {
			continue
		}
		value := strings.TrimSpace(record[col])
		if value == "" {
			continue
		}
		if !looksLikeURL(value) {
			warn(logger, "skipping invalid URL", "row", row, "value", value)
			continue
		}
		urls = append(urls, value)
	}
	return urls, nil
}

// skipBOM drops a leading UTF-8 byte order mark, which spreadsheet exports
// commonly prepend.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = br.Discard(3)
	}
	return br
}

func looksLikeURL(s string) bool {
	return strings.HasPrefix(strings.ToLower(s), "http")
}

func warn(logger *log.Logger, msg string, keyvals ...any) {
	if logger != nil {
		logger.Warn(msg, keyvals...)
	}
}
