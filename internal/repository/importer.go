package repository

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/p-wisp/anti-phishing/internal/config"
	"github.com/p-wisp/anti-phishing/internal/features"
)

// maxLineBytes bounds a single line of a text or hosts feed.
const maxLineBytes = 1 << 20

// Names that show up in every hosts file and must never be listed.
var hostsNoise = map[string]struct{}{
	"localhost":             {},
	"localhost.localdomain": {},
	"local":                 {},
	"broadcasthost":         {},
	"ip6-localhost":         {},
	"ip6-loopback":          {},
	"0.0.0.0":               {},
}

// NormalizeDomain reduces a feed entry (bare domain, URL, or host:port) to a
// lowercase hostname. It returns "" for entries with no usable host.
func NormalizeDomain(entry string) string {
	entry = strings.TrimSpace(entry)
	if entry == "" || strings.ContainsAny(entry, "\t\r\n") {
		return ""
	}
	if !strings.Contains(entry, "://") {
		entry = "//" + entry
	}
	host := strings.TrimSuffix(features.Hostname(entry), ".")
	if host == "" || strings.ContainsAny(host, " \t/\\") {
		return ""
	}
	return host
}

// ParseAndStream parses reader according to src and sends one Entry per
// distinct domain. outChan is closed when parsing ends. A malformed row is
// skipped; a read error or cancellation aborts the feed.
func ParseAndStream(ctx context.Context, reader io.Reader, outChan chan<- Entry, src config.SourceConfig) error {
	defer close(outChan)

	e := &emitter{
		ctx:    ctx,
		out:    outChan,
		action: strings.ToUpper(src.EffectiveAction()),
		source: src.Name,
		limit:  src.Limit,
		seen:   make(map[string]struct{}),
	}

	var err error
	switch src.Format {
	case config.FormatCSV:
		err = parseCSV(reader, e, src)
	case config.FormatText:
		err = parseText(reader, e)
	default:
		err = parseHosts(reader, e)
	}
	if errors.Is(err, errLimitReached) {
		return nil
	}
	return err
}

var errLimitReached = errors.New("source limit reached")

type emitter struct {
	ctx    context.Context
	out    chan<- Entry
	action string
	source string
	limit  int
	seen   map[string]struct{}
}

func (e *emitter) emit(raw string) error {
	domain := NormalizeDomain(raw)
	if domain == "" {
		return nil
	}
	if _, dup := e.seen[domain]; dup {
		return nil
	}
	if e.limit > 0 && len(e.seen) >= e.limit {
		return errLimitReached
	}
	e.seen[domain] = struct{}{}

	select {
	case e.out <- Entry{Domain: domain, Action: e.action, Source: e.source}:
		return nil
	case <-e.ctx.Done():
		return e.ctx.Err()
	}
}

func newLineScanner(reader io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	return scanner
}

// parseHosts reads "0.0.0.0 domain.com [alias...]" lines.
func parseHosts(reader io.Reader, e *emitter) error {
	scanner := newLineScanner(reader)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}

		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		for _, name := range parts[1:] {
			if _, skip := hostsNoise[strings.ToLower(name)]; skip {
				continue
			}
			if err := e.emit(name); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}

// parseText reads one domain or URL per line.
func parseText(reader io.Reader, e *emitter) error {
	scanner := newLineScanner(reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		if err := e.emit(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// parseCSV reads the target column. A numeric target_column selects by index
// on a headerless file; otherwise the first row is a header and the column is
// found by name.
func parseCSV(reader io.Reader, e *emitter, src config.SourceConfig) error {
	csvReader := csv.NewReader(reader)
	csvReader.Comment = '#'
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true
	csvReader.ReuseRecord = true

	targetIndex, byIndex := src.ColumnIndex()
	if !byIndex {
		header, err := csvReader.Read()
		if err != nil {
			return fmt.Errorf("failed to read csv header for %s: %w", src.Name, err)
		}

		targetIndex = -1
		for i, col := range header {
			if strings.EqualFold(strings.TrimSpace(col), strings.TrimSpace(src.TargetColumn)) {
				targetIndex = i
				break
			}
		}
		if targetIndex == -1 {
			return fmt.Errorf("column %q not found in csv for %s", src.TargetColumn, src.Name)
		}
	}

	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				continue
			}
			return err
		}

		if len(record) > targetIndex {
			if err := e.emit(record[targetIndex]); err != nil {
				return err
			}
		}
	}
}
