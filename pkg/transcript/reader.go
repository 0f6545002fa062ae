// Package transcript parses Claude Code session transcripts: append-only
// JSONL files where each line records one conversation event. The package
// reads through an afero filesystem so local and remote-mounted transcript
// roots are interchangeable.
package transcript

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/afero"
)

// ErrNotFound marks a transcript file that does not exist. Callers that
// tolerate missing transcripts (subagents still running, pruned logs) should
// test with errors.Is rather than matching message text.
var ErrNotFound = errors.New("transcript not found")

// Record is one decoded JSONL line. Fields mirror the on-disk shape, which is
// externally defined and occasionally malformed; everything is optional.
type Record struct {
	Type             string          `json:"type"`
	UUID             string          `json:"uuid,omitempty"`
	ParentUUID       *string         `json:"parentUuid,omitempty"`
	SessionID        string          `json:"sessionId,omitempty"`
	AgentID          string          `json:"agentId,omitempty"`
	Timestamp        string          `json:"timestamp,omitempty"`
	IsSidechain      bool            `json:"isSidechain,omitempty"`
	IsMeta           bool            `json:"isMeta,omitempty"`
	IsCompactSummary bool            `json:"isCompactSummary,omitempty"`
	Summary          string          `json:"summary,omitempty"`
	LeafUUID         string          `json:"leafUuid,omitempty"`
	Message          json.RawMessage `json:"message,omitempty"`
	ToolUseResult    json.RawMessage `json:"toolUseResult,omitempty"`
	CWD              string          `json:"cwd,omitempty"`
	GitBranch        string          `json:"gitBranch,omitempty"`
	Version          string          `json:"version,omitempty"`
}

const (
	scannerInitialBuffer = 64 * 1024
	scannerMaxBuffer     = 10 * 1024 * 1024
)

// ReadRecords reads a transcript file line by line, decoding each line
// independently. Lines that fail to decode are skipped and counted, not
// fatal: agent logs are append-only and can be truncated mid-write.
// A missing file returns an error satisfying errors.Is(err, ErrNotFound).
func ReadRecords(fsys afero.Fs, path string, log *slog.Logger) (records []Record, skipped int, err error) {
	if log == nil {
		log = slog.Default()
	}

	file, ferr := fsys.Open(path)
	if ferr != nil {
		if os.IsNotExist(ferr) {
			return nil, 0, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, 0, fmt.Errorf("failed to open transcript: %w", ferr)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close transcript: %w", cerr)
		}
	}()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, scannerInitialBuffer), scannerMaxBuffer)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec Record
		if uerr := json.Unmarshal(line, &rec); uerr != nil {
			skipped++
			log.Debug("skipping malformed transcript line",
				"path", path, "line", lineNum, "error", uerr)
			continue
		}
		records = append(records, rec)
	}

	if serr := scanner.Err(); serr != nil {
		return nil, skipped, fmt.Errorf("error reading transcript: %w", serr)
	}

	return records, skipped, nil
}
