package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ppiankov/cdabench/internal/junit"
)

const maxLine = 1 << 20

// VerifyResult holds the outcome of a hash chain verification.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Lines     int    `json:"lines"`
	Runs      int    `json:"runs"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

func broken(line int, format string, args ...any) VerifyResult {
	return VerifyResult{Error: fmt.Sprintf(format, args...), ErrorLine: line}
}

// Verify reads an audit log and validates the hash chain and every entry's
// status, reporting the first broken line.
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	var (
		lineNum  int
		expected = GenesisHash
		runs     = map[string]bool{}
	)
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return broken(lineNum, "parse error: %v", err)
		}
		if entry.PrevHash != expected {
			if lineNum == 1 {
				return broken(lineNum, "first entry prev_hash is %q, expected genesis hash", entry.PrevHash)
			}
			return broken(lineNum, "hash mismatch: expected %s, got %s", expected, entry.PrevHash)
		}
		if !junit.Status(entry.Status).Valid() {
			return broken(lineNum, "invalid status %q", entry.Status)
		}

		runs[entry.RunID] = true
		expected = HashLine(line)
	}
	if err := scanner.Err(); err != nil {
		return VerifyResult{Error: fmt.Sprintf("scan: %v", err)}
	}

	return VerifyResult{Valid: true, Lines: lineNum, Runs: len(runs)}
}
