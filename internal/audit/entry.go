package audit

// Entry is one line in the hash-chained JSONL audit log: the recorded
// outcome of one test case. Plain fields only, so json.Marshal output is
// deterministic and hashing is reproducible.
type Entry struct {
	Timestamp  string `json:"ts"`
	RunID      string `json:"run_id"`
	Target     string `json:"target"`
	Suite      string `json:"suite"`
	Case       string `json:"case"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
	PrevHash   string `json:"prev_hash"`
}
