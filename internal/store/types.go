package store

import "time"

// UploadRecord captures the result of provisioning one board.
type UploadRecord struct {
	RunID     string    `json:"run_id"`
	Port      string    `json:"port"`
	Position  int       `json:"position"`
	Mode      string    `json:"mode"`
	Channel   int       `json:"channel,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Outcome   string    `json:"outcome"`
	Success   bool      `json:"success"`
	Attempts  int       `json:"attempts"`
	Duration  string    `json:"duration"`
	Detail    string    `json:"detail,omitempty"`
}

// SerialLog tracks a saved boot log.
type SerialLog struct {
	RunID     string    `json:"run_id"`
	Port      string    `json:"port"`
	BaudRate  int       `json:"baud_rate"`
	Timestamp time.Time `json:"timestamp"`
	LogFile   string    `json:"log_file"`
	Lines     int       `json:"lines"`
}
