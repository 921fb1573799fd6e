package store

import "time"

// UploadRecord captures the result of an upload attempt.
type UploadRecord struct {
	Board      string    `json:"board"`
	Port       string    `json:"port"`
	Artifact   string    `json:"artifact"`
	Uploader   string    `json:"uploader"`
	Programmer string    `json:"programmer,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Success    bool      `json:"success"`
	Duration   string    `json:"duration"`
	Size       int64     `json:"size,omitempty"`
	MaxSize    int64     `json:"max_size,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// SerialLog tracks a serial logging session.
type SerialLog struct {
	Port      string    `json:"port"`
	BaudRate  int       `json:"baud_rate,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	LogFile   string    `json:"log_file"`
}
