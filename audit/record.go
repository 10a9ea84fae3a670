package audit

import "time"

// Record is the outcome of one processed call. Created once per request,
// including rejections, then handed to a Sink and never read back by the
// pipeline.
type Record struct {
	Timestamp      time.Time `json:"timestamp"`
	Endpoint       string    `json:"endpoint"`
	Method         string    `json:"method"`
	Status         int       `json:"status_code"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	IsError        bool      `json:"is_error"`
}
