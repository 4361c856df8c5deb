package models

import "time"

// Represents a logged API request in the ops database
type RequestLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Timestamp      time.Time `gorm:"index" json:"timestamp"`
	TenantID       string    `gorm:"index" json:"tenant_id,omitempty"`
	Plan           string    `json:"plan,omitempty"`
	Method         string    `json:"method"`
	Path           string    `gorm:"index" json:"path"`
	StatusCode     int       `gorm:"index" json:"status_code"`
	ResponseTimeMs int       `json:"response_time_ms"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
}

func (RequestLog) TableName() string {
	return "request_logs"
}
