// Package models holds the types shared by the API server, the results store
// and the CLI.
package models

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"time"
)

// Statistics is the aggregate snapshot served by GET /api/v1/statistics.
type Statistics struct {
	DBSize            int64              `json:"dbsize" yaml:"dbsize"`
	Results           int64              `json:"results" yaml:"results"`
	Headers           int64              `json:"headers" yaml:"headers"`
	NetworkLogs       int64              `json:"networklogs" yaml:"networklogs"`
	ConsoleLogs       int64              `json:"consolelogs" yaml:"consolelogs"`
	ResponseCodeStats []ResponseCodeStat `json:"response_code_stats" yaml:"response_code_stats"`
}

// ResponseCodeStat is one bar of the status code distribution.
type ResponseCodeStat struct {
	Code       int     `json:"code" yaml:"code"`
	Count      int64   `json:"count" yaml:"count"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
}

// Percentage returns part as a share of total, rounded to one decimal.
// A zero total yields zero.
func Percentage(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}

// Result is a single probed URL.
type Result struct {
	ID             int64        `json:"id"`
	URL            string       `json:"url"`
	ProbedAt       time.Time    `json:"probed_at"`
	FinalURL       string       `json:"final_url,omitempty"`
	ResponseCode   int          `json:"response_code"`
	ResponseReason string       `json:"response_reason,omitempty"`
	Protocol       string       `json:"protocol,omitempty"`
	ContentLength  int64        `json:"content_length"`
	Title          string       `json:"title,omitempty"`
	Failed         bool         `json:"failed"`
	FailedReason   string       `json:"failed_reason,omitempty"`
	Filename       string       `json:"filename,omitempty"`
	Headers        []Header     `json:"headers,omitempty"`
	Network        []NetworkLog `json:"network,omitempty"`
	Console        []ConsoleLog `json:"console,omitempty"`
}

// Header is a response header captured for a result.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NetworkLog is one request observed while rendering a result.
type NetworkLog struct {
	RequestType string    `json:"request_type,omitempty"`
	StatusCode  int       `json:"status_code"`
	URL         string    `json:"url"`
	RemoteIP    string    `json:"remote_ip,omitempty"`
	MIMEType    string    `json:"mime_type,omitempty"`
	Time        time.Time `json:"time"`
	Error       string    `json:"error,omitempty"`
}

// ConsoleLog is one browser console message.
type ConsoleLog struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ErrInvalidResult is returned by Validate.
var ErrInvalidResult = errors.New("invalid result")

// Validate checks the fields required before a result can be stored.
func (r *Result) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidResult)
	}
	u, err := url.Parse(r.URL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: url %q is not absolute", ErrInvalidResult, r.URL)
	}
	if r.ResponseCode < 0 || r.ResponseCode > 999 {
		return fmt.Errorf("%w: response code %d out of range", ErrInvalidResult, r.ResponseCode)
	}
	for i, n := range r.Network {
		if n.URL == "" {
			return fmt.Errorf("%w: network log %d has no url", ErrInvalidResult, i)
		}
	}
	return nil
}
