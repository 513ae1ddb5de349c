package models

import (
	"errors"
	"testing"
)

func TestPercentage(t *testing.T) {
	tests := []struct {
		name  string
		part  int64
		total int64
		want  float64
	}{
		{"zero total", 5, 0, 0},
		{"half", 1, 2, 50},
		{"third rounds to one decimal", 1, 3, 33.3},
		{"two thirds", 2, 3, 66.7},
		{"all", 7, 7, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Percentage(tt.part, tt.total); got != tt.want {
				t.Errorf("Percentage(%d, %d) = %v; want %v", tt.part, tt.total, got, tt.want)
			}
		})
	}
}

func TestResultValidate(t *testing.T) {
	tests := []struct {
		name    string
		result  Result
		wantErr bool
	}{
		{"valid", Result{URL: "https://example.com", ResponseCode: 200}, false},
		{"missing url", Result{}, true},
		{"relative url", Result{URL: "/login"}, true},
		{"bad code", Result{URL: "http://a.test", ResponseCode: 1200}, true},
		{"network without url", Result{URL: "http://a.test", Network: []NetworkLog{{StatusCode: 200}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidResult) {
				t.Fatalf("expected ErrInvalidResult, got %v", err)
			}
		})
	}
}
