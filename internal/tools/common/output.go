package common

import (
	"encoding/json"
	"io"
)

// CIResult is the single JSON document a tool prints in --ci mode.
type CIResult struct {
	OK      bool     `json:"ok"`
	Title   string   `json:"title"`
	Details []string `json:"details,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func NewCIResult(title string, details []string, err error) CIResult {
	result := CIResult{OK: err == nil, Title: title, Details: details}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

func (r CIResult) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
