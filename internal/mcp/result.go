package mcp

import (
	"encoding/json"
	"strings"
)

// DecodeToolOutput extracts the produced value from a tools/call result.
// Servers with declared output schemas return structuredContent; plain
// servers return a content array of text blocks. A text block holding
// valid JSON is decoded; otherwise the raw string is the value.
// isError reflects the tool-level isError flag, with errMsg carrying
// the concatenated text content in that case.
func DecodeToolOutput(raw json.RawMessage) (value interface{}, isError bool, errMsg string) {
	if len(raw) == 0 {
		return nil, false, ""
	}

	var result toolCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		// Not the standard shape; expose the raw JSON as the value.
		var v interface{}
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, false, ""
		}
		return string(raw), false, ""
	}

	if result.IsError {
		var texts []string
		for _, block := range result.Content {
			if block.Text != "" {
				texts = append(texts, block.Text)
			}
		}
		return nil, true, strings.Join(texts, "\n")
	}

	if len(result.StructuredContent) > 0 {
		var v interface{}
		if err := json.Unmarshal(result.StructuredContent, &v); err == nil {
			return v, false, ""
		}
	}

	var texts []string
	for _, block := range result.Content {
		if block.Type == "" || block.Type == "text" {
			texts = append(texts, block.Text)
		}
	}
	text := strings.Join(texts, "\n")

	var v interface{}
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v, false, ""
	}
	return text, false, ""
}
