package store

import (
	"encoding/json"
	"fmt"
)

func encodeAttachments(atts []Attachment) (string, error) {
	if len(atts) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(atts)
	if err != nil {
		return "", fmt.Errorf("encode attachments: %w", err)
	}
	return string(b), nil
}

func decodeAttachments(raw string) ([]Attachment, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var atts []Attachment
	if err := json.Unmarshal([]byte(raw), &atts); err != nil {
		return nil, fmt.Errorf("decode attachments: %w", err)
	}
	return atts, nil
}
