package query

import (
	"encoding/base64"
	"encoding/json"

	apperrors "github.com/dfirlabs/timesketch-mcp/internal/errors"
)

// cursorPayload is what a page cursor encodes. Opaque to callers: the
// token is base64 so agents can only hand it back, not edit it.
type cursorPayload struct {
	Offset int `json:"offset"`
}

// EncodeCursor renders a result offset as an opaque page cursor.
func EncodeCursor(offset int) string {
	data, _ := json.Marshal(cursorPayload{Offset: offset})
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor recovers the offset from a page cursor. A cursor that does
// not parse is a caller mistake, reported as a validation failure.
func DecodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, apperrors.New(apperrors.KindValidation, "page_cursor is not a valid cursor", err)
	}
	var payload cursorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, apperrors.New(apperrors.KindValidation, "page_cursor is not a valid cursor", err)
	}
	if payload.Offset < 0 {
		return 0, apperrors.New(apperrors.KindValidation, "page_cursor offset is negative", nil)
	}
	return payload.Offset, nil
}
