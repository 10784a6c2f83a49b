package postgres

import (
	"encoding/base64"
	"errors"
	"fmt"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Курсор истории — это id сообщения (ULID: лексикографический порядок
// совпадает с хронологическим), наружу отдаётся непрозрачным.

func EncodeCursor(messageID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(messageID))
}

// DecodeCursor возвращает id сообщения; пустой курсор — начало выборки.
func DecodeCursor(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("%w: decode base64: %v", ErrInvalidCursor, err)
	}
	return string(data), nil
}
