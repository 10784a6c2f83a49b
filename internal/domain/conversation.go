package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Разделитель не пересекается с int64-идентификаторами,
// поэтому ключ парсится обратно однозначно.
const pairSep = ":"

// ConversationKey — канонический ключ неупорядоченной пары пользователей:
// меньший id всегда слева. Обе стороны и любой replay-путь
// вычисляют один и тот же ключ.
func ConversationKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return strconv.FormatInt(a, 10) + pairSep + strconv.FormatInt(b, 10)
}

// ParseConversationKey — обратная операция к ConversationKey.
func ParseConversationKey(key string) (int64, int64, error) {
	left, right, ok := strings.Cut(key, pairSep)
	if !ok {
		return 0, 0, fmt.Errorf("invalid conversation key %q", key)
	}
	a, err := strconv.ParseInt(left, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid conversation key %q: %w", key, err)
	}
	b, err := strconv.ParseInt(right, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid conversation key %q: %w", key, err)
	}
	if a > b {
		return 0, 0, fmt.Errorf("invalid conversation key %q: not canonical", key)
	}
	return a, b, nil
}
