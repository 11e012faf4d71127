package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const cursorSeparator = ","
const timeFormat = time.RFC3339Nano // Use nano for precision

// Cursor is the position of the last item of a page in (collected_at, id) order.
type Cursor struct {
	CollectedAt time.Time
	ID          int64
}

// Encode returns the opaque form of the cursor.
func (c Cursor) Encode() string {
	key := fmt.Sprintf("%s%s%d", c.CollectedAt.UTC().Format(timeFormat), cursorSeparator, c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// Decode parses an opaque cursor string.
func Decode(encoded string) (Cursor, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	ts, idStr, ok := strings.Cut(string(decoded), cursorSeparator)
	if !ok {
		return Cursor{}, fmt.Errorf("invalid cursor format")
	}

	collectedAt, err := time.Parse(timeFormat, ts)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid timestamp in cursor: %w", err)
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id < 0 {
		return Cursor{}, fmt.Errorf("invalid id in cursor: %q", idStr)
	}

	return Cursor{CollectedAt: collectedAt.UTC(), ID: id}, nil
}
