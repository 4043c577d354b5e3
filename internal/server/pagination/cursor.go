package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
)

// Items paginate on their monotonically increasing row id, so the cursor
// is just that id, opaque to clients.

// EncodeCursor creates an opaque cursor string from the last item's id.
func EncodeCursor(id int64) string {
	return base64.URLEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

// DecodeCursor parses an opaque cursor string back into an item id.
func DecodeCursor(encodedCursor string) (int64, error) {
	decoded, err := base64.URLEncoding.DecodeString(encodedCursor)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	id, err := strconv.ParseInt(string(decoded), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id in cursor: %w", err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid id in cursor: %d", id)
	}

	return id, nil
}
