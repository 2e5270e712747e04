package twin

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Page selects a slice of the twins ordered by id
type Page struct {
	// After is the id of the last twin of the previous page. Empty for the first page.
	After string
	// Limit is the maximum number of twins. Zero means no limit.
	Limit int
}

// Cursor points behind the last twin of a page
type Cursor struct {
	ID string
}

const cursorVersion = "v1"

// Encode encodes the cursor to an opaque url-safe string
func (c Cursor) Encode() string {
	return base64.URLEncoding.EncodeToString([]byte(cursorVersion + "." + c.ID))
}

// DecodeCursor decodes a string returned by Cursor.Encode
func DecodeCursor(encoded string) (Cursor, error) {
	decoded, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor format: %v", err)
	}
	version, id, ok := strings.Cut(string(decoded), ".")
	if !ok || version != cursorVersion || id == "" {
		return Cursor{}, fmt.Errorf("invalid cursor format: %s", encoded)
	}
	return Cursor{ID: id}, nil
}
