package target

import (
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ReadInput reads a target list, honouring a UTF-8 or UTF-16 byte order mark.
// Input without a BOM is read as UTF-8.
func ReadInput(r io.Reader) (string, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	b, err := io.ReadAll(transform.NewReader(r, dec))
	if err != nil {
		return "", fmt.Errorf("read targets: %w", err)
	}
	return string(b), nil
}
