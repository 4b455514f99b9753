package storage

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/danielkbx/multi-storage/interfaces"
	"golang.org/x/text/encoding/htmlindex"
)

// Decode converts raw content into the requested encoding.
//
// "binary" returns data unchanged, "utf-8" replaces invalid sequences with
// U+FFFD, "hex" and "base64" return the textual representation of data, and
// any other name is looked up as a character set whose text is converted to UTF-8.
func Decode(data []byte, encoding string) ([]byte, error) {
	switch strings.ToLower(encoding) {
	case interfaces.BinaryEncoding:
		return data, nil
	case "", "utf-8", "utf8":
		if utf8.Valid(data) {
			return data, nil
		}
		return []byte(strings.ToValidUTF8(string(data), "�")), nil
	case "hex":
		return []byte(hex.EncodeToString(data)), nil
	case "base64":
		return []byte(base64.StdEncoding.EncodeToString(data)), nil
	}

	enc, err := htmlindex.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrUnsupportedEncoding, encoding)
	}

	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s content: %w", encoding, err)
	}
	return decoded, nil
}
