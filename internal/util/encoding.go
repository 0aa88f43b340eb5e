package util

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

const (
	EncodingUTF8SIG = "utf-8-sig"
	EncodingLatin1  = "latin-1"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode converts raw bytes to a string. utf-8-sig drops a leading BOM and
// rejects invalid UTF-8; latin-1 never fails.
func Decode(raw []byte, encoding string) (string, error) {
	switch encoding {
	case EncodingUTF8SIG:
		if !utf8.Valid(bytes.TrimPrefix(raw, utf8BOM)) {
			return "", errors.New("utf-8-sig: invalid utf-8")
		}
		out, err := unicode.UTF8BOM.NewDecoder().Bytes(raw)
		if err != nil {
			return "", err
		}
		return string(out), nil
	case EncodingLatin1:
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
		if err != nil {
			return "", err
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("unsupported encoding %s", encoding)
	}
}

// DecodeAny tries UTF-8 (with optional BOM) and falls back to Latin-1.
func DecodeAny(raw []byte) (string, string) {
	if text, err := Decode(raw, EncodingUTF8SIG); err == nil {
		return text, EncodingUTF8SIG
	}
	text, _ := Decode(raw, EncodingLatin1)
	return text, EncodingLatin1
}
