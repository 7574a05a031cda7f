package parser

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText returns chart text as UTF-8. Most charts are written in
// Shift_JIS, newer ones in UTF-8.
func decodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), nil
	}
	decoded, err := japanese.ShiftJIS.NewDecoder().Bytes(data)
	if nil != err {
		return "", err
	}
	return string(decoded), nil
}
