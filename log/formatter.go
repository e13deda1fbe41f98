package log

import (
	"bytes"
	"math"
	"strconv"
	"unicode/utf8"
)

func appendBeginMarker(buf *bytes.Buffer) {
	buf.WriteByte('{')
}

func appendEndMarker(buf *bytes.Buffer) {
	buf.WriteByte('}')
}

// appendKey writes `"key":`, preceded by a comma unless it opens an object.
func appendKey(buf *bytes.Buffer, key string) {
	if n := buf.Len(); n > 0 && buf.Bytes()[n-1] != '{' {
		buf.WriteByte(',')
	}
	appendString(buf, key)
	buf.WriteByte(':')
}

func appendNil(buf *bytes.Buffer) {
	buf.WriteString("null")
}

func appendBool(buf *bytes.Buffer, val bool) {
	var b [5]byte
	buf.Write(strconv.AppendBool(b[:0], val))
}

func appendInt(buf *bytes.Buffer, val int64) {
	var b [20]byte
	buf.Write(strconv.AppendInt(b[:0], val, 10))
}

func appendUint(buf *bytes.Buffer, val uint64) {
	var b [20]byte
	buf.Write(strconv.AppendUint(b[:0], val, 10))
}

// appendFloat writes val in shortest form; JSON has no NaN or Inf so those
// are written as strings.
func appendFloat(buf *bytes.Buffer, val float64) {
	switch {
	case math.IsNaN(val):
		buf.WriteString(`"NaN"`)
		return
	case math.IsInf(val, 1):
		buf.WriteString(`"+Inf"`)
		return
	case math.IsInf(val, -1):
		buf.WriteString(`"-Inf"`)
		return
	}
	var b [32]byte
	buf.Write(strconv.AppendFloat(b[:0], val, 'f', -1, 64))
}

func appendStrings(buf *bytes.Buffer, vals []string) {
	buf.WriteByte('[')
	for i, v := range vals {
		if i > 0 {
			buf.WriteByte(',')
		}
		appendString(buf, v)
	}
	buf.WriteByte(']')
}

const _hex = "0123456789abcdef"

var _noEscapeTable = [256]bool{}

func init() {
	for i := 0; i <= 0x7e; i++ {
		_noEscapeTable[i] = i >= 0x20 && i != '\\' && i != '"'
	}
}

// appendString writes s as a quoted JSON string. The fast path copies s
// verbatim when nothing needs escaping.
func appendString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if !_noEscapeTable[s[i]] {
			appendStringComplex(buf, s, i)
			buf.WriteByte('"')
			return
		}
	}
	buf.WriteString(s)
	buf.WriteByte('"')
}

// appendStringComplex escapes s starting at the first byte that needs it.
func appendStringComplex(buf *bytes.Buffer, s string, from int) {
	buf.WriteString(s[:from])
	start := from
	for i := from; i < len(s); {
		b := s[i]
		if b >= utf8.RuneSelf {
			r, size := utf8.DecodeRuneInString(s[i:])
			if r == utf8.RuneError && size == 1 {
				buf.WriteString(s[start:i])
				buf.WriteString("\ufffd")
				i++
				start = i
				continue
			}
			i += size
			continue
		}
		if _noEscapeTable[b] {
			i++
			continue
		}

		buf.WriteString(s[start:i])
		switch b {
		case '"', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(b)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			buf.WriteString(`\u00`)
			buf.WriteByte(_hex[b>>4])
			buf.WriteByte(_hex[b&0xF])
		}
		i++
		start = i
	}
	buf.WriteString(s[start:])
}
