// Package coord converts between the engine's byte-offset columns and the
// host's character-offset columns, and tracks the absolute line number the
// engine renders as left-gutter text. The engine counts columns in bytes;
// the host counts them in characters. Every conversion walks the actual
// line text — a fixed bytes-per-character multiplier is wrong for any
// non-ASCII line.
package coord

import "unicode/utf8"

// CharToByteCol returns the byte offset of the character at index char in
// line. A char at or past the end of the line maps to len(line).
func CharToByteCol(line string, char int) int {
	if char <= 0 {
		return 0
	}
	b := 0
	for _, r := range line {
		if char == 0 {
			break
		}
		b += utf8.RuneLen(r)
		char--
	}
	return b
}

// ByteToCharCol returns the character index of the byte offset byteCol in
// line. An offset inside a multi-byte character resolves to that
// character's index; an offset at or past the end maps to the character
// count of the line.
func ByteToCharCol(line string, byteCol int) int {
	if byteCol <= 0 {
		return 0
	}
	c := 0
	b := 0
	for _, r := range line {
		n := utf8.RuneLen(r)
		if b+n > byteCol {
			return c
		}
		b += n
		c++
	}
	return c
}
