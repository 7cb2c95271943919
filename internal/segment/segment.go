// Package segment computes how many SMS segments a message costs.
//
// Thresholds follow GSM 03.38 concatenation: a single 7-bit message carries 160
// characters and each concatenated part 153; UCS-2 carries 70 and 67.
package segment

import "unicode/utf16"

type Encoding string

const (
	EncodingASCII   Encoding = "ASCII"
	EncodingUnicode Encoding = "UNICODE"
)

const (
	asciiSingleLimit   = 160
	asciiPartLimit     = 153
	unicodeSingleLimit = 70
	unicodePartLimit   = 67
)

// Result describes a message's encoding class and billed segment count.
// Length is measured in UTF-16 code units, the unit UCS-2 messages are billed
// in; characters outside the Basic Multilingual Plane count twice.
type Result struct {
	Encoding Encoding `json:"encoding"`
	Length   int      `json:"length"`
	Segments int      `json:"segments"`
}

// Calculate classifies msg and returns its segment count. It never returns fewer
// than one segment.
func Calculate(msg string) Result {
	enc := Detect(msg)
	n := Length(msg)
	return Result{Encoding: enc, Length: n, Segments: Count(n, enc)}
}

// Length returns the number of UTF-16 code units in msg.
func Length(msg string) int {
	n := 0
	for _, r := range msg {
		n += utf16.RuneLen(r)
	}
	return n
}

// Detect returns UNICODE if any code point is above 127.
func Detect(msg string) Encoding {
	for _, r := range msg {
		if r > 127 {
			return EncodingUnicode
		}
	}
	return EncodingASCII
}

// Count returns the segments needed for a message of length code units.
func Count(length int, enc Encoding) int {
	single, part := asciiSingleLimit, asciiPartLimit
	if enc == EncodingUnicode {
		single, part = unicodeSingleLimit, unicodePartLimit
	}
	if length <= single {
		return 1
	}
	return (length + part - 1) / part
}

// Total is the billed cost of sending msg to recipients destinations.
func Total(msg string, recipients int) int64 {
	return int64(recipients) * int64(Calculate(msg).Segments)
}
