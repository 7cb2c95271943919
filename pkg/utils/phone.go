package utils

import (
	"regexp"
	"strings"
)

// phonePattern accepts an optional leading plus followed by 10 to 15 digits.
var phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

// NormalizePhone trims surrounding whitespace.
func NormalizePhone(s string) string { return strings.TrimSpace(s) }

func ValidPhone(s string) bool { return phonePattern.MatchString(s) }
