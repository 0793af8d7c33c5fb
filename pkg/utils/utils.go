// Package utils holds small helpers shared across the engine: model
// output parsing, string sanitation and canonical hashing.
package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ExtractJSON extracts the first JSON object or array embedded in model
// output text, tolerating surrounding prose and markdown code fences,
// and unmarshals it into out.
func ExtractJSON(text string, out any) error {
	raw, err := ExtractJSONString(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("malformed JSON in model output: %w", err)
	}
	return nil
}

// ExtractJSONString returns the substring of text spanning the first
// opening brace or bracket through the last matching closer.
func ExtractJSONString(text string) (string, error) {
	start := -1
	var closer byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' {
			start, closer = i, '}'
			break
		}
		if text[i] == '[' {
			start, closer = i, ']'
			break
		}
	}
	if start < 0 {
		return "", fmt.Errorf("no JSON value found in text")
	}

	end := strings.LastIndexByte(text, closer)
	if end < start {
		return "", fmt.Errorf("unterminated JSON value in text")
	}
	return text[start : end+1], nil
}

// SanitizeRawString drops invalid UTF-8 sequences and control
// characters (except tab, newline and carriage return) from s, and
// truncates it to maxLen when maxLen > 0.
func SanitizeRawString(s string, maxLen int) string {
	s = strings.ToValidUTF8(s, "")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			continue
		}
		if r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	s = b.String()

	if maxLen > 0 && len(s) > maxLen {
		s = truncateValidUTF8(s, maxLen)
	}
	return s
}

// BreakTextAtLength truncates text at maxLength and appends an
// ellipsis marker. A maxLength <= 0 means no truncation.
func BreakTextAtLength(text string, maxLength int) string {
	if maxLength <= 0 || len(text) <= maxLength {
		return text
	}
	return truncateValidUTF8(text, maxLength) + " (...)"
}

func truncateValidUTF8(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// CanonicalJSON marshals v with map keys in sorted order, giving a
// stable byte representation suitable for hashing.
func CanonicalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

// HashJSON returns the hex sha256 digest of v's canonical JSON form.
func HashJSON(v any) (string, error) {
	data, err := CanonicalJSON(v)
	if err != nil {
		return "", fmt.Errorf("hashing value: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Dedent removes the common leading whitespace from every line of s
// and trims surrounding blank lines. Used for inline prompt fragments.
func Dedent(s string) string {
	lines := strings.Split(s, "\n")

	margin := -1
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			continue
		}
		indent := len(line) - len(trimmed)
		if margin < 0 || indent < margin {
			margin = indent
		}
	}
	if margin > 0 {
		for i, line := range lines {
			if len(line) >= margin {
				lines[i] = line[margin:]
			} else {
				lines[i] = strings.TrimLeft(line, " \t")
			}
		}
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}

// PrettyDatetime formats an ISO-8601 timestamp as "YYYY-MM-DD HH:MM"
// for display in interaction transcripts. Unparseable input is
// returned as-is.
func PrettyDatetime(iso string) string {
	if len(iso) >= 16 {
		return strings.Replace(iso[:16], "T", " ", 1)
	}
	return iso
}
