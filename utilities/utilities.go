package utilities

import (
	"bytes"
	"crypto/rand"
	"encoding/base32"
	"io"
	"strings"
	"time"
	"unicode/utf8"
)

var inviteEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

func DBMultiValuePlaceholders(n int) string {
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(strings.TrimSuffix(strings.Repeat("?,", n), ","))
	b.WriteString(")")
	return b.String()
}

// GenerateRandomToken returns a random lowercase base32 token of the given length.
func GenerateRandomToken(length int) (string, error) {
	if length <= 0 {
		length = 16
	}

	randBytes := make([]byte, length)
	_, err := rand.Read(randBytes)
	if err != nil {
		return "", err
	}

	token := inviteEncoding.EncodeToString(randBytes)[:length]

	return strings.ToLower(token), nil
}

func ContainsString(slice []string, str string) bool {
	for _, s := range slice {
		if s == str {
			return true
		}
	}
	return false
}

func SliceToMap(sl []string) map[string]bool {
	m := make(map[string]bool)

	for _, each := range sl {
		m[each] = true
	}

	return m
}

// RemoveString returns slice without any occurrence of str.
func RemoveString(slice []string, str string) []string {
	out := make([]string, 0, len(slice))
	for _, s := range slice {
		if s != str {
			out = append(out, s)
		}
	}
	return out
}

// UniqueStrings drops duplicates and empty values, keeping first-seen order.
func UniqueStrings(slice []string) []string {
	seen := make(map[string]bool, len(slice))
	out := make([]string, 0, len(slice))
	for _, s := range slice {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// RuneLen counts characters, not bytes.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

func TimeNow() time.Time {
	return time.Now().UTC()
}

// Template is satisfied by both text/template and html/template.
type Template interface {
	Execute(w io.Writer, data any) error
}

func TemplateRendering(tmpl Template, data any) (*bytes.Buffer, error) {
	body := new(bytes.Buffer)

	err := tmpl.Execute(body, data)
	if err != nil {
		return body, err
	}
	return body, err
}
