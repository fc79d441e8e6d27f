// Package utils holds the small query and form parsing helpers the HTTP
// handlers share. Nothing here knows about the marketplace domain.
package utils

import (
	"strconv"
	"strings"
)

// Page bounds applied to every list endpoint.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

// Offset is the number of rows before the page.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// Clamp moves the number to >= 1 and the size into [1, MaxPageSize]; a
// size below 1 means "not given" and becomes DefaultPageSize.
func (p Page) Clamp() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	switch {
	case p.Size < 1:
		p.Size = DefaultPageSize
	case p.Size > MaxPageSize:
		p.Size = MaxPageSize
	}
	return p
}

// ParsePage reads raw page and page_size values. Missing or malformed values
// fall back to the first page of DefaultPageSize.
func ParsePage(number, size string) Page {
	return Page{Number: atoiDefault(number, 1), Size: atoiDefault(size, DefaultPageSize)}.Clamp()
}

// TotalPages is ceil(total/size), 0 for an empty list.
func TotalPages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

// OptionalFloat parses a form value that may be left blank, as the
// coordinates of a request location are. Blank gives nil.
func OptionalFloat(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
