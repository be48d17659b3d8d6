// Package variant maps a source image locator to size-specific locators.
//
// The transformation itself belongs to the hosting application (an image CDN,
// a resizing proxy, a storage naming scheme); the engine only calls a Resolver
// and treats it as a pure function.
package variant

import (
	"fmt"
	"net/url"
	"strconv"
)

// SizeClass is a coarse size bucket for a derived image.
type SizeClass int

const (
	Thumbnail SizeClass = iota
	Small
	Medium
	Large
)

// All lists every size class in ascending order.
var All = []SizeClass{Thumbnail, Small, Medium, Large}

func (s SizeClass) String() string {
	switch s {
	case Thumbnail:
		return "thumbnail"
	case Small:
		return "small"
	case Medium:
		return "medium"
	case Large:
		return "large"
	default:
		return fmt.Sprintf("size(%d)", int(s))
	}
}

// MarshalText renders the size class name (JSON keys and values).
func (s SizeClass) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Parse converts a size class name back into a SizeClass.
func Parse(s string) (SizeClass, error) {
	for _, c := range All {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("variant: unknown size class %q", s)
}

// Resolver derives the locator of a size variant. It must be pure: no network
// activity and the same output for the same input.
type Resolver func(source string, size SizeClass) string

// Identity returns the source locator for every size class.
func Identity(source string, _ SizeClass) string { return source }

// DefaultWidths are the pixel widths used by QueryParam when none are given.
var DefaultWidths = map[SizeClass]int{
	Thumbnail: 150,
	Small:     320,
	Medium:    640,
	Large:     1280,
}

// QueryParam returns a Resolver that sets a width query parameter (e.g. "w")
// on the source URL. Locators that do not parse as URLs are returned as is.
func QueryParam(param string, widths map[SizeClass]int) Resolver {
	if param == "" {
		param = "w"
	}
	if len(widths) == 0 {
		widths = DefaultWidths
	}
	return func(source string, size SizeClass) string {
		w, ok := widths[size]
		if !ok {
			return source
		}
		u, err := url.Parse(source)
		if err != nil || u.Host == "" {
			return source
		}
		q := u.Query()
		q.Set(param, strconv.Itoa(w))
		u.RawQuery = q.Encode()
		return u.String()
	}
}

// ResolveAll computes the locator for every size class.
func ResolveAll(r Resolver, source string) map[SizeClass]string {
	out := make(map[SizeClass]string, len(All))
	for _, c := range All {
		out[c] = r(source, c)
	}
	return out
}
