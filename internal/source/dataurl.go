// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package source

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const dataURLScheme = "data:"

// ErrMalformedDataURL is returned for data: URLs that cannot be parsed.
var ErrMalformedDataURL = errors.New("malformed data URL")

// IsDataURL reports whether ref uses the data: scheme.
func IsDataURL(ref string) bool {
	return strings.HasPrefix(ref, dataURLScheme)
}

// ParseDataURL splits a data: URL into its media type and payload.
// Both base64 and percent-encoded payloads are accepted.
func ParseDataURL(ref string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(ref, dataURLScheme)
	if !ok {
		return "", nil, fmt.Errorf("%w: missing %q prefix", ErrMalformedDataURL, dataURLScheme)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing ',' separator", ErrMalformedDataURL)
	}

	isBase64 := false
	if m, found := strings.CutSuffix(meta, ";base64"); found {
		meta = m
		isBase64 = true
	}
	mediaType := meta
	if mediaType == "" {
		mediaType = "text/plain;charset=US-ASCII"
	}

	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %w", ErrMalformedDataURL, err)
		}
		return mediaType, data, nil
	}

	unescaped, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrMalformedDataURL, err)
	}
	return mediaType, []byte(unescaped), nil
}

// EncodeDataURL builds a base64 data: URL.
func EncodeDataURL(mediaType string, data []byte) string {
	return dataURLScheme + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
