package util

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// WritablePath returns the cleaned WRITABLE_PATH environment variable when it is set.
func WritablePath() string {
	for _, key := range []string{"WRITABLE_PATH", "writable_path"} {
		if value, ok := os.LookupEnv(key); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return filepath.Clean(trimmed)
			}
		}
	}
	return ""
}

// ResolveWritable joins a relative path onto WritablePath; absolute paths are returned cleaned.
func ResolveWritable(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	if base := WritablePath(); base != "" {
		return filepath.Join(base, path)
	}
	return filepath.Clean(path)
}

// HideAPIKey obscures a secret for logging, keeping only a few leading and trailing characters.
func HideAPIKey(apiKey string) string {
	switch n := len(apiKey); {
	case n > 8:
		return apiKey[:4] + "..." + apiKey[n-4:]
	case n > 4:
		return apiKey[:2] + "..." + apiKey[n-2:]
	case n > 2:
		return apiKey[:1] + "..." + apiKey[n-1:]
	default:
		return apiKey
	}
}

// MaskURL returns rawURL with credential-like query parameters and userinfo masked.
func MaskURL(rawURL string) string {
	parsed, errParse := url.Parse(rawURL)
	if errParse != nil {
		return rawURL
	}
	if parsed.User != nil {
		parsed.User = url.User(parsed.User.Username())
	}
	parsed.RawQuery = MaskSensitiveQuery(parsed.RawQuery)
	return parsed.String()
}

// MaskSensitiveQuery masks credential-like parameters within a raw query string.
func MaskSensitiveQuery(raw string) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "&")
	for i, part := range parts {
		keyPart, valuePart, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		decodedKey, errKey := url.QueryUnescape(keyPart)
		if errKey != nil {
			decodedKey = keyPart
		}
		if !isSensitiveParam(decodedKey) {
			continue
		}
		decodedValue, errValue := url.QueryUnescape(valuePart)
		if errValue != nil {
			decodedValue = valuePart
		}
		parts[i] = keyPart + "=" + url.QueryEscape(HideAPIKey(strings.TrimSpace(decodedValue)))
	}
	return strings.Join(parts, "&")
}

func isSensitiveParam(key string) bool {
	key = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(key)), "[]")
	if key == "" {
		return false
	}
	if key == "key" || strings.Contains(key, "api-key") || strings.Contains(key, "apikey") || strings.Contains(key, "api_key") {
		return true
	}
	return strings.Contains(key, "token") || strings.Contains(key, "secret")
}
