package realtime

import (
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"chat-realtime/internal/apperrors"
)

const (
	minGroupNameLength = 3
	maxVoiceSeconds    = 180
	maxMediaFiles      = 10
)

var (
	audioExtensions = []string{".mp3", ".wav", ".ogg", ".m4a", ".aac", ".flac"}
	imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}
)

// ValidIdentity reports whether id is a well-formed identity or entity id.
func ValidIdentity(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && strings.TrimSpace(id) == id
}

func requireID(id, field string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.Validation(field + " is required")
	}
	if !ValidIdentity(id) {
		return apperrors.Validation("Invalid " + field)
	}
	return nil
}

func validateGroupName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if utf8.RuneCountInString(trimmed) < minGroupNameLength {
		return "", apperrors.Validation("Group name must be at least 3 characters")
	}
	return trimmed, nil
}

// validateMediaURL accepts an empty value or an absolute http(s) URL whose
// path ends in one of exts.
func validateMediaURL(raw string, exts []string, field string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}
	u, err := url.Parse(trimmed)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", apperrors.Validation("Invalid " + field)
	}
	ext := strings.ToLower(path.Ext(u.Path))
	for _, allowed := range exts {
		if ext == allowed {
			return trimmed, nil
		}
	}
	return "", apperrors.Validation("Invalid " + field + " format")
}

// dedupeIdentities validates ids and drops duplicates, preserving order.
func dedupeIdentities(ids []string, field string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if !ValidIdentity(id) {
			return nil, apperrors.Validation("Invalid " + field + ": " + raw)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
