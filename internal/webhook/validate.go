package webhook

import (
	"errors"
	"net/url"
	"strings"
)

const (
	// Host is the only accepted webhook host.
	Host = "hooks.slack.com"

	pathPrefix = "/services/"
)

// ErrInvalidDestination is matched by every ValidationError.
var ErrInvalidDestination = errors.New("invalid webhook destination")

// ValidationError explains why a destination URL was rejected.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid webhook destination: " + e.Reason
}

// Is lets errors.Is match ErrInvalidDestination.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidDestination
}

// Validate trims raw and checks it is an https incoming-webhook URL. It
// returns the trimmed URL.
func Validate(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", &ValidationError{Reason: "URL is empty"}
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", &ValidationError{Reason: "URL cannot be parsed"}
	}

	if u.Scheme != "https" {
		return "", &ValidationError{Reason: "URL must use https"}
	}
	if u.User != nil {
		return "", &ValidationError{Reason: "URL must not contain credentials"}
	}
	if u.Host != Host {
		return "", &ValidationError{Reason: "host must be " + Host}
	}
	if !strings.HasPrefix(u.Path, pathPrefix) || strings.Trim(strings.TrimPrefix(u.Path, pathPrefix), "/") == "" {
		return "", &ValidationError{Reason: "path must start with " + pathPrefix + " followed by the webhook key"}
	}

	return trimmed, nil
}
