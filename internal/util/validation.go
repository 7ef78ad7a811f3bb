package util

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ValidateURL checks that raw is an absolute http(s) URL with a host and
// without query or fragment, as required for sink and backend addresses.
func ValidateURL(raw string) error {
	if raw == "" {
		return errors.New("url is empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed url: %w", err)
	}

	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("scheme %q is not http or https", u.Scheme)
	case u.Host == "":
		return errors.New("url has no host")
	case u.RawQuery != "" || u.Fragment != "":
		return errors.New("url must not carry a query or fragment")
	}
	return nil
}

// ValidatePositiveDuration rejects zero and negative durations.
func ValidatePositiveDuration(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("must be positive, got %s", d)
	}
	return nil
}

// ValidateNonEmpty rejects blank values of the named setting.
func ValidateNonEmpty(value, name string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is blank", name)
	}
	return nil
}
