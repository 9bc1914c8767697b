// Package deeplink parses goodhang:// URLs delivered by the OS when the
// desktop app is registered as the scheme handler.
package deeplink

import (
	"net/url"
	"strings"

	"github.com/goodhang/authcore/pkg/constants"
	"github.com/goodhang/authcore/pkg/errors"
)

// Activation is a parsed goodhang://activate/<code> link.
type Activation struct {
	Code string
}

// ParseActivation extracts the activation code from a deep link.
// Links with the wrong scheme, host, or shape are rejected so a malformed
// URL handed over by the OS cannot start an activation with garbage input.
func ParseActivation(raw string) (*Activation, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, errors.Validation("deeplink_malformed", "deep link is not a valid URL").WithCause(err)
	}
	if u.Scheme != constants.DeepLinkScheme {
		return nil, errors.Validation("deeplink_scheme", "unrecognized deep link scheme")
	}

	// The OS may hand over goodhang://activate/CODE (host form) or
	// goodhang:///activate/CODE (path form); accept both.
	path := u.Path
	if u.Host != "" {
		path = "/" + u.Host + path
	}
	if !strings.HasPrefix(path, constants.DeepLinkActivatePrefix) {
		return nil, errors.Validation("deeplink_action", "unrecognized deep link action")
	}

	code := strings.Trim(strings.TrimPrefix(path, constants.DeepLinkActivatePrefix), "/")
	if code == "" || strings.Contains(code, "/") {
		return nil, errors.Validation("deeplink_code", "deep link carries no activation code")
	}
	code, err = url.PathUnescape(code)
	if err != nil {
		return nil, errors.Validation("deeplink_code", "activation code is not valid URL encoding").WithCause(err)
	}
	return &Activation{Code: code}, nil
}
