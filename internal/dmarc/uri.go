package dmarc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/emersion/go-message/mail"
)

var (
	ErrInvalidScheme      = errors.New("URI scheme is not 'mailto:'")
	ErrEmptyEmail         = errors.New("email address cannot be empty")
	ErrInvalidPayload     = errors.New("invalid payload, must not contain '!'")
	ErrInvalidPayloadSize = errors.New("invalid payload size, must be numeric")
	ErrInvalidPayloadUnit = errors.New("invalid payload unit, must be one of k, m, g, t")
	ErrInvalidAddress     = errors.New("invalid email address")
)

// URI is a report destination from a rua or ruf tag.
type URI struct {
	Email string
	// Size is the optional maximum report size, e.g. "10m". Empty if the
	// URI had no size limit.
	Size string
}

// ParseURI parses a mailto report URI with an optional "!<size><unit>"
// suffix.
func ParseURI(uri string) (URI, error) {
	body, ok := strings.CutPrefix(uri, "mailto:")
	if !ok {
		return URI{}, ErrInvalidScheme
	}

	email, payload, hasPayload := strings.Cut(body, "!")
	email = strings.TrimSpace(email)
	if email == "" {
		return URI{}, ErrEmptyEmail
	}

	var size string
	if hasPayload {
		payload = strings.TrimSpace(payload)
		if strings.Contains(payload, "!") {
			return URI{}, ErrInvalidPayload
		}
		if len(payload) < 2 {
			return URI{}, fmt.Errorf("%w: %q", ErrInvalidPayloadSize, payload)
		}
		digits := payload[:len(payload)-1]
		n, err := strconv.ParseUint(digits, 10, 64)
		if err != nil {
			return URI{}, fmt.Errorf("%w: %q", ErrInvalidPayloadSize, payload)
		}
		unit := strings.ToLower(payload[len(payload)-1:])
		switch unit {
		case "k", "m", "g", "t":
		default:
			return URI{}, fmt.Errorf("%w: %q", ErrInvalidPayloadUnit, unit)
		}
		size = strconv.FormatUint(n, 10) + unit
	}

	addr, err := mail.ParseAddress(email)
	if err != nil {
		return URI{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return URI{Email: addr.Address, Size: size}, nil
}

// Domain returns the domain part of the address, or an empty string if
// it does not look like a domain name.
func (u URI) Domain() string {
	_, domain, ok := strings.Cut(u.Email, "@")
	if !ok || !strings.Contains(domain, ".") {
		return ""
	}
	return domain
}
