package validation

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/rivo/uniseg"
)

const (
	// Cloud API hard limit on a text message body.
	MaxMessageGraphemes = 4096

	MinCampaignDelayMs = 500
	MaxCampaignDelayMs = 60000
)

var (
	phonePattern = regexp.MustCompile(`^[1-9][0-9]{5,15}$`)
)

// ValidatePhone ensures international format (no leading 0, digits only, length 6-16).
func ValidatePhone(phone string) error {
	trimmed := strings.TrimSpace(phone)
	if trimmed == "" {
		return errors.New("phone number cannot be empty")
	}
	if strings.HasPrefix(trimmed, "+") {
		trimmed = trimmed[1:]
	}
	if strings.HasPrefix(trimmed, "0") {
		return errors.New("phone number must be in international format without leading 0")
	}
	if !phonePattern.MatchString(trimmed) {
		return errors.New("phone number must be digits only and at least 6 characters")
	}
	return nil
}

// ValidateURL ensures a non-empty valid URL when provided.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("url cannot be empty")
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		return errors.New("url must be valid")
	}
	return nil
}

// ValidateMessageBody counts graphemes, not bytes, so emoji-heavy bodies
// are measured the way WhatsApp measures them.
func ValidateMessageBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return errors.New("message body cannot be empty")
	}
	if uniseg.GraphemeClusterCount(body) > MaxMessageGraphemes {
		return fmt.Errorf("message body exceeds %d characters", MaxMessageGraphemes)
	}
	return nil
}

// ValidateCampaignDelay bounds the inter-message pacing delay.
func ValidateCampaignDelay(delayMs int) error {
	if delayMs < MinCampaignDelayMs || delayMs > MaxCampaignDelayMs {
		return fmt.Errorf("delay must be between %d and %d milliseconds", MinCampaignDelayMs, MaxCampaignDelayMs)
	}
	return nil
}
