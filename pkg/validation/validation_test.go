package validation

import (
	"strings"
	"testing"
)

func TestValidatePhone(t *testing.T) {
	valid := []string{"628137777", "15550001234", "+628137777"}
	for _, phone := range valid {
		if err := ValidatePhone(phone); err != nil {
			t.Errorf("ValidatePhone(%q) = %v, want nil", phone, err)
		}
	}

	invalid := []string{"", "0812345678", "12345", "62-813-7777", "abc123456"}
	for _, phone := range invalid {
		if err := ValidatePhone(phone); err == nil {
			t.Errorf("ValidatePhone(%q) = nil, want error", phone)
		}
	}
}

func TestValidateMessageBody(t *testing.T) {
	if err := ValidateMessageBody("hello"); err != nil {
		t.Errorf("plain body rejected: %v", err)
	}
	if err := ValidateMessageBody("   "); err == nil {
		t.Error("whitespace-only body accepted")
	}
	if err := ValidateMessageBody(strings.Repeat("a", MaxMessageGraphemes)); err != nil {
		t.Errorf("body at limit rejected: %v", err)
	}
	if err := ValidateMessageBody(strings.Repeat("a", MaxMessageGraphemes+1)); err == nil {
		t.Error("body over limit accepted")
	}
}

func TestValidateMessageBodyCountsGraphemes(t *testing.T) {
	// Each emoji is multiple bytes and runes but a single grapheme.
	body := strings.Repeat("👍🏽", MaxMessageGraphemes)
	if err := ValidateMessageBody(body); err != nil {
		t.Errorf("emoji body at grapheme limit rejected: %v", err)
	}
}

func TestValidateCampaignDelay(t *testing.T) {
	for _, delay := range []int{MinCampaignDelayMs, 1000, MaxCampaignDelayMs} {
		if err := ValidateCampaignDelay(delay); err != nil {
			t.Errorf("ValidateCampaignDelay(%d) = %v, want nil", delay, err)
		}
	}
	for _, delay := range []int{0, MinCampaignDelayMs - 1, MaxCampaignDelayMs + 1} {
		if err := ValidateCampaignDelay(delay); err == nil {
			t.Errorf("ValidateCampaignDelay(%d) = nil, want error", delay)
		}
	}
}

func TestValidateURL(t *testing.T) {
	if err := ValidateURL("https://example.com/image.jpg"); err != nil {
		t.Errorf("valid url rejected: %v", err)
	}
	if err := ValidateURL(""); err == nil {
		t.Error("empty url accepted")
	}
	if err := ValidateURL("not a url"); err == nil {
		t.Error("malformed url accepted")
	}
}
