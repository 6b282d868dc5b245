package types

import (
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/cloudapi"
)

type RequestCreateInstance struct {
	Name              string `json:"name"`
	PhoneNumberID     string `json:"phone_number_id"`
	AccessToken       string `json:"access_token"`
	BusinessAccountID string `json:"business_account_id"`
	RejectCalls       bool   `json:"reject_calls"`
}

type RequestUpdateWebhook struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

type RequestUpdateCredentials struct {
	AccessToken       string `json:"access_token"`
	BusinessAccountID string `json:"business_account_id"`
}

type CampaignMessage struct {
	To        string `json:"to"`
	Body      string `json:"body"`
	MediaURL  string `json:"media_url,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

type RequestCreateCampaign struct {
	Name     string            `json:"name"`
	DelayMs  int               `json:"delay_ms"`
	Messages []CampaignMessage `json:"messages"`
}

type RequestSendText struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type RequestSendMedia struct {
	To        string `json:"to"`
	MediaURL  string `json:"media_url"`
	MediaType string `json:"media_type"`
	Caption   string `json:"caption,omitempty"`
}

type RequestSendTemplate struct {
	To         string                       `json:"to"`
	Name       string                       `json:"name"`
	Language   string                       `json:"language"`
	Components []cloudapi.TemplateComponent `json:"components,omitempty"`
}

type RequestSendInteractive struct {
	To      string   `json:"to"`
	Body    string   `json:"body"`
	Options []string `json:"options"`
}

type RequestMintToken struct {
	UserID string `json:"user_id"`
}
