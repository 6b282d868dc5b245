package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/env"
)

// Max options renderable as reply buttons; beyond that the Cloud API requires
// a list message.
const maxReplyButtons = 3

var ErrMissingCredentials = errors.New("instance credentials are not configured")

// Client is a thin RPC client for the Cloud API message-send contract.
// One Client serves every instance; credentials are passed per call.
type Client struct {
	baseURL    string
	version    string
	httpClient *http.Client

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
	sendRate  rate.Limit
	sendBurst int
}

func NewClient() *Client {
	perMinute := env.GetEnvIntOrDefault("WHATSAPP_SEND_RATE_PER_MINUTE", 60)
	if perMinute <= 0 {
		perMinute = 60
	}

	return &Client{
		baseURL: env.GetEnvStringOrDefault("WHATSAPP_API_BASE_URL", "https://graph.facebook.com"),
		version: env.GetEnvStringOrDefault("WHATSAPP_API_VERSION", "v19.0"),
		httpClient: &http.Client{
			Timeout: env.GetEnvDurationOrDefault("WHATSAPP_API_TIMEOUT", 30*time.Second),
		},
		limiters:  make(map[string]*rate.Limiter),
		sendRate:  rate.Limit(float64(perMinute) / 60.0),
		sendBurst: env.GetEnvIntOrDefault("WHATSAPP_SEND_BURST", 5),
	}
}

// limiter returns the per-phone-number send limiter, a hard ceiling on
// provider calls independent of campaign pacing.
func (c *Client) limiter(phoneNumberID string) *rate.Limiter {
	c.limiterMu.Lock()
	defer c.limiterMu.Unlock()
	l, ok := c.limiters[phoneNumberID]
	if !ok {
		l = rate.NewLimiter(c.sendRate, c.sendBurst)
		c.limiters[phoneNumberID] = l
	}
	return l
}

func (c *Client) SendText(ctx context.Context, creds Credentials, to string, body string) (string, error) {
	return c.send(ctx, creds, sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &textPayload{Body: body},
	})
}

// SendMedia sends media by link. kind is one of image, video, audio, document;
// anything else falls back to document.
func (c *Client) SendMedia(ctx context.Context, creds Credentials, to string, mediaURL string, kind string, caption string) (string, error) {
	req := sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
	}
	payload := &mediaPayload{Link: mediaURL, Caption: caption}
	switch kind {
	case "image":
		req.Type, req.Image = "image", payload
	case "video":
		req.Type, req.Video = "video", payload
	case "audio":
		payload.Caption = ""
		req.Type, req.Audio = "audio", payload
	default:
		req.Type, req.Document = "document", payload
	}
	return c.send(ctx, creds, req)
}

func (c *Client) SendTemplate(ctx context.Context, creds Credentials, to string, name string, language string, components []TemplateComponent) (string, error) {
	return c.send(ctx, creds, sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "template",
		Template: &templatePayload{
			Name:       name,
			Language:   templateLanguage{Code: language},
			Components: components,
		},
	})
}

// SendInteractive picks the payload shape from the option count: up to three
// options render as reply buttons, more become a list message.
func (c *Client) SendInteractive(ctx context.Context, creds Credentials, to string, body string, options []string) (string, error) {
	if len(options) == 0 {
		return "", errors.New("interactive message requires at least one option")
	}

	interactive := &interactivePayload{Body: interactiveBody{Text: body}}
	if len(options) <= maxReplyButtons {
		interactive.Type = "button"
		for i, option := range options {
			interactive.Action.Buttons = append(interactive.Action.Buttons, interactiveButton{
				Type:  "reply",
				Reply: interactiveReply{ID: "option_" + strconv.Itoa(i+1), Title: option},
			})
		}
	} else {
		interactive.Type = "list"
		section := interactiveSection{}
		for i, option := range options {
			section.Rows = append(section.Rows, interactiveRow{
				ID:    "option_" + strconv.Itoa(i+1),
				Title: option,
			})
		}
		interactive.Action.Button = "Select"
		interactive.Action.Sections = []interactiveSection{section}
	}

	return c.send(ctx, creds, sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive:      interactive,
	})
}

func (c *Client) send(ctx context.Context, creds Credentials, payload sendRequest) (string, error) {
	if creds.PhoneNumberID == "" || creds.AccessToken == "" {
		return "", ErrMissingCredentials
	}

	if err := c.limiter(creds.PhoneNumberID).Wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.version, creds.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil && err != io.EOF {
		return "", fmt.Errorf("cloud api returned unreadable response: %w", err)
	}

	if parsed.Error != nil {
		return "", errors.New(parsed.Error.Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("cloud api returned HTTP %d", resp.StatusCode)
	}
	if len(parsed.Messages) == 0 {
		return "", errors.New("cloud api accepted the request but returned no message id")
	}

	return parsed.Messages[0].ID, nil
}

// DownloadMedia resolves the short-lived media URL for mediaID and fetches the
// content. Returns bytes and the reported mime type.
func (c *Client) DownloadMedia(ctx context.Context, creds Credentials, mediaID string) ([]byte, string, error) {
	if creds.AccessToken == "" {
		return nil, "", ErrMissingCredentials
	}

	lookupURL := fmt.Sprintf("%s/%s/%s", c.baseURL, c.version, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	var lookup mediaLookupResponse
	err = json.NewDecoder(resp.Body).Decode(&lookup)
	resp.Body.Close()
	if err != nil {
		return nil, "", err
	}
	if lookup.Error != nil {
		return nil, "", errors.New(lookup.Error.Message)
	}
	if lookup.URL == "" {
		return nil, "", errors.New("media lookup returned no url")
	}

	fetchReq, err := http.NewRequestWithContext(ctx, http.MethodGet, lookup.URL, nil)
	if err != nil {
		return nil, "", err
	}
	fetchReq.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	fetchResp, err := c.httpClient.Do(fetchReq)
	if err != nil {
		return nil, "", err
	}
	defer fetchResp.Body.Close()

	if fetchResp.StatusCode < 200 || fetchResp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("media fetch returned HTTP %d", fetchResp.StatusCode)
	}

	content, err := io.ReadAll(fetchResp.Body)
	if err != nil {
		return nil, "", err
	}
	return content, lookup.MimeType, nil
}

// VerifyConnection checks that the credentials can read their own phone number
// resource. A nil error means the instance is connected.
func (c *Client) VerifyConnection(ctx context.Context, creds Credentials) error {
	if creds.PhoneNumberID == "" || creds.AccessToken == "" {
		return ErrMissingCredentials
	}

	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, c.version, creds.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var parsed phoneNumberResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil && err != io.EOF {
		return err
	}
	if parsed.Error != nil {
		return errors.New(parsed.Error.Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("cloud api returned HTTP %d", resp.StatusCode)
	}
	return nil
}
