package cloudapi

// Meta Cloud API wire types. Every send shares the messaging_product envelope;
// the type-specific payload hangs off the matching field.

type Credentials struct {
	PhoneNumberID     string
	AccessToken       string
	BusinessAccountID string
}

type textPayload struct {
	Body string `json:"body"`
}

type mediaPayload struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type TemplateComponent struct {
	Type       string              `json:"type"`
	Parameters []TemplateParameter `json:"parameters,omitempty"`
}

type TemplateParameter struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type templatePayload struct {
	Name       string              `json:"name"`
	Language   templateLanguage    `json:"language"`
	Components []TemplateComponent `json:"components,omitempty"`
}

type interactiveBody struct {
	Text string `json:"text"`
}

type interactiveReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type interactiveButton struct {
	Type  string           `json:"type"`
	Reply interactiveReply `json:"reply"`
}

type interactiveAction struct {
	Buttons  []interactiveButton  `json:"buttons,omitempty"`
	Button   string               `json:"button,omitempty"`
	Sections []interactiveSection `json:"sections,omitempty"`
}

type interactiveSection struct {
	Title string           `json:"title,omitempty"`
	Rows  []interactiveRow `json:"rows"`
}

type interactiveRow struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type interactivePayload struct {
	Type   string            `json:"type"`
	Body   interactiveBody   `json:"body"`
	Action interactiveAction `json:"action"`
}

type sendRequest struct {
	MessagingProduct string              `json:"messaging_product"`
	RecipientType    string              `json:"recipient_type"`
	To               string              `json:"to"`
	Type             string              `json:"type"`
	Text             *textPayload        `json:"text,omitempty"`
	Image            *mediaPayload       `json:"image,omitempty"`
	Video            *mediaPayload       `json:"video,omitempty"`
	Audio            *mediaPayload       `json:"audio,omitempty"`
	Document         *mediaPayload       `json:"document,omitempty"`
	Template         *templatePayload    `json:"template,omitempty"`
	Interactive      *interactivePayload `json:"interactive,omitempty"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    int    `json:"code,omitempty"`
}

type mediaLookupResponse struct {
	URL      string    `json:"url"`
	MimeType string    `json:"mime_type"`
	Error    *apiError `json:"error,omitempty"`
}

type phoneNumberResponse struct {
	ID                 string    `json:"id"`
	DisplayPhoneNumber string    `json:"display_phone_number"`
	VerifiedName       string    `json:"verified_name"`
	Error              *apiError `json:"error,omitempty"`
}
