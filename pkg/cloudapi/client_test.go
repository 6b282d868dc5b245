package cloudapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("WHATSAPP_API_BASE_URL", srv.URL)
	return NewClient()
}

func testCreds() Credentials {
	return Credentials{PhoneNumberID: "555000", AccessToken: "secret-token"}
}

func TestSendTextPostsEnvelope(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"messages": []map[string]string{{"id": "wamid.123"}},
		})
	}))

	id, err := client.SendText(context.Background(), testCreds(), "15550001", "hello")
	if err != nil {
		t.Fatalf("SendText returned error: %v", err)
	}
	if id != "wamid.123" {
		t.Errorf("message id = %q, want wamid.123", id)
	}
	if gotPath != "/v19.0/555000/messages" {
		t.Errorf("request path = %q", gotPath)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotBody["messaging_product"] != "whatsapp" {
		t.Errorf("messaging_product = %v", gotBody["messaging_product"])
	}
	if gotBody["type"] != "text" || gotBody["to"] != "15550001" {
		t.Errorf("envelope = %v", gotBody)
	}
}

func TestSendSurfacesAPIError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"message": "Invalid OAuth access token", "code": 190},
		})
	}))

	_, err := client.SendText(context.Background(), testCreds(), "15550001", "hello")
	if err == nil || err.Error() != "Invalid OAuth access token" {
		t.Fatalf("error = %v, want provider message", err)
	}
}

func TestSendRejectsMissingCredentials(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the provider")
	}))

	_, err := client.SendText(context.Background(), Credentials{}, "15550001", "hello")
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("error = %v, want ErrMissingCredentials", err)
	}
}

func TestSendInteractiveUsesButtonsForFewOptions(t *testing.T) {
	var gotBody map[string]interface{}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"messages": []map[string]string{{"id": "wamid.btn"}},
		})
	}))

	_, err := client.SendInteractive(context.Background(), testCreds(), "15550001", "pick one", []string{"Yes", "No"})
	if err != nil {
		t.Fatalf("SendInteractive returned error: %v", err)
	}

	interactive := gotBody["interactive"].(map[string]interface{})
	if interactive["type"] != "button" {
		t.Fatalf("interactive type = %v, want button", interactive["type"])
	}
	action := interactive["action"].(map[string]interface{})
	buttons := action["buttons"].([]interface{})
	if len(buttons) != 2 {
		t.Fatalf("buttons = %d, want 2", len(buttons))
	}
	first := buttons[0].(map[string]interface{})["reply"].(map[string]interface{})
	if first["id"] != "option_1" || first["title"] != "Yes" {
		t.Errorf("first button = %v", first)
	}
}

func TestSendInteractiveUsesListForManyOptions(t *testing.T) {
	var gotBody map[string]interface{}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"messages": []map[string]string{{"id": "wamid.list"}},
		})
	}))

	options := []string{"One", "Two", "Three", "Four", "Five"}
	_, err := client.SendInteractive(context.Background(), testCreds(), "15550001", "pick one", options)
	if err != nil {
		t.Fatalf("SendInteractive returned error: %v", err)
	}

	interactive := gotBody["interactive"].(map[string]interface{})
	if interactive["type"] != "list" {
		t.Fatalf("interactive type = %v, want list", interactive["type"])
	}
	action := interactive["action"].(map[string]interface{})
	sections := action["sections"].([]interface{})
	rows := sections[0].(map[string]interface{})["rows"].([]interface{})
	if len(rows) != len(options) {
		t.Fatalf("rows = %d, want %d", len(rows), len(options))
	}
}

func TestSendInteractiveRejectsNoOptions(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	if _, err := client.SendInteractive(context.Background(), testCreds(), "15550001", "pick", nil); err == nil {
		t.Fatal("expected error for empty options")
	}
}

func TestVerifyConnection(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v19.0/555000" {
			t.Errorf("verify path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "555000", "display_phone_number": "+1 555 000",
		})
	}))

	if err := client.VerifyConnection(context.Background(), testCreds()); err != nil {
		t.Fatalf("VerifyConnection returned error: %v", err)
	}
}

func TestVerifyConnectionFailsOnAPIError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"message": "Unsupported request"},
		})
	}))

	if err := client.VerifyConnection(context.Background(), testCreds()); err == nil {
		t.Fatal("expected error for rejected credentials")
	}
}

func TestDownloadMediaFollowsLookupURL(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/v19.0/media-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret-token" {
			t.Errorf("lookup auth = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"url": srv.URL + "/content", "mime_type": "image/jpeg", "id": "media-1",
		})
	})
	mux.HandleFunc("/content", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "jpegbytes")
	})

	srv = httptest.NewServer(mux)
	defer srv.Close()
	t.Setenv("WHATSAPP_API_BASE_URL", srv.URL)
	client := NewClient()

	content, mimeType, err := client.DownloadMedia(context.Background(), testCreds(), "media-1")
	if err != nil {
		t.Fatalf("DownloadMedia returned error: %v", err)
	}
	if string(content) != "jpegbytes" {
		t.Errorf("content = %q", content)
	}
	if mimeType != "image/jpeg" {
		t.Errorf("mime type = %q", mimeType)
	}
}
