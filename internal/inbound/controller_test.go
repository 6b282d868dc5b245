package inbound

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/events"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/cloudapi"
)

func newTestApp(t *testing.T) (*fiber.App, *fakeInboundStore) {
	t.Helper()
	t.Setenv("WEBHOOK_VERIFY_TOKEN", "verify-me")
	t.Setenv("MEDIA_DIR", t.TempDir())

	store := newFakeInboundStore()
	normalizer := NewNormalizer(store, &fakeMedia{}, cloudapi.NewSessionCache(), events.NewBus())
	normalizer.detach = func(fn func()) { fn() }
	ctl := NewController(normalizer)

	app := fiber.New()
	app.Get("/webhook", ctl.Verify)
	app.Post("/webhook", ctl.Ingest)
	return app, store
}

func TestVerifyEchoesChallenge(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest("GET", "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "12345" {
		t.Fatalf("body = %q, want challenge echo", body)
	}
}

func TestVerifyRejectsWrongToken(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest("GET", "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestIngestRejectsUnparseableBody(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestIngestAcksValidPayload(t *testing.T) {
	app, store := newTestApp(t)

	payload := `{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "waba-1",
			"changes": [{
				"field": "messages",
				"value": {
					"metadata": {"phone_number_id": "555000"},
					"contacts": [{"wa_id": "15550001", "profile": {"name": "Alice"}}],
					"messages": [{
						"from": "15550001",
						"id": "wamid.http",
						"timestamp": "1700000000",
						"type": "text",
						"text": {"body": "via http"}
					}]
				}
			}]
		}]
	}`

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"status":"ok"`) {
		t.Fatalf("body = %s", body)
	}

	store.mu.Lock()
	_, persisted := store.inbound["wamid.http"]
	store.mu.Unlock()
	if !persisted {
		t.Fatal("inbound message not persisted")
	}
}
