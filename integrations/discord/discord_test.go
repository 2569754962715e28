package discord

import "testing"

func TestParseWebhookURL(t *testing.T) {
	id, token, err := ParseWebhookURL("https://discord.com/api/webhooks/123456/abc-DEF_ghi")
	if err != nil || id != "123456" || token != "abc-DEF_ghi" {
		t.Fatalf("Unexpected parse: %q %q %v", id, token, err)
	}
	if _, _, err := ParseWebhookURL("https://discord.com/api/webhooks/123456"); err == nil {
		t.Fatal("URL without token accepted")
	}
	if _, _, err := ParseWebhookURL("https://example.com/hooks/1/2"); err == nil {
		t.Fatal("Non-webhook URL accepted")
	}
}
