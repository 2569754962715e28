package otel

import (
	"testing"

	"github.com/catedral-dev/catedral"
)

func TestResource(t *testing.T) {
	attrs := map[string]string{}
	for _, kv := range Resource().Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	if attrs["service.name"] != "catedral" {
		t.Fatalf("Unexpected service name %q", attrs["service.name"])
	}
	if attrs["service.version"] != catedral.Version {
		t.Fatalf("Unexpected service version %q", attrs["service.version"])
	}
}
