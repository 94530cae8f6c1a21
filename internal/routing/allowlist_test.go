package routing

import "testing"

func TestParseAllowlistYAML(t *testing.T) {
	doc := []byte(`
version: 1
entrypoints:
  server:
    routes:
      - path: /healthz
        methods: [GET]
        route_class: ops
      - path: /{lang}/api/sectors
        methods: [GET]
        route_class: public_api
`)
	a, err := ParseAllowlistYAML(doc)
	if err != nil {
		t.Fatalf("ParseAllowlistYAML: %v", err)
	}
	ep, ok := a.Entrypoints["server"]
	if !ok {
		t.Fatal("missing server entrypoint")
	}
	if len(ep.Routes) != 2 {
		t.Fatalf("routes = %d, want 2", len(ep.Routes))
	}
	if ep.Routes[1].RouteClass != "public_api" {
		t.Fatalf("route_class = %q", ep.Routes[1].RouteClass)
	}
}

func TestParseAllowlistYAMLRejectsBadVersion(t *testing.T) {
	if _, err := ParseAllowlistYAML([]byte("version: 2\nentrypoints: {}\n")); err == nil {
		t.Fatal("expected version error")
	}
}

func TestParseAllowlistYAMLRejectsMissingEntrypoints(t *testing.T) {
	if _, err := ParseAllowlistYAML([]byte("version: 1\n")); err == nil {
		t.Fatal("expected entrypoints error")
	}
}

func TestParseAllowlistYAMLRejectsGarbage(t *testing.T) {
	if _, err := ParseAllowlistYAML([]byte("{not yaml")); err == nil {
		t.Fatal("expected parse error")
	}
}
