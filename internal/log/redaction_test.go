package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestRedactingHandler(t *testing.T) {
	tests := []struct {
		name     string
		attrs    []slog.Attr
		expected map[string]string
	}{
		{
			name: "sensitive keys are redacted",
			attrs: []slog.Attr{
				slog.String("password", "secret123"),
				slog.String("client_token", "YIIFdgYGKwYBBQUC"),
				slog.String("principal", "alice@EXAMPLE.COM"), // safe
			},
			expected: map[string]string{
				"password":     redacted,
				"client_token": redacted,
				"principal":    "alice@EXAMPLE.COM",
			},
		},
		{
			name: "case insensitive matching",
			attrs: []slog.Attr{
				slog.String("Authorization", "Negotiate YIIF"),
				slog.String("SET_COOKIE", "NEGOTIATE_ID=x"),
			},
			expected: map[string]string{
				"Authorization": redacted,
				"SET_COOKIE":    redacted,
			},
		},
		{
			name: "descriptive keys are kept",
			attrs: []slog.Attr{
				slog.Int("tokenLen", 1432),
				slog.String("keytab_path", "/etc/http.keytab"),
			},
			expected: map[string]string{
				"keytab_path": "/etc/http.keytab",
			},
		},
		{
			name: "header values are redacted under any key",
			attrs: []slog.Attr{
				slog.String("header", "Negotiate oRQwEqADCgEAoQsGCSqGSIb3EgECAg=="),
				slog.String("challenge", `NTLM TlRMTVNTUAAC, Basic realm="x"`),
				slog.String("scheme", "Negotiate"),
			},
			expected: map[string]string{
				"header":    "Negotiate " + redacted,
				"challenge": `NTLM ` + redacted + `, Basic realm="x"`,
				"scheme":    "Negotiate",
			},
		},
		{
			name: "nested groups are redacted",
			attrs: []slog.Attr{
				slog.Group("client",
					slog.String("password", "hidden"),
					slog.String("user", "visible"),
				),
			},
			expected: map[string]string{
				"client.password": redacted,
				"client.user":     "visible",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(NewRedactingHandler(slog.NewJSONHandler(&buf, nil)))

			args := make([]any, len(tt.attrs))
			for i, a := range tt.attrs {
				args[i] = a
			}
			logger.Info("test message", args...)

			var result map[string]any
			if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
				t.Fatalf("failed to parse log output: %v", err)
			}

			for k, v := range tt.expected {
				var val any = result
				found := false
				parts := strings.Split(k, ".")
				for i, part := range parts {
					m, ok := val.(map[string]any)
					if !ok {
						break
					}
					if val, ok = m[part]; !ok {
						break
					}
					found = i == len(parts)-1
				}
				if !found {
					t.Errorf("key %s not found in output", k)
					continue
				}
				if val != v {
					t.Errorf("key %s: got %v, want %v", k, val, v)
				}
			}
		})
	}
}

func TestRedactingHandler_MessageAndWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewRedactingHandler(slog.NewJSONHandler(&buf, nil))).
		With("authorization", "Negotiate abc")
	logger.Info("received Negotiate YIIabc from client")

	out := buf.String()
	if strings.Contains(out, "YIIabc") || strings.Contains(out, "Negotiate abc") {
		t.Errorf("credential leaked: %s", out)
	}
}
