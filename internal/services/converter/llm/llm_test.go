package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestNewOpenAIDefaults(t *testing.T) {
	client := NewOpenAI(OpenAIConfig{APIKey: "sk-1"})
	typed, ok := client.(*openAIClient)
	if !ok {
		t.Fatalf("client type = %T, want *openAIClient", client)
	}
	if typed.cfg.HTTPClient == nil {
		t.Fatal("expected non-nil HTTP client")
	}
	if typed.cfg.ResponsesURL != "https://api.openai.com/v1/responses" {
		t.Fatalf("responses_url = %q", typed.cfg.ResponsesURL)
	}
	if typed.cfg.Model != DefaultModel {
		t.Fatalf("model = %q, want %q", typed.cfg.Model, DefaultModel)
	}
}

func TestGenerateValidation(t *testing.T) {
	client := &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			t.Fatalf("round trip should not execute for validation failure: %v", req.URL)
			return nil, nil
		}),
	}

	missingKey := NewOpenAI(OpenAIConfig{HTTPClient: client})
	if _, err := missingKey.Generate(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for missing api key")
	}

	missingPrompt := NewOpenAI(OpenAIConfig{APIKey: "sk-1", HTTPClient: client})
	if _, err := missingPrompt.Generate(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestGenerateSuccessWithOutputText(t *testing.T) {
	client := NewOpenAI(OpenAIConfig{
		APIKey: "sk-1",
		Model:  "gpt-4o-mini",
		HTTPClient: &http.Client{
			Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
				if req.Header.Get("Authorization") != "Bearer sk-1" {
					t.Fatalf("authorization = %q", req.Header.Get("Authorization"))
				}
				body, err := io.ReadAll(req.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				if !strings.Contains(string(body), "\"model\":\"gpt-4o-mini\"") {
					t.Fatalf("request body = %s", string(body))
				}
				return response(http.StatusOK, `{"output_text":"<html></html>"}`), nil
			}),
		},
	})

	got, err := client.Generate(context.Background(), "convert this")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "<html></html>" {
		t.Fatalf("output = %q", got)
	}
}

func TestGenerateFallsBackToOutputItems(t *testing.T) {
	client := NewOpenAI(OpenAIConfig{
		APIKey: "sk-1",
		HTTPClient: &http.Client{
			Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
				return response(http.StatusOK,
					`{"output":[{"content":[{"type":"output_text","text":"from items"}]}]}`), nil
			}),
		},
	})

	got, err := client.Generate(context.Background(), "convert this")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "from items" {
		t.Fatalf("output = %q", got)
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name      string
		transport roundTripFunc
		wantIn    string
	}{
		{
			name: "round trip failure",
			transport: func(req *http.Request) (*http.Response, error) {
				return nil, errors.New("dial timeout")
			},
			wantIn: "generate request failed",
		},
		{
			name: "non-2xx",
			transport: func(req *http.Request) (*http.Response, error) {
				return response(http.StatusUnauthorized, "bad credential"), nil
			},
			wantIn: "status 401",
		},
		{
			name: "missing output",
			transport: func(req *http.Request) (*http.Response, error) {
				return response(http.StatusOK, `{}`), nil
			},
			wantIn: "missing output text",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			client := NewOpenAI(OpenAIConfig{
				APIKey:     "sk-1",
				HTTPClient: &http.Client{Transport: tt.transport},
			})
			_, err := client.Generate(context.Background(), "convert this")
			if err == nil || !strings.Contains(err.Error(), tt.wantIn) {
				t.Fatalf("error = %v, want %q", err, tt.wantIn)
			}
		})
	}
}

func TestExtractDocument(t *testing.T) {
	doc := "<!DOCTYPE html>\n<html><body><p>hi</p></body></html>"

	got, err := ExtractDocument(doc)
	if err != nil {
		t.Fatalf("plain document: %v", err)
	}
	if got != doc {
		t.Fatalf("document rewritten:\n%s", got)
	}

	fenced := "```html\n" + doc + "\n```"
	got, err = ExtractDocument(fenced)
	if err != nil {
		t.Fatalf("fenced document: %v", err)
	}
	if got != doc {
		t.Fatalf("fence not stripped:\n%s", got)
	}

	prefixed := "Here is the converted game:\n\n" + doc + "\n\nLet me know if you need changes."
	got, err = ExtractDocument(prefixed)
	if err != nil {
		t.Fatalf("prefixed document: %v", err)
	}
	if got != doc {
		t.Fatalf("lead-in prose not trimmed:\n%s", got)
	}
}

func TestExtractDocumentRejectsTruncated(t *testing.T) {
	for _, reply := range []string{
		"",
		"no markup at all",
		"<!DOCTYPE html><html><body><p>cut off mid",
	} {
		if _, err := ExtractDocument(reply); err == nil {
			t.Errorf("reply %q: expected rejection", reply)
		}
	}
}
