// Package client is the HTTP client for the conversion service, used by
// the game service when conversions run out of process. It implements the
// transport's conversion surface and the sandbox source resolver.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
	"github.com/davidvanstory/MultiplayerGame/internal/platform/timeouts"
	"github.com/davidvanstory/MultiplayerGame/internal/services/converter/pipeline"
)

const maxArtifactBytes = 4 << 20

// Config tunes the client.
type Config struct {
	// BaseURL is the conversion service root, e.g. http://converter:8090.
	BaseURL string
	// HTTPClient overrides the transport, mainly for tests. The default
	// client carries the converter request timeout.
	HTTPClient *http.Client
}

// Client talks to a remote conversion service.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// New validates the base URL and returns a client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("base url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("base url %q needs a scheme and host", base)
	}

	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: timeouts.ConverterRequest}
	}
	return &Client{baseURL: base, httpc: httpc}, nil
}

type jobRequest struct {
	RoomID   string `json:"roomId"`
	Document string `json:"document"`
}

// RequestConversion submits a document for conversion.
func (c *Client) RequestConversion(ctx context.Context, roomID string, document []byte) (pipeline.Ticket, error) {
	payload, err := json.Marshal(jobRequest{RoomID: roomID, Document: string(document)})
	if err != nil {
		return pipeline.Ticket{}, fmt.Errorf("encode job request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/jobs", bytes.NewReader(payload))
	if err != nil {
		return pipeline.Ticket{}, fmt.Errorf("build job request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var ticket pipeline.Ticket
	if err := c.do(req, &ticket); err != nil {
		return pipeline.Ticket{}, err
	}
	return ticket, nil
}

// Status reports the conversion state for roomID.
func (c *Client) Status(ctx context.Context, roomID string) (pipeline.Ticket, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/jobs/"+url.PathEscape(roomID), nil)
	if err != nil {
		return pipeline.Ticket{}, fmt.Errorf("build status request: %w", err)
	}

	var ticket pipeline.Ticket
	if err := c.do(req, &ticket); err != nil {
		return pipeline.Ticket{}, err
	}
	return ticket, nil
}

// ValidatorSource fetches validator source by ref, satisfying the sandbox
// resolver contract. Resolution failures surface as VALIDATOR_UNAVAILABLE
// so the runtime can fall back for standard kinds.
func (c *Client) ValidatorSource(ctx context.Context, ref string) (string, error) {
	return c.fetchArtifact(ctx, ref, apperrors.CodeValidatorUnavailable)
}

// Document fetches a published document artifact by ref. Failures surface
// as UPSTREAM_UNAVAILABLE, which the document route passes through as a
// retryable 503.
func (c *Client) Document(ctx context.Context, ref string) (string, error) {
	return c.fetchArtifact(ctx, ref, apperrors.CodeUpstreamUnavailable)
}

func (c *Client) fetchArtifact(ctx context.Context, ref string, code apperrors.Code) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/artifacts/"+url.PathEscape(ref), nil)
	if err != nil {
		return "", apperrors.Wrap(code, "build artifact request", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", apperrors.Wrap(code, "fetch artifact", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.New(code, fmt.Sprintf("artifact request returned status %d", resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactBytes+1))
	if err != nil {
		return "", apperrors.Wrap(code, "read artifact", err)
	}
	if len(body) > maxArtifactBytes {
		return "", apperrors.New(code, "artifact exceeds the size cap")
	}
	return string(body), nil
}

// do executes the request and decodes the service's response envelope,
// reconstructing domain errors so codes survive the hop.
func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeUpstreamUnavailable, "conversion service unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactBytes+1))
	if err != nil {
		return apperrors.Wrap(apperrors.CodeUpstreamUnavailable, "read conversion response", err)
	}

	var envelope struct {
		Success bool            `json:"success"`
		Result  json.RawMessage `json:"result"`
		Error   struct {
			Code    string            `json:"code"`
			Message string            `json:"message"`
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return apperrors.New(apperrors.CodeUpstreamUnavailable,
			fmt.Sprintf("conversion service returned status %d with an unreadable body", resp.StatusCode))
	}

	if !envelope.Success {
		code := apperrors.Code(envelope.Error.Code)
		if code == "" {
			code = apperrors.CodeUpstreamUnavailable
		}
		message := envelope.Error.Message
		if message == "" {
			message = fmt.Sprintf("conversion service returned status %d", resp.StatusCode)
		}
		return apperrors.WithMetadata(code, message, envelope.Error.Details)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return apperrors.Wrap(apperrors.CodeUpstreamUnavailable, "decode conversion result", err)
	}
	return nil
}
