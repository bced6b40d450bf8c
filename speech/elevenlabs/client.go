package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/voiceoverkit/go-voiceover/speech"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	apiKeyHeader   = "xi-api-key"
)

// client is a minimal REST client for the two ElevenLabs endpoints the
// adapter needs: GET /v1/voices and POST /v1/text-to-speech/{voice_id}.
type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type apiVoice struct {
	VoiceID     string            `json:"voice_id"`
	Name        string            `json:"name"`
	Category    string            `json:"category"`
	Description string            `json:"description"`
	Labels      map[string]string `json:"labels"`
}

type voicesResponse struct {
	Voices []apiVoice `json:"voices"`
}

func (c *client) voices(ctx context.Context) ([]apiVoice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("building voices request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, speech.NewVendorError(ServiceName, "voices", 0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, vendorErrorFromResponse("voices", resp)
	}

	var out voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, speech.NewVendorError(ServiceName, "voices", 0, "decoding voice list", err)
	}
	return out.Voices, nil
}

// ttsRequest is the JSON body of a text-to-speech call. Unset optionals are
// omitted from the wire; the vendor then applies its own defaults.
type ttsRequest struct {
	Text                           string         `json:"text"`
	ModelID                        string         `json:"model_id"`
	LanguageCode                   *string        `json:"language_code,omitempty"`
	VoiceSettings                  *VoiceSettings `json:"voice_settings,omitempty"`
	Seed                           *int           `json:"seed,omitempty"`
	PreviousText                   *string        `json:"previous_text,omitempty"`
	NextText                       *string        `json:"next_text,omitempty"`
	PreviousRequestIDs             []string       `json:"previous_request_ids,omitempty"`
	NextRequestIDs                 []string       `json:"next_request_ids,omitempty"`
	ApplyTextNormalization         *string        `json:"apply_text_normalization,omitempty"`
	ApplyLanguageTextNormalization *bool          `json:"apply_language_text_normalization,omitempty"`
}

func (c *client) textToSpeech(ctx context.Context, voiceID string, query url.Values, body ttsRequest) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding synthesis request: %w", err)
	}

	u := c.baseURL + "/v1/text-to-speech/" + url.PathEscape(voiceID)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, speech.NewVendorError(ServiceName, "synthesize", 0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, vendorErrorFromResponse("synthesize", resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, speech.NewVendorError(ServiceName, "synthesize", 0, "reading audio stream", err)
	}
	return data, nil
}

// vendorErrorFromResponse turns a non-2xx response into a VendorError,
// pulling the message out of the vendor's error body when it has one.
func vendorErrorFromResponse(op string, resp *http.Response) *speech.VendorError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	msg := parseAPIError(body)
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = resp.Status
	}
	return speech.NewVendorError(ServiceName, op, resp.StatusCode, msg, nil)
}

// parseAPIError extracts the message from an ElevenLabs error body. The API
// wraps failures as {"detail": {"status": ..., "message": ...}} or, for some
// endpoints, {"detail": "..."}.
func parseAPIError(body []byte) string {
	var wrapper struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil || len(wrapper.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(wrapper.Detail, &s); err == nil {
		return s
	}

	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(wrapper.Detail, &obj); err == nil {
		return obj.Message
	}
	return ""
}
