package speech

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/voiceoverkit/go-voiceover/internal/text"
)

// inputPayload is the canonical envelope hashed into a cache fingerprint.
// Identical narration requests must produce identical bytes, so config
// structs use fixed field order and marshal unset values as null.
type inputPayload struct {
	InputText string `json:"input_text"`
	Service   string `json:"service"`
	Config    any    `json:"config"`
}

// Fingerprint derives the cache key for a narration request: the first 16
// hex characters of the SHA-256 digest of the canonical payload. It returns
// the key together with the payload bytes, which are stored alongside the
// cached clip for inspection.
func Fingerprint(strippedText, service string, config any) (string, []byte, error) {
	payload, err := json.Marshal(inputPayload{
		InputText: strippedText,
		Service:   service,
		Config:    config,
	})
	if err != nil {
		return "", nil, fmt.Errorf("encoding fingerprint payload: %w", err)
	}

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:16], payload, nil
}

// AudioBasename builds the cache file name stem for a clip: a readable slug
// of the narration text followed by the fingerprint. The file extension is
// appended by the caller according to the vendor's output format.
func AudioBasename(strippedText, hash string) string {
	slug := text.Slug(strippedText, 40)
	if slug == "" {
		return hash
	}
	return slug + "-" + hash
}
