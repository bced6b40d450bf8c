package config

import (
	"fmt"
	"strings"
)

const (
	ServiceElevenLabs = "elevenlabs"
	ServiceAzure      = "azure"
	ServiceOpenAI     = "openai"
	ServiceEdge       = "edge"
	ServiceTencent    = "tencent"
	ServiceLocal      = "local"
)

// KnownServices lists the canonical service names.
func KnownServices() []string {
	return []string{
		ServiceElevenLabs,
		ServiceAzure,
		ServiceOpenAI,
		ServiceEdge,
		ServiceTencent,
		ServiceLocal,
	}
}

// NormalizeService maps a raw service name to its canonical form. An empty
// name resolves to elevenlabs.
func NormalizeService(raw string) (string, error) {
	service := strings.ToLower(strings.TrimSpace(raw))
	if service == "" {
		service = ServiceElevenLabs
	}
	switch service {
	case ServiceElevenLabs, ServiceAzure, ServiceOpenAI, ServiceEdge, ServiceTencent, ServiceLocal:
		return service, nil
	case "eleven", "11labs":
		return ServiceElevenLabs, nil
	case "edge-tts":
		return ServiceEdge, nil
	default:
		return "", fmt.Errorf(
			"invalid service %q (expected %s)",
			raw,
			strings.Join(KnownServices(), "|"),
		)
	}
}
