package azure

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// voiceLocale derives the xml:lang attribute from a neural voice name such
// as "en-US-AriaNeural". Unrecognized names fall back to en-US.
func voiceLocale(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) >= 2 && parts[0] != "" && parts[1] != "" {
		return parts[0] + "-" + parts[1]
	}
	return "en-US"
}

func escapeXML(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// buildSSML renders the SSML document for one synthesis request. Style wraps
// the text in mstts:express-as, rate and pitch in a prosody element.
func buildSSML(text string, cfg *Config) string {
	var b strings.Builder

	fmt.Fprintf(&b,
		`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xmlns:mstts="https://www.w3.org/2001/mstts" xml:lang="%s">`,
		voiceLocale(cfg.Voice))
	fmt.Fprintf(&b, `<voice name="%s">`, escapeXML(cfg.Voice))

	if cfg.Style != nil {
		b.WriteString(`<mstts:express-as style="` + escapeXML(*cfg.Style) + `"`)
		if cfg.StyleDegree != nil {
			fmt.Fprintf(&b, ` styledegree="%g"`, *cfg.StyleDegree)
		}
		b.WriteString(`>`)
	}

	prosody := cfg.Rate != nil || cfg.Pitch != nil
	if prosody {
		b.WriteString(`<prosody`)
		if cfg.Rate != nil {
			b.WriteString(` rate="` + escapeXML(*cfg.Rate) + `"`)
		}
		if cfg.Pitch != nil {
			b.WriteString(` pitch="` + escapeXML(*cfg.Pitch) + `"`)
		}
		b.WriteString(`>`)
	}

	b.WriteString(escapeXML(text))

	if prosody {
		b.WriteString(`</prosody>`)
	}
	if cfg.Style != nil {
		b.WriteString(`</mstts:express-as>`)
	}

	b.WriteString(`</voice></speak>`)
	return b.String()
}
