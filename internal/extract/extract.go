// Package extract detects and parses the structured completion payload the
// model is instructed to append to its final interview reply.
//
// The model's structured-output framing is a convention, not a strict format:
// the sentinel may be missing, prose may surround the JSON object, and the
// JSON itself may be malformed. The policy here is a bounded heuristic —
// sentinel or any '{' present, then a greedy first-'{'..last-'}' match —
// isolated behind the Extractor type so it can be swapped for a stricter
// delimiter-based protocol without touching the turn processor.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

// DefaultSentinel is the marker the interview prompt instructs the model to
// emit immediately before the structured payload.
const DefaultSentinel = "[FINALIZADO]"

// ClosingReply substitutes the user-facing text when stripping the payload
// leaves nothing to say.
const ClosingReply = "Obrigado! Recebi todos os seus dados. Nossa equipe entrará em contato em breve."

// jsonSpanRE greedily matches the first '{' through the last '}' so prose
// before and after the object is tolerated.
var jsonSpanRE = regexp.MustCompile(`(?s)\{.*\}`)

// CompletedLead is the typed briefing record parsed from the model output.
// Field names follow the interview prompt's JSON contract.
type CompletedLead struct {
	LawyerName     string `json:"nome_advogado"`
	FirmName       string `json:"nome_escritorio"`
	Specialties    string `json:"especialidades"`
	Differentiator string `json:"diferencial"`
	Notes          string `json:"observacoes"`
}

// Extractor scans model output for a completion payload.
type Extractor struct {
	sentinel string
}

// New returns an Extractor using the given sentinel marker; an empty sentinel
// falls back to DefaultSentinel.
func New(sentinel string) *Extractor {
	if sentinel == "" {
		sentinel = DefaultSentinel
	}
	return &Extractor{sentinel: sentinel}
}

// Extract inspects the model output. When a completion payload parses, it
// returns the typed lead and the user-facing text with the sentinel and JSON
// span removed (or ClosingReply when nothing remains). Otherwise it returns
// (nil, output): already-clean text passes through unchanged, and a malformed
// structured block is treated as not-completed rather than an error.
func (e *Extractor) Extract(output string) (*CompletedLead, string) {
	if !strings.Contains(output, e.sentinel) && !strings.Contains(output, "{") {
		return nil, output
	}

	span := jsonSpanRE.FindString(output)
	if span == "" {
		return nil, output
	}

	var lead CompletedLead
	if err := json.Unmarshal([]byte(span), &lead); err != nil {
		return nil, output
	}

	clean := strings.Replace(output, span, "", 1)
	clean = strings.ReplaceAll(clean, e.sentinel, "")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		clean = ClosingReply
	}
	return &lead, clean
}
