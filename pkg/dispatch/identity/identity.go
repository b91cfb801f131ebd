// Package identity computes deterministic merge keys for extraction work.
//
// A WorkIdentity is a digest over everything that makes a produced entity
// or relation logically unique: tenant, document, segment, the normalized
// entity itself, and the evidence spans anchoring it. Two logically
// identical extraction results from different runs (including retries and
// duplicate submissions) hash to the same identity, so downstream storage
// can merge on it instead of duplicating records.
//
// Order-independence is guaranteed by construction: property maps and span
// lists are canonically sorted before hashing, and the serialization is
// RFC 8785 (JCS) canonical JSON, so no input ordering or encoder quirk can
// leak into the digest.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/gowebpki/jcs"
)

// ErrNoEvidence is returned when an identity is requested with no evidence
// spans. An identity must be anchored to at least one span.
var ErrNoEvidence = errors.New("identity requires at least one evidence span")

// Span is a half-open character range [Start, End) in the source segment.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Entity is the produced entity or relation to be identified. Properties
// carry whatever attributes extraction produced; their map order never
// affects the identity.
type Entity struct {
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties,omitempty"`
}

// WorkIdentity is a fixed-length hex digest used as a downstream merge key.
type WorkIdentity string

// payload is the canonical tuple that gets hashed.
type payload struct {
	Tenant   string         `json:"tenant"`
	Document string         `json:"document"`
	Segment  string         `json:"segment"`
	Entity   canonicalEntity `json:"entity"`
	Spans    []Span         `json:"spans"`
}

// canonicalEntity is Entity with properties as sorted pairs, so the JSON
// form is identical regardless of how the input map iterates.
type canonicalEntity struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Properties [][2]string `json:"properties"`
}

// Identity computes the WorkIdentity for one extraction result.
//
// The entity's properties and the evidence spans are treated as sets:
// permutations and duplicates do not change the digest. Returns
// ErrNoEvidence if spans is empty; it is total over all other well-formed
// input.
func Identity(tenant, document, segment string, entity Entity, spans []Span) (WorkIdentity, error) {
	if len(spans) == 0 {
		return "", ErrNoEvidence
	}

	p := payload{
		Tenant:   tenant,
		Document: document,
		Segment:  segment,
		Entity:   canonicalize(entity),
		Spans:    sortSpans(spans),
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to serialize identity payload: %w", err)
	}

	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize identity payload: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return WorkIdentity(hex.EncodeToString(sum[:])), nil
}

// canonicalize normalizes an entity to {name, type, sorted property pairs}.
func canonicalize(e Entity) canonicalEntity {
	pairs := make([][2]string, 0, len(e.Properties))
	for k, v := range e.Properties {
		pairs = append(pairs, [2]string{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})

	return canonicalEntity{
		Name:       e.Name,
		Type:       e.Type,
		Properties: pairs,
	}
}

// sortSpans returns the spans sorted by start offset (then end) with
// duplicates removed, so a span list is hashed as a span set.
func sortSpans(spans []Span) []Span {
	out := make([]Span, len(spans))
	copy(out, spans)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End < out[j].End
	})

	deduped := out[:1]
	for _, s := range out[1:] {
		if s != deduped[len(deduped)-1] {
			deduped = append(deduped, s)
		}
	}
	return deduped
}
