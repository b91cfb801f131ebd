package identity

import (
	"errors"
	"testing"
)

func mustIdentity(t *testing.T, tenant, document, segment string, entity Entity, spans []Span) WorkIdentity {
	t.Helper()
	id, err := Identity(tenant, document, segment, entity, spans)
	if err != nil {
		t.Fatalf("Identity failed: %v", err)
	}
	return id
}

func TestIdentity_Deterministic(t *testing.T) {
	entity := Entity{
		Name: "Ada Lovelace",
		Type: "person",
		Properties: map[string]string{
			"born":       "1815",
			"occupation": "mathematician",
		},
	}
	spans := []Span{{Start: 10, End: 22}, {Start: 40, End: 55}}

	a := mustIdentity(t, "tenant-a", "doc-1", "seg-3", entity, spans)
	b := mustIdentity(t, "tenant-a", "doc-1", "seg-3", entity, spans)

	if a != b {
		t.Errorf("Same input hashed differently: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("Expected 64-char sha256 hex digest, got %d chars", len(a))
	}
}

func TestIdentity_SpanOrderIndependent(t *testing.T) {
	entity := Entity{Name: "Ada", Type: "person"}

	a := mustIdentity(t, "t", "d", "s", entity, []Span{{10, 22}, {40, 55}, {1, 5}})
	b := mustIdentity(t, "t", "d", "s", entity, []Span{{40, 55}, {1, 5}, {10, 22}})

	if a != b {
		t.Error("Span permutations must hash identically")
	}
}

func TestIdentity_DuplicateSpansIgnored(t *testing.T) {
	entity := Entity{Name: "Ada", Type: "person"}

	a := mustIdentity(t, "t", "d", "s", entity, []Span{{10, 22}})
	b := mustIdentity(t, "t", "d", "s", entity, []Span{{10, 22}, {10, 22}})

	if a != b {
		t.Error("Duplicate spans must not change the identity")
	}
}

func TestIdentity_PropertyOrderIndependent(t *testing.T) {
	// Go map iteration order is randomized, so equal maps built in
	// different insertion orders exercise the canonical sort.
	p1 := map[string]string{"a": "1", "b": "2", "c": "3"}
	p2 := map[string]string{"c": "3", "a": "1", "b": "2"}

	a := mustIdentity(t, "t", "d", "s", Entity{Name: "X", Type: "thing", Properties: p1}, []Span{{0, 1}})
	b := mustIdentity(t, "t", "d", "s", Entity{Name: "X", Type: "thing", Properties: p2}, []Span{{0, 1}})

	if a != b {
		t.Error("Property insertion order must not change the identity")
	}
}

func TestIdentity_DiffersOnEveryComponent(t *testing.T) {
	base := func() (string, string, string, Entity, []Span) {
		return "t", "d", "s",
			Entity{Name: "Ada", Type: "person", Properties: map[string]string{"k": "v"}},
			[]Span{{10, 22}}
	}

	tenant, document, segment, entity, spans := base()
	ref := mustIdentity(t, tenant, document, segment, entity, spans)

	cases := map[string]WorkIdentity{}

	tenant, document, segment, entity, spans = base()
	cases["tenant"] = mustIdentity(t, "other", document, segment, entity, spans)

	tenant, document, segment, entity, spans = base()
	cases["document"] = mustIdentity(t, tenant, "other", segment, entity, spans)

	tenant, document, segment, entity, spans = base()
	cases["segment"] = mustIdentity(t, tenant, document, "other", entity, spans)

	tenant, document, segment, entity, spans = base()
	entity.Name = "Grace"
	cases["entity name"] = mustIdentity(t, tenant, document, segment, entity, spans)

	tenant, document, segment, entity, spans = base()
	entity.Type = "place"
	cases["entity type"] = mustIdentity(t, tenant, document, segment, entity, spans)

	tenant, document, segment, entity, spans = base()
	entity.Properties = map[string]string{"k": "other"}
	cases["property value"] = mustIdentity(t, tenant, document, segment, entity, spans)

	tenant, document, segment, entity, spans = base()
	cases["span set"] = mustIdentity(t, tenant, document, segment, entity, []Span{{10, 23}})

	for component, id := range cases {
		if id == ref {
			t.Errorf("Changing %s did not change the identity", component)
		}
	}
}

func TestIdentity_EmptySpansRejected(t *testing.T) {
	_, err := Identity("t", "d", "s", Entity{Name: "Ada", Type: "person"}, nil)
	if !errors.Is(err, ErrNoEvidence) {
		t.Errorf("Expected ErrNoEvidence, got %v", err)
	}
}

func TestIdentity_PropertyPairsNotConcatAmbiguous(t *testing.T) {
	// {"ab": "c"} and {"a": "bc"} must not collide
	a := mustIdentity(t, "t", "d", "s", Entity{Name: "X", Type: "y", Properties: map[string]string{"ab": "c"}}, []Span{{0, 1}})
	b := mustIdentity(t, "t", "d", "s", Entity{Name: "X", Type: "y", Properties: map[string]string{"a": "bc"}}, []Span{{0, 1}})

	if a == b {
		t.Error("Distinct property maps collided")
	}
}
