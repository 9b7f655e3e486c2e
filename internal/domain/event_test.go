package domain

import (
	"testing"
	"time"
)

func TestDecodeEventAcceptsBareAndTaggedValues(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"dt": 1767182400000,
		"source": "compliance_monitor",
		"confidence": 0.8,
		"fields": {
			"risk_score": 85,
			"region": "emea",
			"audited": false,
			"days_until_audit": {"t":"n","n":3}
		}
	}`)
	event, err := DecodeEvent(raw)
	if err != nil {
		t.Fatalf("expected decode to succeed, got %v", err)
	}

	if event.Source != "compliance_monitor" || event.Confidence == nil || *event.Confidence != 0.8 {
		t.Fatalf("expected envelope fields to survive, got %+v", event)
	}
	if got, ok := event.Fields["risk_score"].AsNumber(); !ok || got != 85 {
		t.Fatalf("expected bare number field, got %+v", event.Fields["risk_score"])
	}
	if got := event.Fields["region"].AsString(); got != "emea" {
		t.Fatalf("expected bare string field, got %q", got)
	}
	if got, ok := event.Fields["days_until_audit"].AsNumber(); !ok || got != 3 {
		t.Fatalf("expected tagged number field, got %+v", event.Fields["days_until_audit"])
	}
	wantTime := time.UnixMilli(1767182400000).UTC()
	if !event.EventTime().Equal(wantTime) {
		t.Fatalf("expected event time %v, got %v", wantTime, event.EventTime())
	}
}

func TestDecodeEventRejectsBrokenPayloads(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
	}{
		{name: "empty fields", raw: `{"fields":{}}`},
		{name: "array field value", raw: `{"fields":{"risk_score":[1,2]}}`},
		{name: "tagged without payload", raw: `{"fields":{"risk_score":{"t":"n"}}}`},
		{name: "unknown tag", raw: `{"fields":{"risk_score":{"t":"x"}}}`},
		{name: "negative dt", raw: `{"dt":-5,"fields":{"risk_score":1}}`},
		{name: "confidence above one", raw: `{"confidence":1.2,"fields":{"risk_score":1}}`},
	}
	for _, testCase := range cases {
		if _, err := DecodeEvent([]byte(testCase.raw)); err == nil {
			t.Fatalf("%s: expected decode error", testCase.name)
		}
	}
}

func TestTypedValueCoercions(t *testing.T) {
	t.Parallel()

	if got, ok := String("85.5").AsNumber(); !ok || got != 85.5 {
		t.Fatalf("expected numeric string coercion, got %v (%v)", got, ok)
	}
	if _, ok := String("not a number").AsNumber(); ok {
		t.Fatal("expected non-numeric string coercion to fail")
	}
	if got := Number(7).AsString(); got != "7" {
		t.Fatalf("expected compact number formatting, got %q", got)
	}
	if got := Bool(true).AsString(); got != "true" {
		t.Fatalf("expected bool formatting, got %q", got)
	}
	if _, ok := Bool(true).AsNumber(); ok {
		t.Fatal("expected bool to refuse numeric coercion")
	}
}

func TestCloneFieldsDetaches(t *testing.T) {
	t.Parallel()

	event := Event{Fields: map[string]TypedValue{"risk_score": Number(1)}}
	cloned := event.CloneFields()
	cloned["risk_score"] = Number(99)
	if got, _ := event.Fields["risk_score"].AsNumber(); got != 1 {
		t.Fatalf("expected original fields untouched, got %v", got)
	}
}
