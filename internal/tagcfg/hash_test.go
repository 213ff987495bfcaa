package tagcfg

import (
	"encoding/json"
	"testing"
)

func TestHash_StableAcrossKeyOrder(t *testing.T) {
	// The same document serialized with different key orders must produce
	// the same fingerprint.
	a := `{"global_settings":{"mode":"TCP","ip":"10.0.0.1","port":502,"polling_interval":0.5},
	       "tags":[{"name":"Counter","address":0,"type":"register","scale":1,"enabled":true}]}`
	b := `{"tags":[{"enabled":true,"scale":1,"type":"register","address":0,"name":"Counter"}],
	       "global_settings":{"polling_interval":0.5,"port":502,"ip":"10.0.0.1","mode":"TCP"}}`

	var docA, docB Document
	if err := json.Unmarshal([]byte(a), &docA); err != nil {
		t.Fatalf("unmarshal a: %v", err)
	}
	if err := json.Unmarshal([]byte(b), &docB); err != nil {
		t.Fatalf("unmarshal b: %v", err)
	}

	hashA, err := Hash(docA)
	if err != nil {
		t.Fatalf("Hash(a): %v", err)
	}
	hashB, err := Hash(docB)
	if err != nil {
		t.Fatalf("Hash(b): %v", err)
	}

	if hashA != hashB {
		t.Errorf("equivalent documents hash differently: %s vs %s", hashA, hashB)
	}
	if len(hashA) != 8 {
		t.Errorf("expected 8-character hash, got %q", hashA)
	}
}

func TestHash_ChangesWithContent(t *testing.T) {
	base := DefaultDocument()
	base.Tags = []Tag{{Name: "Counter", Address: 1, Type: KindRegister, Scale: 1.0, Enabled: true}}

	baseHash, err := Hash(base)
	if err != nil {
		t.Fatal(err)
	}

	mutations := []struct {
		name   string
		mutate func(d *Document)
	}{
		{"address", func(d *Document) { d.Tags[0].Address = 2 }},
		{"name", func(d *Document) { d.Tags[0].Name = "Counter2" }},
		{"scale", func(d *Document) { d.Tags[0].Scale = 0.1 }},
		{"enabled", func(d *Document) { d.Tags[0].Enabled = false }},
		{"ip", func(d *Document) { d.Settings.IP = "192.168.0.11" }},
		{"interval", func(d *Document) { d.Settings.PollingInterval = 1.0 }},
	}

	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			doc := base
			doc.Tags = append([]Tag(nil), base.Tags...)
			tt.mutate(&doc)
			h, err := Hash(doc)
			if err != nil {
				t.Fatal(err)
			}
			if h == baseHash {
				t.Errorf("mutation %s did not change the hash", tt.name)
			}
		})
	}
}
