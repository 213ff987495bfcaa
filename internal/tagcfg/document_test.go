package tagcfg

import (
	"testing"
)

func TestSettingsValidate(t *testing.T) {
	valid := Settings{Mode: ModeTCP, IP: "192.168.0.10", Port: 502, PollingInterval: 0.5}

	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr bool
	}{
		{"valid tcp", func(s *Settings) {}, false},
		{"valid ads", func(s *Settings) {
			s.Mode = ModeADS
			s.AMSNetID = "5.18.32.44.1.1"
			s.AMSPort = 851
		}, false},
		{"bad mode", func(s *Settings) { s.Mode = "RTU" }, true},
		{"bad ip", func(s *Settings) { s.IP = "not-an-ip" }, true},
		{"port too low", func(s *Settings) { s.Port = 0 }, true},
		{"port too high", func(s *Settings) { s.Port = 70000 }, true},
		{"interval too short", func(s *Settings) { s.PollingInterval = 0.01 }, true},
		{"interval too long", func(s *Settings) { s.PollingInterval = 120 }, true},
		{"ads missing net id", func(s *Settings) { s.Mode = ModeADS; s.AMSPort = 851 }, true},
		{"ads short net id", func(s *Settings) {
			s.Mode = ModeADS
			s.AMSNetID = "5.18.32.44"
			s.AMSPort = 851
		}, true},
		{"ads net id part out of range", func(s *Settings) {
			s.Mode = ModeADS
			s.AMSNetID = "5.18.32.44.1.999"
			s.AMSPort = 851
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAddTag_RejectsDuplicates(t *testing.T) {
	doc := DefaultDocument()
	if err := doc.AddTag(Tag{Name: "Part Count", Address: 1, Type: KindRegister, Enabled: true}); err != nil {
		t.Fatalf("first tag rejected: %v", err)
	}

	// same (address, kind) among enabled tags
	if err := doc.AddTag(Tag{Name: "Other", Address: 1, Type: "Register", Enabled: true}); err == nil {
		t.Error("expected duplicate (address, kind) to be rejected")
	}

	// same cleaned, case-insensitive name
	if err := doc.AddTag(Tag{Name: "part count", Address: 7, Type: KindCoil, Enabled: true}); err == nil {
		t.Error("expected duplicate cleaned name to be rejected")
	}

	// same address but different kind is fine
	if err := doc.AddTag(Tag{Name: "Gate", Address: 1, Type: KindCoil, Enabled: true}); err != nil {
		t.Errorf("distinct kind at same address rejected: %v", err)
	}

	// same (address, kind) is fine when the existing tag is disabled
	doc2 := DefaultDocument()
	if err := doc2.AddTag(Tag{Name: "Old", Address: 3, Type: KindRegister, Enabled: false}); err != nil {
		t.Fatal(err)
	}
	if err := doc2.AddTag(Tag{Name: "New", Address: 3, Type: KindRegister, Enabled: true}); err != nil {
		t.Errorf("duplicate against disabled tag rejected: %v", err)
	}
}

func TestAddTag_DefaultsScale(t *testing.T) {
	doc := DefaultDocument()
	if err := doc.AddTag(Tag{Name: "Counter", Address: 0, Type: KindRegister, Enabled: true}); err != nil {
		t.Fatal(err)
	}
	if got := doc.Tags[0].Scale; got != 1.0 {
		t.Errorf("expected default scale 1.0, got %g", got)
	}
}

func TestDocumentValidate(t *testing.T) {
	doc := DefaultDocument()
	doc.Tags = []Tag{
		{Name: "A", Address: 0, Type: KindCoil, Scale: 1, Enabled: true},
		{Name: "a", Address: 1, Type: KindCoil, Scale: 1, Enabled: true},
	}
	if err := doc.Validate(); err == nil {
		t.Error("expected name collision to fail validation")
	}

	doc.Tags[1].Name = "B"
	doc.Tags[1].Address = 0
	if err := doc.Validate(); err == nil {
		t.Error("expected enabled (address, kind) collision to fail validation")
	}

	doc.Tags[1].Enabled = false
	if err := doc.Validate(); err != nil {
		t.Errorf("disabled duplicate slot should validate: %v", err)
	}
}

func TestEnabledTags(t *testing.T) {
	doc := DefaultDocument()
	doc.Tags = []Tag{
		{Name: "A", Address: 0, Type: KindCoil, Enabled: true},
		{Name: "B", Address: 1, Type: KindCoil, Enabled: false},
		{Name: "C", Address: 2, Type: KindRegister, Enabled: true},
	}
	enabled := doc.EnabledTags()
	if len(enabled) != 2 {
		t.Fatalf("expected 2 enabled tags, got %d", len(enabled))
	}
	if enabled[0].Name != "A" || enabled[1].Name != "C" {
		t.Errorf("unexpected enabled set: %+v", enabled)
	}
}

func TestTagColumn(t *testing.T) {
	tag := Tag{Name: "Part Count Total"}
	if got := tag.Column(); got != "Part_Count_Total" {
		t.Errorf("Column() = %q, want Part_Count_Total", got)
	}
}
