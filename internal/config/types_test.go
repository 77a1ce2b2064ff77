package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"30s", 30 * time.Second, false},
		{"5m", 5 * time.Minute, false},
		{"100ms", 100 * time.Millisecond, false},
		{"1h30m", 90 * time.Minute, false},
		{"-5s", 0, true},
		{"bogus", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("UnmarshalText(%q) = nil, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("UnmarshalText(%q) = %v, want nil", tt.input, err)
			}
			if d.Duration() != tt.want {
				t.Errorf("Duration() = %v, want %v", d.Duration(), tt.want)
			}
		})
	}
}

func TestDuration_MarshalRoundTrip(t *testing.T) {
	d := Duration(90 * time.Second)
	text, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText() = %v", err)
	}
	if string(text) != "1m30s" {
		t.Errorf("MarshalText() = %q, want %q", text, "1m30s")
	}

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("json.Marshal() = %v", err)
	}
	if string(data) != `"1m30s"` {
		t.Errorf("json.Marshal() = %s, want %q", data, `"1m30s"`)
	}
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("super-secret-key")

	if s.String() != "[REDACTED]" {
		t.Errorf("String() = %q, want redacted", s.String())
	}
	if got := fmt.Sprintf("%v", s); got != "[REDACTED]" {
		t.Errorf("Sprintf %%v = %q, want redacted", got)
	}
	if got := fmt.Sprintf("%#v", s); got != "Secret([REDACTED])" {
		t.Errorf("Sprintf %%#v = %q, want redacted", got)
	}
	if s.Value() != "super-secret-key" {
		t.Errorf("Value() = %q, want raw secret", s.Value())
	}
	if !s.IsSet() {
		t.Error("IsSet() = false, want true")
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("json.Marshal() = %v", err)
	}
	if string(data) != `"[REDACTED]"` {
		t.Errorf("json.Marshal() = %s, want redacted", data)
	}
}

func TestSecret_Empty(t *testing.T) {
	var s Secret

	if s.String() != "" {
		t.Errorf("String() = %q, want empty", s.String())
	}
	if s.IsSet() {
		t.Error("IsSet() = true, want false")
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("json.Marshal() = %v", err)
	}
	if string(data) != `""` {
		t.Errorf("json.Marshal() = %s, want empty string", data)
	}
}

func TestSecret_UnmarshalRoundTrip(t *testing.T) {
	var s Secret
	if err := json.Unmarshal([]byte(`"raw-value"`), &s); err != nil {
		t.Fatalf("json.Unmarshal() = %v", err)
	}
	if s.Value() != "raw-value" {
		t.Errorf("Value() = %q, want %q", s.Value(), "raw-value")
	}

	var s2 Secret
	if err := s2.UnmarshalText([]byte("text-value")); err != nil {
		t.Fatalf("UnmarshalText() = %v", err)
	}
	if s2.Value() != "text-value" {
		t.Errorf("Value() = %q, want %q", s2.Value(), "text-value")
	}
}
