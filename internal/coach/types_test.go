package coach

import (
	"encoding/json"
	"testing"
)

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		in      string
		want    Frequency
		wantErr bool
	}{
		{"", Daily, false},
		{"daily", Daily, false},
		{"Weekly", Weekly, false},
		{" weekly ", Weekly, false},
		{"monthly", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFrequency(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFrequency(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFrequency(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDocumentPretty(t *testing.T) {
	doc := Document{Body: json.RawMessage(`{"a":1,"b":[true]}`)}
	want := "{\n  \"a\": 1,\n  \"b\": [\n    true\n  ]\n}"
	if got := doc.Pretty(); got != want {
		t.Errorf("Pretty() = %q, want %q", got, want)
	}
}

func TestDocumentEmpty(t *testing.T) {
	for body, want := range map[string]bool{
		`{}`:           true,
		` { } `:        true,
		`null`:         true,
		`[]`:           true,
		`{"a":"b"}`:    false,
		`"text"`:       false,
		`{"detail":0}`: false,
	} {
		if got := (Document{Body: json.RawMessage(body)}).Empty(); got != want {
			t.Errorf("Empty(%s) = %v, want %v", body, got, want)
		}
	}
}

func TestDocumentNull(t *testing.T) {
	for body, want := range map[string]bool{
		`null`:    true,
		" null\n": true,
		`{}`:      false,
		`[]`:      false,
		`"null"`:  false,
	} {
		if got := (Document{Body: json.RawMessage(body)}).Null(); got != want {
			t.Errorf("Null(%q) = %v, want %v", body, got, want)
		}
	}
}

func TestDocumentSections_OtherShape(t *testing.T) {
	if _, ok := (Document{Body: json.RawMessage(`[1,2]`)}).Sections(); ok {
		t.Error("Sections() ok = true for an array")
	}
	if _, ok := (Document{Body: json.RawMessage(`{"n":1}`)}).Sections(); ok {
		t.Error("Sections() ok = true for non-string values")
	}
}
