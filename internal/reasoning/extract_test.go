package reasoning

import (
	"errors"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{name: "bare object", text: `{"a":1}`, want: `{"a":1}`},
		{name: "object with trailing prose", text: `{"a":{"b":"}"}} hope this helps`, want: `{"a":{"b":"}"}}`},
		{name: "json fence", text: "Here you go:\n```json\n{\"a\": [1, 2]}\n```\nDone.", want: `{"a": [1, 2]}`},
		{name: "plain fence", text: "```\n{\"a\": true}\n```", want: `{"a": true}`},
		{name: "embedded", text: `The answer is {"x": "y"} as requested.`, want: `{"x": "y"}`},
		{name: "escaped quote in string", text: `{"q":"say \"{\""}`, want: `{"q":"say \"{\""}`},
		{name: "empty", text: "   ", wantErr: true},
		{name: "no object", text: "just words", wantErr: true},
		{name: "array only", text: "[1,2,3]", wantErr: true},
		{name: "broken object", text: `{"a": }`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.text)
			if tt.wantErr {
				if !errors.Is(err, ErrNoJSON) {
					t.Errorf("ExtractJSON() error = %v, want ErrNoJSON", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSON() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("ExtractJSON() = %s, want %s", got, tt.want)
			}
		})
	}
}
