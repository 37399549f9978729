package extraction

import (
	"errors"
	"testing"
)

func TestParsePartial(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		check   func(t *testing.T, got map[string]string)
	}{
		{
			name: "plain JSON",
			raw:  `{"nombre":"Ana","comuna":"Macul"}`,
			check: func(t *testing.T, got map[string]string) {
				if got["nombre"] != "Ana" || got["comuna"] != "Macul" {
					t.Errorf("fields = %v", got)
				}
			},
		},
		{
			name: "fenced JSON",
			raw:  "```json\n{\"direccion\": \"Apoquindo\"}\n```",
			check: func(t *testing.T, got map[string]string) {
				if got["direccion"] != "Apoquindo" {
					t.Errorf("fields = %v", got)
				}
			},
		},
		{
			name: "prose around the object",
			raw:  `Aquí está la ficha: {"edad":"62"} Espero que sirva.`,
			check: func(t *testing.T, got map[string]string) {
				if got["edad"] != "62" {
					t.Errorf("fields = %v", got)
				}
			},
		},
		{
			name: "empty object is a valid no-information partial",
			raw:  `{}`,
			check: func(t *testing.T, got map[string]string) {
				if len(got) != 0 {
					t.Errorf("fields = %v, want none", got)
				}
			},
		},
		{
			name:    "no JSON object",
			raw:     "lo siento, no puedo ayudar con eso",
			wantErr: true,
		},
		{
			name:    "unknown key",
			raw:     `{"telefono":"+56 9 1234"}`,
			wantErr: true,
		},
		{
			name:    "truncated object",
			raw:     `{"nombre": "Ana"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := ParsePartial(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrBadResponse) {
					t.Fatalf("err = %v, want ErrBadResponse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			tt.check(t, rec.FilledFields())
		})
	}
}
