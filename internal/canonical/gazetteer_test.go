package canonical

import "testing"

func TestGazetteer_Lookup(t *testing.T) {
	g := DefaultGazetteer()

	tests := []struct {
		street string
		want   string
		hit    bool
	}{
		{"Avenida Apoquindo", "Las Condes", true},
		{"APOQUINDO 1234", "Las Condes", true},
		{"calle ñuble", "Ñuñoa", true},
		{"Ñuble 950", "Ñuñoa", true},
		{"Gran Avenida José Miguel Carrera", "La Cisterna", true},
		{"Francisco Bilbao", "Las Condes", true},
		{"pasaje sin registro", "", false},
		{"", "", false},
		// Substring of a hint word must not match.
		{"Apoquindano", "", false},
	}

	for _, tt := range tests {
		got, ok := g.Lookup(tt.street)
		if ok != tt.hit || got != tt.want {
			t.Errorf("Lookup(%q) = %q, %v; want %q, %v", tt.street, got, ok, tt.want, tt.hit)
		}
	}
}

func TestLoadGazetteer_EmptyPathUsesEmbedded(t *testing.T) {
	g, err := LoadGazetteer("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := g.Lookup("Irarrazaval"); !ok {
		t.Error("embedded table should resolve Irarrazaval")
	}
}
