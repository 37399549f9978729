// Package llm implements the extraction contract against an OpenAI-style
// chat-completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/canonical"
	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/extraction"
)

const systemPrompt = `Eres un operador experto de emergencias. Debes completar la ficha SOS y los campos de seguimiento de una emergencia a partir de la transcripción.

IMPORTANTE: Esta transcripción puede ser INCREMENTAL (solo un fragmento nuevo de una llamada en curso). Tu tarea es extraer SOLO la información nueva que aparece en este fragmento específico.

Reglas estrictas:
1. Extrae ÚNICAMENTE datos que se mencionan EXPLÍCITAMENTE en este fragmento
2. Si no existe información confirmada, deja el campo como cadena vacía ""
3. NO escribas "desconocido", "n/a" ni equivalentes - usa cadenas vacías ""
4. Si en este fragmento no aparece ningún dato nuevo, devuelve todas las cadenas vacías
5. Usa español de Chile

Campos específicos:
- direccion: solo nombre de calle (sin "emergencia", "ayuda", etc.)
- numero: solo dígitos
- comuna: nombre formal de la comuna
- depto: referencias como "oficina 111", "departamento 502"
- ubicacion_detalle: detalles del lugar ("gimnasio edificio", "cancha fútbol")
- avdi: exactamente "alerta", "verbal", "dolor" o "inconsciente" (o "" si no se menciona)
- estado_respiratorio: "respira" o "no respira" (o "" si no se menciona)
- consciente/respira: "si" o "no" (o "" si no se menciona)
- codigo: "Verde", "Amarillo" o "Rojo"
- inicio_sintomas: expresiones como "súbito", "hace 2 horas" (o "" si no se menciona)
- cantidad_rescatistas/recursos_requeridos: solo si se solicitan explícitamente
- campos médicos (historia_clinica, medicamentos, alergias, etc.): solo si se mencionan

Devuelve SOLO JSON plano, sin markdown.`

// Config holds the chat-completions endpoint settings.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Client calls an OpenAI-compatible chat-completions API and parses the
// completion into a partial canonical record.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates an extraction client. Zero-value limits fall back to sane
// defaults (2048 tokens, temperature 0, 30s timeout).
func New(cfg Config) *Client {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Extract implements extraction.Extractor.
func (c *Client) Extract(ctx context.Context, chunk string, filled map[string]string) (canonical.Record, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(chunk, filled)},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return canonical.Record{}, fmt.Errorf("marshal extraction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return canonical.Record{}, fmt.Errorf("build extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return canonical.Record{}, fmt.Errorf("%w: %v", extraction.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().
			Int("status", resp.StatusCode).
			Str("model", c.cfg.Model).
			Msg("extractor returned non-2xx status")
		return canonical.Record{}, fmt.Errorf("%w: status %d", extraction.ErrUnavailable, resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return canonical.Record{}, fmt.Errorf("%w: decode response: %v", extraction.ErrBadResponse, err)
	}
	if len(out.Choices) == 0 {
		return canonical.Record{}, fmt.Errorf("%w: no choices in response", extraction.ErrBadResponse)
	}

	return extraction.ParsePartial(out.Choices[0].Message.Content)
}

// buildUserPrompt renders the chunk plus the fields already extracted in
// earlier fragments, so the model reports only genuinely new information.
func buildUserPrompt(chunk string, filled map[string]string) string {
	var b strings.Builder
	b.WriteString("Fragmento de transcripción (es-CL):")

	if len(filled) > 0 {
		keys := make([]string, 0, len(filled))
		for k := range filled {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString("\n\nDatos ya extraídos en fragmentos anteriores:\n{\n")
		for i, k := range keys {
			fmt.Fprintf(&b, "  %q: %q", k, filled[k])
			if i < len(keys)-1 {
				b.WriteString(",")
			}
			b.WriteString("\n")
		}
		b.WriteString("}\n")
	}

	b.WriteString("\n\nTranscripción actual:\n")
	b.WriteString(chunk)
	b.WriteString(`

Extrae SOLO la información nueva de este fragmento y devuelve JSON con el esquema de la ficha (claves en español, valores string).

Recuerda: si no hay información nueva en este fragmento, devuelve todas las cadenas vacías.`)
	return b.String()
}
