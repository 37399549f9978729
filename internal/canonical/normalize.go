package canonical

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// reasonMaxRunes bounds the fallback "motivo" taken from the raw transcript.
const reasonMaxRunes = 500

var (
	reSpaces        = regexp.MustCompile(`\s+`)
	reNonDigits     = regexp.MustCompile(`[^0-9]`)
	reStreetNoise   = regexp.MustCompile(`(?i)\b(ayuda|emergencia|me\s+desmayo|auxilio)\b`)
	reStreetTail    = regexp.MustCompile(`(?i)\s+y\s+(?:necesito|me|estoy|urgente).*$`)
	reCommunePrefix = regexp.MustCompile(`(?i)\b(en\s+la\s+comuna\s+de|comuna\s+de)\b`)
	reCommuneNoise  = regexp.MustCompile(`(?i)\b(ayuda|emergencia|urgencia)\b`)

	reYesExact = regexp.MustCompile(`^s[ií]$`)

	reSexMale    = regexp.MustCompile(`(?i)^m(asculino)?$`)
	reSexFemale  = regexp.MustCompile(`(?i)^f(emenino)?$`)
	reFemaleWord = regexp.MustCompile(`(?i)\b(señora|mujer|femenina|niña)\b`)
	reMaleWord   = regexp.MustCompile(`(?i)\b(señor|hombre|masculino|niño)\b`)

	reAgeValue      = regexp.MustCompile(`\d{1,3}`)
	reAgeTranscript = regexp.MustCompile(`(?i)(\d{1,3})\s*años?`)

	reTriageRed    = regexp.MustCompile(`(?i)\b(paro|inconsciente|no\s+respira|convulsi)`)
	reTriageYellow = regexp.MustCompile(`(?i)\b(dolor\s+fuerte|accidente|fractura|desmayo)`)

	reAVDIAlert  = regexp.MustCompile(`(?i)\b(alerta|consciente|orientado)`)
	reAVDIVerbal = regexp.MustCompile(`(?i)responde\s+a\s+la?\s*voz`)
	reAVDIPain   = regexp.MustCompile(`(?i)responde\s*a\s+dolor`)
	reAVDIUnresp = regexp.MustCompile(`(?i)\b(inconsciente|no\s+responde)`)

	reNotBreathing = regexp.MustCompile(`(?i)no\s+respira|\bparo\b`)
	reBreathingAny = regexp.MustCompile(`(?i)\brespira`)

	reFirstPerson = regexp.MustCompile(`(?i)\b(soy|estoy|necesito|me\s+llamo|hablo|vivo|puedo|llamando)\b`)

	reSelfLocation = regexp.MustCompile(
		`(?i)(?:vivo en|estoy en|estamos en|la direcci[oó]n es|mi direcci[oó]n es|nos encontramos en|ubicado en)\s+([^.!?]+)`)
	reAddressDetail = regexp.MustCompile(
		`(?i)([a-záéíóúñ' ]+?)\s*(\d{1,6})` +
			`(?:\s*((?:oficina|departamento|depto|piso)\s*[a-z0-9-]+))?` +
			`(?:\s+(?:en\s+la\s+comuna\s+de|comuna\s+de|comuna)\s+([a-záéíóúñ' ]+))?`)
)

// Normalizer cleans and infers canonical record fields from noisy extractor
// output plus the raw transcript context. Normalize is pure and idempotent:
// re-running it on its own output with the same transcript is a no-op.
type Normalizer struct {
	gaz *Gazetteer
}

// NewNormalizer builds a Normalizer. A nil gazetteer selects the embedded
// Santiago street table.
func NewNormalizer(g *Gazetteer) *Normalizer {
	if g == nil {
		g = DefaultGazetteer()
	}
	return &Normalizer{gaz: g}
}

// Fold merges an extracted partial into the accumulated record and
// re-normalizes the result against the cumulative transcript.
func (n *Normalizer) Fold(existing, incoming Record, transcript string) Record {
	return n.Normalize(Merge(existing, incoming), transcript)
}

// Normalize applies every cleanup and inference rule to a record.
func (n *Normalizer) Normalize(r Record, transcript string) Record {
	lowerT := strings.ToLower(transcript)

	// Text cleanup.
	r.Street = sanitizeStreet(r.Street)
	r.Number = reNonDigits.ReplaceAllString(r.Number, "")
	r.Commune = sanitizeCommune(r.Commune)
	r.FirstName = titleWords(r.FirstName)
	r.LastName = titleWords(r.LastName)
	r.OnDutyPhysician = titleWords(r.OnDutyPhysician)

	// Controlled vocabularies.
	r.Sex = normalizeSex(r.Sex, transcript)
	r.Age = normalizeAge(r.Age, transcript)
	r.Triage = normalizeTriage(r.Triage, transcript)
	r.Conscious = normalizeYesNo(r.Conscious)
	r.Breathing = normalizeYesNo(r.Breathing)

	// A caller narrating in the first person is conscious and breathing,
	// unless the transcript explicitly says otherwise. Runs before the
	// ordinal inference below so the derived fields see settled flags and
	// normalization reaches its fixpoint in a single pass.
	if reFirstPerson.MatchString(transcript) {
		if r.Conscious == "" && !strings.Contains(lowerT, "inconsciente") {
			r.Conscious = Yes
		}
		if r.Breathing == "" && !strings.Contains(lowerT, "no respira") {
			r.Breathing = Yes
		}
	}

	// Ordinal inference.
	r.AVDI = normalizeAVDI(r.AVDI, r.Conscious, transcript)
	r.RespiratoryStatus = normalizeRespiratory(r.RespiratoryStatus, r.Breathing, transcript)

	// Keep the ordinal scale and the binary flags from contradicting each
	// other: the ordinal wins for consciousness, the respiratory status
	// fills an unset breathing flag.
	switch r.AVDI {
	case AVDIAlert, AVDIVerbal:
		r.Conscious = Yes
	case AVDIUnresponsive:
		r.Conscious = No
	}
	if r.Breathing == "" {
		switch r.RespiratoryStatus {
		case Breathing:
			r.Breathing = Yes
		case NotBreathing:
			r.Breathing = No
		}
	}

	// Address fallback before commune inference, so a street pulled out of
	// the transcript can still resolve its commune through the gazetteer.
	if r.Street == "" || r.Number == "" {
		parts := extractAddress(transcript)
		if r.Street == "" && parts.street != "" {
			r.Street = sanitizeStreet(parts.street)
		}
		if r.Number == "" && parts.number != "" {
			r.Number = reNonDigits.ReplaceAllString(parts.number, "")
		}
		if r.Commune == "" && parts.commune != "" {
			r.Commune = sanitizeCommune(parts.commune)
		}
		if r.Apartment == "" && parts.extra != "" {
			r.Apartment = parts.extra
		}
	}

	if communeMissing(r.Commune) {
		if c, ok := n.gaz.Lookup(r.Street); ok {
			r.Commune = c
		}
	}

	if u := mapsURL(r.Street, r.Number, r.Commune); u != "" {
		r.MapsURL = u
	}

	if r.Reason == "" && transcript != "" {
		r.Reason = truncateRunes(strings.TrimSpace(transcript), reasonMaxRunes)
	}

	return r
}

func sanitizeStreet(v string) string {
	s := reSpaces.ReplaceAllString(v, " ")
	s = reStreetNoise.ReplaceAllString(s, "")
	s = reStreetTail.ReplaceAllString(s, "")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func sanitizeCommune(v string) string {
	s := reSpaces.ReplaceAllString(v, " ")
	s = strings.TrimSpace(strings.SplitN(s, ",", 2)[0])
	s = reCommunePrefix.ReplaceAllString(s, "")
	s = reCommuneNoise.ReplaceAllString(s, "")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func titleWords(v string) string {
	s := strings.TrimSpace(v)
	if s == "" {
		return ""
	}
	return cases.Title(language.Spanish).String(s)
}

// normalizeYesNo maps free-form affirmations to si/no. Explicit affirmative
// forms are checked first, then negatives; "inconsciente" is tested before
// the bare "consciente" substring so the negation-bearing word wins.
func normalizeYesNo(v string) string {
	s := strings.ToLower(strings.TrimSpace(v))
	if s == "" {
		return ""
	}
	if reYesExact.MatchString(s) || strings.Contains(s, "si") {
		return Yes
	}
	if s == "no" || strings.Contains(s, "no") {
		return No
	}
	if strings.Contains(s, "inconsciente") {
		return No
	}
	if strings.Contains(s, "consciente") {
		return Yes
	}
	return ""
}

func normalizeSex(v, transcript string) string {
	s := strings.TrimSpace(v)
	if reSexMale.MatchString(s) {
		return "M"
	}
	if reSexFemale.MatchString(s) {
		return "F"
	}
	if reFemaleWord.MatchString(transcript) {
		return "F"
	}
	if reMaleWord.MatchString(transcript) {
		return "M"
	}
	return ""
}

func normalizeAge(v, transcript string) string {
	if m := reAgeValue.FindString(v); m != "" {
		if n, err := strconv.Atoi(m); err == nil && n <= 120 {
			return strconv.Itoa(n)
		}
	}
	if m := reAgeTranscript.FindStringSubmatch(transcript); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n <= 120 {
			return strconv.Itoa(n)
		}
	}
	return ""
}

// normalizeTriage always lands on one of the three triage tiers. An explicit
// Rojo or Amarillo wins; Verde doubles as the default sentinel, so it never
// blocks transcript keywords from escalating the tier.
func normalizeTriage(v, transcript string) string {
	s := strings.ToLower(v)
	switch {
	case strings.Contains(s, "rojo"):
		return TriageRed
	case strings.Contains(s, "amarillo"):
		return TriageYellow
	}
	if reTriageRed.MatchString(transcript) {
		return TriageRed
	}
	if reTriageYellow.MatchString(transcript) {
		return TriageYellow
	}
	return TriageGreen
}

func normalizeAVDI(v, conscious, transcript string) string {
	s := strings.ToLower(strings.TrimSpace(v))
	switch s {
	case AVDIAlert, AVDIVerbal, AVDIPain, AVDIUnresponsive:
		return s
	}
	switch {
	case reAVDIAlert.MatchString(transcript):
		return AVDIAlert
	case reAVDIVerbal.MatchString(transcript):
		return AVDIVerbal
	case reAVDIPain.MatchString(transcript):
		return AVDIPain
	case reAVDIUnresp.MatchString(transcript):
		return AVDIUnresponsive
	}
	switch normalizeYesNo(conscious) {
	case Yes:
		return AVDIAlert
	case No:
		return AVDIUnresponsive
	}
	return ""
}

func normalizeRespiratory(v, breathing, transcript string) string {
	s := strings.ToLower(strings.TrimSpace(v))
	if s == Breathing || s == NotBreathing {
		return s
	}
	switch normalizeYesNo(breathing) {
	case Yes:
		return Breathing
	case No:
		return NotBreathing
	}
	if reNotBreathing.MatchString(transcript) {
		return NotBreathing
	}
	if reBreathingAny.MatchString(transcript) {
		return Breathing
	}
	return ""
}

func communeMissing(c string) bool {
	switch strings.ToLower(c) {
	case "", "santiago", "región metropolitana", "region metropolitana", "rm":
		return true
	}
	return false
}

func mapsURL(street, number, commune string) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{street, number, commune} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	parts = append(parts, "Santiago, Chile")
	return "https://www.google.com/maps/search/?api=1&query=" + strings.Join(parts, ", ")
}

type addressParts struct {
	street  string
	number  string
	extra   string
	commune string
}

// extractAddress scans the transcript for self-location phrases followed by
// a street/number/unit/commune pattern. Commune requires an explicit
// "comuna" marker so trailing clauses never masquerade as one.
func extractAddress(text string) addressParts {
	normalized := reSpaces.ReplaceAllString(text, " ")
	m := reSelfLocation.FindStringSubmatch(normalized)
	if m == nil {
		return addressParts{}
	}
	d := reAddressDetail.FindStringSubmatch(m[1])
	if d == nil {
		return addressParts{}
	}
	return addressParts{
		street:  strings.TrimSpace(d[1]),
		number:  strings.TrimSpace(d[2]),
		extra:   strings.TrimSpace(d[3]),
		commune: strings.TrimSpace(d[4]),
	}
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
