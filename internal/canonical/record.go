// Package canonical holds the structured incident record built up over the
// course of an emergency call, plus the merge and normalization rules that
// fold freshly extracted fragments into it.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Triage codes, ordered by severity. Verde is the default tier and doubles as
// the "no new information" sentinel during merges.
const (
	TriageGreen  = "Verde"
	TriageYellow = "Amarillo"
	TriageRed    = "Rojo"
)

// AVDI responsiveness scale (alerta > verbal > dolor > inconsciente).
const (
	AVDIAlert        = "alerta"
	AVDIVerbal       = "verbal"
	AVDIPain         = "dolor"
	AVDIUnresponsive = "inconsciente"
)

// Yes/no field values. The empty string means unknown.
const (
	Yes = "si"
	No  = "no"
)

// Respiratory status values.
const (
	Breathing    = "respira"
	NotBreathing = "no respira"
)

// Record is the canonical incident record for one call. Every field is a
// string where the empty string is the unknown sentinel; the extractor is
// instructed to never emit placeholder words. JSON keys match the extractor
// wire contract (es-CL operator vocabulary).
type Record struct {
	// Identity / demographics
	FirstName string `json:"nombre"`
	LastName  string `json:"apellido"`
	Sex       string `json:"sexo"` // M or F
	Age       string `json:"edad"` // numeric string

	// Location
	Street            string `json:"direccion"`
	Number            string `json:"numero"`
	Commune           string `json:"comuna"`
	Apartment         string `json:"depto"`
	LocationReference string `json:"ubicacion_referencia"`
	LocationDetail    string `json:"ubicacion_detalle"`
	MapsURL           string `json:"google_maps_url"` // derived, never extracted

	// Medical status
	Triage            string `json:"codigo"` // Verde, Amarillo, Rojo
	AVDI              string `json:"avdi"`
	RespiratoryStatus string `json:"estado_respiratorio"` // respira / no respira
	Conscious         string `json:"consciente"`          // si / no
	Breathing         string `json:"respira"`             // si / no

	// Medical history
	Reason          string `json:"motivo"`
	SymptomOnset    string `json:"inicio_sintomas"`
	BaselineStatus  string `json:"estado_basal"`
	AdvanceDirectiv string `json:"let_dnr"`
	MedicalHistory  string `json:"historia_clinica"`
	Medications     string `json:"medicamentos"`
	Allergies       string `json:"alergias"`
	VitalSigns      string `json:"signos_vitales"`

	// Logistics
	RescuerCount      string `json:"cantidad_rescatistas"`
	RequiredResources string `json:"recursos_requeridos"`
	HealthInsurance   string `json:"seguro_salud"`
	ConciergeNotice   string `json:"aviso_conserjeria"`
	ChecklistURL      string `json:"checklist_url"`
	OnDutyPhysician   string `json:"medico_turno"`

	// Administrative linkage
	SessionID    string `json:"session_id"`
	DispatcherID string `json:"dispatcher_id"`
}

// TriageRank orders triage codes by severity: Verde < Amarillo < Rojo.
// Unknown codes rank below Verde.
func TriageRank(code string) int {
	switch code {
	case TriageGreen:
		return 1
	case TriageYellow:
		return 2
	case TriageRed:
		return 3
	}
	return 0
}

// New returns an empty record with default field values.
func New() Record {
	return Record{Triage: TriageGreen}
}

// fieldRefs returns pointers to every merge-eligible field, in declaration
// order. Triage is excluded: its default is a non-empty sentinel and is
// handled separately by Merge.
func (r *Record) fieldRefs() []*string {
	return []*string{
		&r.FirstName, &r.LastName, &r.Sex, &r.Age,
		&r.Street, &r.Number, &r.Commune, &r.Apartment,
		&r.LocationReference, &r.LocationDetail, &r.MapsURL,
		&r.AVDI, &r.RespiratoryStatus, &r.Conscious, &r.Breathing,
		&r.Reason, &r.SymptomOnset, &r.BaselineStatus, &r.AdvanceDirectiv,
		&r.MedicalHistory, &r.Medications, &r.Allergies, &r.VitalSigns,
		&r.RescuerCount, &r.RequiredResources, &r.HealthInsurance,
		&r.ConciergeNotice, &r.ChecklistURL, &r.OnDutyPhysician,
		&r.SessionID, &r.DispatcherID,
	}
}

// IsEmpty reports whether the record carries no extracted information beyond
// the default triage tier.
func (r Record) IsEmpty() bool {
	for _, p := range r.fieldRefs() {
		if *p != "" {
			return false
		}
	}
	return r.Triage == "" || r.Triage == TriageGreen
}

// FilledFields returns the genuinely populated fields keyed by their wire
// names. Used to build extractor context and should mirror the merge policy:
// empty strings and the default triage tier are not "filled".
func (r Record) FilledFields() map[string]string {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	for k, v := range m {
		if v == "" || (k == "codigo" && v == TriageGreen) {
			delete(m, k)
		}
	}
	return m
}

// Decode parses a JSON object into a Record, rejecting unknown keys so a
// malformed extractor response cannot smuggle arbitrary fields past the
// schema boundary.
func Decode(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var r Record
	if err := dec.Decode(&r); err != nil {
		return Record{}, fmt.Errorf("decode canonical record: %w", err)
	}
	return r, nil
}
