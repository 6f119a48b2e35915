package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type ReportKind string

const (
	ReportKindPatient     ReportKind = "patient"
	ReportKindClinician   ReportKind = "clinician"
	ReportKindAppointment ReportKind = "appointment"
)

// Entity is the title-cased kind used in titles and filenames.
func (k ReportKind) Entity() string {
	switch k {
	case ReportKindPatient:
		return "Patient"
	case ReportKindClinician:
		return "Clinician"
	case ReportKindAppointment:
		return "Appointment"
	default:
		return "Clinic"
	}
}

func ParseReportKind(s string) (ReportKind, error) {
	switch k := ReportKind(strings.ToLower(strings.TrimSpace(s))); k {
	case ReportKindPatient, ReportKindClinician, ReportKindAppointment:
		return k, nil
	default:
		return "", fmt.Errorf("unknown report kind %q", s)
	}
}

type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/pdf"
}

type SectionKey string

const (
	SectionBasicInfo        SectionKey = "basicInfo"
	SectionEmergencyContact SectionKey = "emergencyContact"
	SectionAllergies        SectionKey = "allergies"
	SectionSupplements      SectionKey = "supplements"
	SectionPrescriptions    SectionKey = "prescriptions"
	SectionAppointments     SectionKey = "appointments"
	SectionLabRecords       SectionKey = "labRecords"
	SectionVitals           SectionKey = "vitals"
	SectionAppointmentInfo  SectionKey = "appointmentInfo"
	SectionPatientInfo      SectionKey = "patientInfo"
	SectionClinicianInfo    SectionKey = "clinicianInfo"
)

// ExportOptions is the sparse section mask; absent keys are disabled.
type ExportOptions map[SectionKey]bool

func (o ExportOptions) Enabled(key SectionKey) bool {
	return o[key]
}

// EnabledKeys returns the enabled keys sorted for stable logging.
func (o ExportOptions) EnabledKeys() []string {
	keys := make([]string, 0, len(o))
	for k, v := range o {
		if v {
			keys = append(keys, string(k))
		}
	}
	sort.Strings(keys)
	return keys
}

// ReportRequest is the immutable input to a single report generation.
type ReportRequest struct {
	Kind               ReportKind
	Format             Format
	Subject            Record
	RelatedCollections map[string][]Record
	ExportOptions      ExportOptions
}

// Collection returns the named related collection; absent collections are empty.
func (r *ReportRequest) Collection(names ...string) []Record {
	for _, name := range names {
		if recs := r.RelatedCollections[name]; len(recs) > 0 {
			return recs
		}
	}
	return nil
}

// ReportPayload is the JSON body accepted by the report endpoints. Every
// top-level key other than the reserved ones is a related collection.
type ReportPayload struct {
	Subject       Record              `json:"subject" binding:"required"`
	ExportOptions map[string]bool     `json:"exportOptions" binding:"required"`
	ExportFormat  string              `json:"exportFormat" binding:"omitempty,oneof=csv pdf CSV PDF"`
	Collections   map[string][]Record `json:"-"`
}

var reservedPayloadKeys = map[string]bool{
	"subject":       true,
	"exportOptions": true,
	"exportFormat":  true,
}

func (p *ReportPayload) UnmarshalJSON(data []byte) error {
	type plain ReportPayload
	var base plain
	if err := json.Unmarshal(data, &base); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	base.Collections = make(map[string][]Record)
	for key, value := range raw {
		if reservedPayloadKeys[key] {
			continue
		}
		records, ok := decodeCollection(value)
		if !ok {
			continue
		}
		base.Collections[key] = records
	}

	*p = ReportPayload(base)
	return nil
}

// decodeCollection accepts an array of objects or a single object. Anything
// else (null, scalars, arrays of scalars) is ignored.
func decodeCollection(value json.RawMessage) ([]Record, bool) {
	var many []Record
	if err := json.Unmarshal(value, &many); err == nil {
		out := many[:0]
		for _, rec := range many {
			if rec != nil {
				out = append(out, rec)
			}
		}
		return out, true
	}

	var one Record
	if err := json.Unmarshal(value, &one); err == nil && one != nil {
		return []Record{one}, true
	}
	return nil, false
}

// ToRequest converts the bound payload. An empty format means PDF.
func (p *ReportPayload) ToRequest(kind ReportKind) *ReportRequest {
	opts := make(ExportOptions, len(p.ExportOptions))
	for k, v := range p.ExportOptions {
		opts[SectionKey(k)] = v
	}

	format := FormatPDF
	if strings.EqualFold(p.ExportFormat, string(FormatCSV)) {
		format = FormatCSV
	}

	collections := p.Collections
	if collections == nil {
		collections = map[string][]Record{}
	}

	return &ReportRequest{
		Kind:               kind,
		Format:             format,
		Subject:            p.Subject,
		RelatedCollections: collections,
		ExportOptions:      opts,
	}
}
