// Package section turns a report request into the ordered list of enabled,
// populated report sections. Both the tabular exporter and the document
// composer render from this model, so CSV and PDF always agree on content.
package section

import (
	"github.com/jwalitptl/clinic-reports/internal/model"
)

// Field is one label/value pair. Long fields are wrapped as free text.
type Field struct {
	Label string
	Value string
	Long  bool
}

// Attachment is a file a section wants embedded.
type Attachment struct {
	Ref  model.AttachmentReference
	Kind model.AttachmentKind
}

// Entry is a group of fields: the whole body of a singleton section, or one
// element of a collection section.
type Entry struct {
	// Category labels CSV rows, e.g. "Personal Info" or "Allergy 2".
	Category string
	// Heading is the sub-heading drawn above collection elements.
	Heading    string
	Fields     []Field
	Attachment *Attachment
}

// Section is never empty: it has at least one entry and every entry has fields.
type Section struct {
	Key     model.SectionKey
	Title   string
	Entries []Entry
}

type rule struct {
	key     model.SectionKey
	present func(*model.ReportRequest) bool
	build   func(*model.ReportRequest) Section
}

func always(*model.ReportRequest) bool { return true }

func hasCollection(names ...string) func(*model.ReportRequest) bool {
	return func(req *model.ReportRequest) bool {
		return len(req.Collection(names...)) > 0
	}
}

func hasRelated(collection, nested string) func(*model.ReportRequest) bool {
	return func(req *model.ReportRequest) bool {
		return related(req, collection, nested) != nil
	}
}

var plans = map[model.ReportKind][]rule{
	model.ReportKindPatient: {
		{model.SectionBasicInfo, always, patientBasicInfo},
		{model.SectionEmergencyContact, always, emergencyContact},
		{model.SectionAllergies, hasCollection("allergies"), allergies},
		{model.SectionSupplements, hasCollection("supplements"), supplements},
		{model.SectionPrescriptions, hasCollection("prescriptions"), prescriptions},
		{model.SectionAppointments, hasCollection("appointments"), appointmentsWith("Clinician", "clinician_name", "clinician")},
		{model.SectionLabRecords, hasCollection("labRecords", "lab_records"), labRecords},
	},
	model.ReportKindClinician: {
		{model.SectionBasicInfo, always, clinicianBasicInfo},
		{model.SectionAppointments, hasCollection("appointments"), appointmentsWith("Patient", "patient_name", "patient")},
	},
	model.ReportKindAppointment: {
		{model.SectionAppointmentInfo, always, appointmentInfo},
		{model.SectionPatientInfo, hasRelated("patient", "patient"), patientInfo},
		{model.SectionClinicianInfo, hasRelated("clinician", "clinician"), clinicianInfo},
		{model.SectionVitals, always, vitals},
		{model.SectionPrescriptions, hasCollection("prescriptions"), prescriptions},
	},
}

// Order returns the fixed section priority list for a report kind.
func Order(kind model.ReportKind) []model.SectionKey {
	rules := plans[kind]
	keys := make([]model.SectionKey, len(rules))
	for i, r := range rules {
		keys[i] = r.key
	}
	return keys
}

// Build evaluates the plan for req.Kind in priority order. Keys that are
// disabled, unknown for the kind, or whose source is empty yield nothing.
func Build(req *model.ReportRequest) []Section {
	var sections []Section
	for _, r := range plans[req.Kind] {
		if !req.ExportOptions.Enabled(r.key) || !r.present(req) {
			continue
		}
		sections = append(sections, r.build(req))
	}
	return sections
}

// related finds a singleton related record: first element of the named
// collection, else a nested object on the subject.
func related(req *model.ReportRequest, collection, nested string) model.Record {
	if recs := req.Collection(collection, collection+"s"); len(recs) > 0 {
		return recs[0]
	}
	return req.Subject.Object(nested)
}

// Attachments lists every attachment in document order: section order, then
// entry order. Resolvers return outcomes aligned with this slice.
func Attachments(sections []Section) []Attachment {
	var out []Attachment
	for _, s := range sections {
		for _, e := range s.Entries {
			if e.Attachment != nil {
				out = append(out, *e.Attachment)
			}
		}
	}
	return out
}
