package section

import (
	"fmt"
	"path"
	"strings"

	"github.com/jwalitptl/clinic-reports/internal/model"
)

func single(key model.SectionKey, title, category string, fields []Field, att *Attachment) Section {
	return Section{
		Key:   key,
		Title: title,
		Entries: []Entry{{
			Category:   category,
			Fields:     fields,
			Attachment: att,
		}},
	}
}

func collection(req *model.ReportRequest, key model.SectionKey, title, noun string, names []string, fields func(model.Record) []Field) Section {
	recs := req.Collection(names...)
	s := Section{Key: key, Title: title, Entries: make([]Entry, 0, len(recs))}
	for i, rec := range recs {
		label := fmt.Sprintf("%s %d", noun, i+1)
		s.Entries = append(s.Entries, Entry{
			Category: label,
			Heading:  label,
			Fields:   fields(rec),
		})
	}
	return s
}

func nameOf(rec model.Record) string {
	if name := rec.FullName(); name != "" {
		return name
	}
	return model.NotSpecified
}

func profileImage(rec model.Record) *Attachment {
	url := rec.String("profile_image_url", "profile_image", "avatar_url", "photo_url")
	if url == "" {
		return nil
	}
	return &Attachment{
		Ref:  model.AttachmentReference{URL: url, BucketHint: rec.String("profile_image_bucket")},
		Kind: model.AttachmentProfileImage,
	}
}

func personFields(rec model.Record) []Field {
	return []Field{
		{Label: "Full Name", Value: nameOf(rec)},
		{Label: "Date of Birth", Value: rec.Date(model.NotAvailable, "date_of_birth", "dob")},
		{Label: "Gender", Value: rec.Text(model.NotSpecified, "gender")},
		{Label: "Email", Value: rec.Text(model.NotProvided, "email")},
		{Label: "Phone", Value: rec.Text(model.NotProvided, "phone", "phone_number")},
	}
}

func patientBasicInfo(req *model.ReportRequest) Section {
	rec := req.Subject
	fields := append(personFields(rec),
		Field{Label: "Address", Value: rec.Text(model.NotProvided, "address")},
		Field{Label: "Blood Type", Value: rec.Text(model.NotSpecified, "blood_type")},
		Field{Label: "Medical Notes", Value: rec.Text(model.NotSpecified, "medical_notes", "notes"), Long: true},
	)
	return single(model.SectionBasicInfo, "Basic Information", "Personal Info", fields, profileImage(rec))
}

func clinicianBasicInfo(req *model.ReportRequest) Section {
	rec := req.Subject
	fields := []Field{
		{Label: "Full Name", Value: nameOf(rec)},
		{Label: "Specialty", Value: rec.Text(model.NotSpecified, "specialty", "specialization")},
		{Label: "License Number", Value: rec.Text(model.NotProvided, "license_number")},
		{Label: "Email", Value: rec.Text(model.NotProvided, "email")},
		{Label: "Phone", Value: rec.Text(model.NotProvided, "phone", "phone_number")},
		{Label: "Department", Value: rec.Text(model.NotSpecified, "department")},
		{Label: "Bio", Value: rec.Text(model.NotSpecified, "bio"), Long: true},
	}
	return single(model.SectionBasicInfo, "Clinician Information", "Personal Info", fields, profileImage(rec))
}

func emergencyContact(req *model.ReportRequest) Section {
	rec := req.Subject.Object("emergency_contact")
	name, relationship, phone := "", "", ""
	if rec != nil {
		name = rec.FullName()
		relationship = rec.String("relationship")
		phone = rec.String("phone", "phone_number")
	}
	if name == "" {
		name = req.Subject.String("emergency_contact_name")
	}
	if relationship == "" {
		relationship = req.Subject.String("emergency_contact_relationship")
	}
	if phone == "" {
		phone = req.Subject.String("emergency_contact_phone")
	}

	fields := []Field{
		{Label: "Name", Value: orDefault(name, model.NotProvided)},
		{Label: "Relationship", Value: orDefault(relationship, model.NotSpecified)},
		{Label: "Phone", Value: orDefault(phone, model.NotProvided)},
	}
	return single(model.SectionEmergencyContact, "Emergency Contact", "Emergency Contact", fields, nil)
}

func allergies(req *model.ReportRequest) Section {
	return collection(req, model.SectionAllergies, "Allergies", "Allergy", []string{"allergies"}, func(rec model.Record) []Field {
		return []Field{
			{Label: "Allergen", Value: rec.Text(model.NotSpecified, "allergen", "name")},
			{Label: "Reaction", Value: rec.Text(model.NotSpecified, "reaction")},
			{Label: "Severity", Value: rec.Text(model.NotSpecified, "severity")},
			{Label: "Notes", Value: rec.Text(model.NotSpecified, "notes"), Long: true},
		}
	})
}

func supplements(req *model.ReportRequest) Section {
	return collection(req, model.SectionSupplements, "Supplements", "Supplement", []string{"supplements"}, func(rec model.Record) []Field {
		return []Field{
			{Label: "Name", Value: rec.Text(model.NotSpecified, "name", "supplement_name")},
			{Label: "Dosage", Value: rec.Text(model.NotSpecified, "dosage")},
			{Label: "Frequency", Value: rec.Text(model.NotSpecified, "frequency")},
			{Label: "Notes", Value: rec.Text(model.NotSpecified, "notes"), Long: true},
		}
	})
}

func prescriptions(req *model.ReportRequest) Section {
	return collection(req, model.SectionPrescriptions, "Prescriptions", "Prescription", []string{"prescriptions"}, func(rec model.Record) []Field {
		return []Field{
			{Label: "Medication", Value: rec.Text(model.NotSpecified, "medication_name", "medication", "name")},
			{Label: "Dosage", Value: rec.Text(model.NotSpecified, "dosage")},
			{Label: "Frequency", Value: rec.Text(model.NotSpecified, "frequency")},
			{Label: "Start Date", Value: rec.Date(model.NotAvailable, "start_date")},
			{Label: "End Date", Value: rec.Date(model.NotAvailable, "end_date")},
			{Label: "Prescribed By", Value: rec.Text(model.NotSpecified, "prescribed_by", "clinician_name")},
			{Label: "Instructions", Value: rec.Text(model.NotSpecified, "instructions", "notes"), Long: true},
		}
	})
}

// appointmentsWith labels the counterpart column: the clinician on a patient
// report, the patient on a clinician report.
func appointmentsWith(label, nameKey, nested string) func(*model.ReportRequest) Section {
	return func(req *model.ReportRequest) Section {
		return collection(req, model.SectionAppointments, "Appointments", "Appointment", []string{"appointments"}, func(rec model.Record) []Field {
			who := rec.String(nameKey)
			if who == "" {
				if obj := rec.Object(nested); obj != nil {
					who = obj.FullName()
				}
			}
			return []Field{
				{Label: "Date", Value: rec.Date(model.NotAvailable, "appointment_date", "date", "start_time")},
				{Label: "Time", Value: rec.Time(model.NotAvailable, "appointment_time", "time", "start_time")},
				{Label: "Type", Value: rec.Text(model.NotSpecified, "appointment_type", "type")},
				{Label: "Status", Value: rec.Text(model.NotSpecified, "status")},
				{Label: label, Value: orDefault(who, model.NotSpecified)},
				{Label: "Reason", Value: rec.Text(model.NotSpecified, "reason"), Long: true},
				{Label: "Notes", Value: rec.Text(model.NotSpecified, "notes"), Long: true},
			}
		})
	}
}

func labRecords(req *model.ReportRequest) Section {
	recs := req.Collection("labRecords", "lab_records")
	s := Section{Key: model.SectionLabRecords, Title: "Lab Records", Entries: make([]Entry, 0, len(recs))}
	for i, rec := range recs {
		label := fmt.Sprintf("Lab Record %d", i+1)
		entry := Entry{
			Category: label,
			Heading:  label,
			Fields: []Field{
				{Label: "Test Name", Value: rec.Text(model.NotSpecified, "test_name", "name", "title")},
				{Label: "Date", Value: rec.Date(model.NotAvailable, "test_date", "date", "created_at")},
				{Label: "Result", Value: rec.Text(model.NotSpecified, "result", "results"), Long: true},
				{Label: "Notes", Value: rec.Text(model.NotSpecified, "notes"), Long: true},
			},
		}

		url := rec.String("file_url", "file_path", "attachment_url")
		attachment := "None"
		if url != "" {
			entry.Attachment = &Attachment{
				Ref:  model.AttachmentReference{URL: url, BucketHint: rec.String("bucket")},
				Kind: model.AttachmentLabFile,
			}
			attachment = fileName(url)
		}
		entry.Fields = append(entry.Fields, Field{Label: "Attachment", Value: attachment})
		s.Entries = append(s.Entries, entry)
	}
	return s
}

func appointmentInfo(req *model.ReportRequest) Section {
	rec := req.Subject
	fields := []Field{
		{Label: "Date", Value: rec.Date(model.NotAvailable, "appointment_date", "date", "start_time")},
		{Label: "Time", Value: rec.Time(model.NotAvailable, "appointment_time", "time", "start_time")},
		{Label: "Type", Value: rec.Text(model.NotSpecified, "appointment_type", "type")},
		{Label: "Status", Value: rec.Text(model.NotSpecified, "status")},
		{Label: "Reason", Value: rec.Text(model.NotSpecified, "reason"), Long: true},
		{Label: "Notes", Value: rec.Text(model.NotSpecified, "notes"), Long: true},
	}
	return single(model.SectionAppointmentInfo, "Appointment Details", "Appointment Info", fields, nil)
}

func patientInfo(req *model.ReportRequest) Section {
	rec := related(req, "patient", "patient")
	return single(model.SectionPatientInfo, "Patient Information", "Patient Info", personFields(rec), nil)
}

func clinicianInfo(req *model.ReportRequest) Section {
	rec := related(req, "clinician", "clinician")
	fields := []Field{
		{Label: "Full Name", Value: nameOf(rec)},
		{Label: "Specialty", Value: rec.Text(model.NotSpecified, "specialty", "specialization")},
		{Label: "Email", Value: rec.Text(model.NotProvided, "email")},
		{Label: "Phone", Value: rec.Text(model.NotProvided, "phone", "phone_number")},
	}
	return single(model.SectionClinicianInfo, "Clinician Information", "Clinician Info", fields, nil)
}

var vitalSigns = []struct {
	label string
	keys  []string
	unit  string
}{
	{"Blood Pressure", []string{"blood_pressure"}, "mmHg"},
	{"Heart Rate", []string{"heart_rate", "pulse"}, "bpm"},
	{"Temperature", []string{"temperature"}, "°C"},
	{"Respiratory Rate", []string{"respiratory_rate"}, "breaths/min"},
	{"Oxygen Saturation", []string{"oxygen_saturation", "spo2"}, "%"},
	{"Weight", []string{"weight"}, "kg"},
	{"Height", []string{"height"}, "cm"},
}

func vitals(req *model.ReportRequest) Section {
	rec := req.Subject.Object("vitals")
	if rec == nil {
		rec = req.Subject
	}

	fields := make([]Field, 0, len(vitalSigns))
	for _, v := range vitalSigns {
		fields = append(fields, Field{Label: v.label, Value: withUnit(rec, v.unit, v.keys...)})
	}
	return single(model.SectionVitals, "Vitals", "Vitals", fields, nil)
}

// withUnit appends the unit to bare numeric readings only.
func withUnit(rec model.Record, unit string, keys ...string) string {
	raw, ok := rec.Raw(keys...)
	value := rec.String(keys...)
	if value == "" {
		return model.NotAvailable
	}
	if _, numeric := raw.(float64); ok && numeric {
		if unit == "%" {
			return value + unit
		}
		return value + " " + unit
	}
	return value
}

func fileName(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	if base := path.Base(ref); base != "." && base != "/" {
		return base
	}
	return ref
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
