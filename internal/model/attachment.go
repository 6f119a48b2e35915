package model

// AttachmentReference points at a stored file. It is resolved per request and
// never persisted.
type AttachmentReference struct {
	URL        string `json:"url"`
	BucketHint string `json:"bucket_hint,omitempty"`
}

// AttachmentKind is the asset class a section expects.
type AttachmentKind int

const (
	AttachmentProfileImage AttachmentKind = iota
	AttachmentLabFile
)

// Classification is the outcome of resolving an attachment.
type Classification int

const (
	ClassificationUnavailable Classification = iota
	ClassificationImage
	ClassificationEmbeddablePDF
	ClassificationUnsupported
)

func (c Classification) String() string {
	switch c {
	case ClassificationImage:
		return "image"
	case ClassificationEmbeddablePDF:
		return "embeddable_pdf"
	case ClassificationUnsupported:
		return "unsupported"
	default:
		return "unavailable"
	}
}

// ResolvedAttachment carries fetched bytes and their classification. Bytes is
// nil when Classification is unavailable.
type ResolvedAttachment struct {
	Bytes          []byte
	MIMEType       string
	Classification Classification
}

// Unavailable is the zero-value outcome for any failed resolution.
func Unavailable() ResolvedAttachment {
	return ResolvedAttachment{Classification: ClassificationUnavailable}
}
