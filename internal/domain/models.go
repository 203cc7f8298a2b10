package domain

import (
	"encoding/json"
	"time"
)

// Attachment is one binary part of an inbound message.
type Attachment struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// InboundMessage is a raw inbound unit: envelope metadata plus attachments.
type InboundMessage struct {
	Source      string       `json:"source"`
	MessageID   string       `json:"message_id,omitempty"`
	Sender      string       `json:"sender"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body,omitempty"`
	ReceivedAt  time.Time    `json:"received_at"`
	Attachments []Attachment `json:"attachments"`
}

// OriginalRequest is the registration payload carried forward unmodified
// through every stage and retry.
type OriginalRequest struct {
	Source     string    `json:"source"`
	MessageID  string    `json:"message_id,omitempty"`
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject"`
	ReceivedAt time.Time `json:"received_at"`
	FileName   string    `json:"file_name"`
}

// Document is one PDF undergoing extraction. It is passed by value between
// stages; Content is shared and never written after registration.
type Document struct {
	ID              string          `json:"document_id"`
	GroupID         string          `json:"group_id,omitempty"`
	RequestID       string          `json:"request_id"`
	Sender          string          `json:"sender"`
	Subject         string          `json:"subject"`
	ReceivedAt      time.Time       `json:"received_at"`
	FileName        string          `json:"file_name"`
	ContentType     string          `json:"content_type"`
	Content         []byte          `json:"-"`
	PageCount       int             `json:"page_count"`
	DocumentType    DocumentType    `json:"document_type_guess"`
	Language        string          `json:"language"`
	RetryCount      int             `json:"retry_count"`
	State           DocumentState   `json:"state"`
	FallbackApplied bool            `json:"fallback_applied"`
	OriginalRequest OriginalRequest `json:"original_request"`
	Lifecycle       LifecycleLog    `json:"lifecycle"`
}

// BoundingBox is x1, y1, x2, y2 in page coordinates.
type BoundingBox [4]float64

// Location points at the region of a page a field was read from.
type Location struct {
	Page int         `json:"page"`
	BBox BoundingBox `json:"bbox"`
}

// Verification records the outcome of the secondary pass for one field.
type Verification struct {
	Verified          bool    `json:"verified"`
	MatchesInitial    bool    `json:"matches_initial"`
	OriginalValue     Value   `json:"original_value,omitempty"`
	CropPath          string  `json:"crop_path,omitempty"`
	ContextConfidence float64 `json:"context_confidence"`
	DetailConfidence  float64 `json:"detail_confidence,omitempty"`
	FinalConfidence   float64 `json:"final_confidence"`
	Reason            string  `json:"reason,omitempty"`
	Failed            bool    `json:"failed,omitempty"`
}

// FieldExtraction is one extracted attribute of one product.
type FieldExtraction struct {
	Name         string        `json:"name"`
	Value        Value         `json:"value"`
	Confidence   *float64      `json:"confidence,omitempty"`
	Location     *Location     `json:"location,omitempty"`
	Verification *Verification `json:"verification,omitempty"`
}

// Product is an ordered collection of field extractions for one material item.
type Product struct {
	Index             int               `json:"index"`
	Fields            []FieldExtraction `json:"fields"`
	AverageConfidence float64           `json:"average_confidence"`
}

// Field returns the extraction with the given name, or nil.
func (p *Product) Field(name string) *FieldExtraction {
	for i := range p.Fields {
		if p.Fields[i].Name == name {
			return &p.Fields[i]
		}
	}
	return nil
}

// Metadata builds the typed view of the product's schema fields.
func (p *Product) Metadata() Metadata {
	var m Metadata
	for i := range p.Fields {
		m.Set(p.Fields[i].Name, p.Fields[i].Value)
	}
	return m
}

// Clone returns a deep copy whose field slice can be modified independently.
func (p Product) Clone() Product {
	fields := make([]FieldExtraction, len(p.Fields))
	for i, f := range p.Fields {
		if f.Confidence != nil {
			c := *f.Confidence
			f.Confidence = &c
		}
		if f.Location != nil {
			l := *f.Location
			f.Location = &l
		}
		if f.Verification != nil {
			v := *f.Verification
			f.Verification = &v
		}
		fields[i] = f
	}
	p.Fields = fields
	return p
}

// ValidationResult is the output of the schema validator for one product.
type ValidationResult struct {
	IsValid               bool     `json:"is_valid"`
	MissingRequiredFields []string `json:"missing_required_fields"`
	FormatErrors          []string `json:"format_errors"`
	HasMVS                bool     `json:"has_mvs"`
	Errors                []string `json:"errors"`
}

// FieldStatus is the computed validation state of a single field.
type FieldStatus struct {
	Status   FieldValidationStatus `json:"status"`
	Messages []string              `json:"messages"`
}

// ProductResult is the per-product outcome delivered with the result.
type ProductResult struct {
	Index         int                     `json:"index"`
	Status        ProductStatus           `json:"status"`
	Action        Action                  `json:"action"`
	Metadata      Metadata                `json:"metadata"`
	Fields        []FieldExtraction       `json:"fields,omitempty"`
	Confidence    float64                 `json:"confidence"`
	Validation    ValidationResult        `json:"validation"`
	FieldStatuses map[string]*FieldStatus `json:"field_statuses,omitempty"`
	ErrorKind     ErrorKind               `json:"error_kind,omitempty"`
	Error         string                  `json:"error,omitempty"`
}

// Result is the terminal record of one document.
type Result struct {
	DocumentID        string          `json:"document_id" db:"document_id"`
	GroupID           string          `json:"group_id,omitempty" db:"group_id"`
	RequestID         string          `json:"request_id" db:"request_id"`
	Sender            string          `json:"sender" db:"sender"`
	Subject           string          `json:"subject" db:"subject"`
	FileName          string          `json:"file_name" db:"file_name"`
	Language          string          `json:"language" db:"language"`
	DocumentType      DocumentType    `json:"document_type_guess" db:"document_type"`
	LayoutSignature   string          `json:"layout_signature,omitempty" db:"layout_signature"`
	State             DocumentState   `json:"state" db:"state"`
	Outcome           Outcome         `json:"outcome" db:"outcome"`
	Confidence        float64         `json:"confidence" db:"confidence"`
	RetryCount        int             `json:"retry_count" db:"retry_count"`
	FallbackApplied   bool            `json:"fallback_applied" db:"fallback_applied"`
	Model             string          `json:"model,omitempty" db:"model"`
	ErrorKind         ErrorKind       `json:"error_kind,omitempty" db:"error_kind"`
	ErrorSummary      string          `json:"error_summary,omitempty" db:"error_summary"`
	ArchiveURI        string          `json:"archive_uri,omitempty" db:"archive_uri"`
	Products          []ProductResult `json:"products" db:"-"`
	ProcessingSummary json.RawMessage `json:"processing_summary,omitempty" db:"-"`
	Lifecycle         LifecycleLog    `json:"lifecycle" db:"-"`
	ReceivedAt        time.Time       `json:"received_at" db:"received_at"`
	CompletedAt       time.Time       `json:"completed_at" db:"completed_at"`
}

// Delivered returns the products that reached the outbound result.
func (r *Result) Delivered() []ProductResult {
	var out []ProductResult
	for _, p := range r.Products {
		if p.Status != ProductStatusFailed {
			out = append(out, p)
		}
	}
	return out
}

// Rejected returns the products that were itemized as failures.
func (r *Result) Rejected() []ProductResult {
	var out []ProductResult
	for _, p := range r.Products {
		if p.Status == ProductStatusFailed {
			out = append(out, p)
		}
	}
	return out
}

// NotificationAttachment is a base64 encoded file attached to a notification.
type NotificationAttachment struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data string `json:"data"`
}

// Notification is the delivery record handed to the notification channel.
type Notification struct {
	DocumentID  string                   `json:"document_id"`
	To          string                   `json:"to"`
	Subject     string                   `json:"subject"`
	Body        string                   `json:"body"`
	Attachments []NotificationAttachment `json:"attachments"`
}

// Feedback is a reviewer's verdict on a delivered result.
type Feedback struct {
	DocumentID string          `json:"document_id" db:"document_id"`
	Verdict    FeedbackVerdict `json:"verdict" db:"verdict"`
	Comment    string          `json:"comment,omitempty" db:"comment"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}
