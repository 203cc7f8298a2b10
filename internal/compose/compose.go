// Package compose turns a terminal document result into the delivery record
// handed to the notification channel. It only formats; every decision is
// already recorded in the result.
package compose

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"materialflow/internal/domain"
)

const (
	titleSuccess = "✅ Material Metadata Extracted"
	titleFlagged = "⚠️ Material Metadata Needs Review"
	titleFailed  = "❌ Material Document Processing Failed"

	attachmentFull    = "extracted_metadata.json"
	attachmentPartial = "partial_metadata.json"

	maxListed       = 5
	maxFailedListed = 3

	defaultRecipient = "materials-team@example.com"
	signature        = "Best regards,\nMaterials Intake System"
)

// TokenSigner issues the feedback token embedded in delivered results.
type TokenSigner interface {
	Sign(documentID string) (string, error)
}

// Composer builds notifications. The zero value composes without feedback links.
type Composer struct {
	feedbackURL string
	signer      TokenSigner
}

// NewComposer creates a Composer. signer may be nil, in which case no
// feedback link is added.
func NewComposer(feedbackURL string, signer TokenSigner) *Composer {
	return &Composer{feedbackURL: feedbackURL, signer: signer}
}

// Compose builds the notification for a terminal result.
func (c *Composer) Compose(result *domain.Result) (*domain.Notification, error) {
	to := result.Sender
	if to == "" {
		to = defaultRecipient
	}
	n := &domain.Notification{
		DocumentID:  result.DocumentID,
		To:          to,
		Attachments: []domain.NotificationAttachment{},
	}

	delivered := result.Delivered()
	if result.Outcome == domain.OutcomeFailed || len(delivered) == 0 {
		n.Subject = subject(titleFailed, result.Subject)
		n.Body = failureBody(to, result)
		return n, nil
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Dear %s,\n\n", to)

	name := attachmentFull
	if result.Outcome == domain.OutcomeFlagged || anyFlagged(delivered) {
		n.Subject = subject(titleFlagged, result.Subject)
		name = attachmentPartial
		body.WriteString("We've processed your material document, but some information requires review:\n\n")
		for _, p := range delivered {
			if p.Status == domain.ProductStatusFlagged {
				fmt.Fprintf(&body, "- %s: %s\n", productName(p), issue(p))
			}
		}
		body.WriteString("\nWe've included the partial extraction for your reference.\n\n")
	} else {
		title := titleSuccess
		if len(delivered) > 1 {
			title += fmt.Sprintf(" (%d products)", len(delivered))
		}
		n.Subject = subject(title, result.Subject)
		if result.Outcome == domain.OutcomePartial {
			name = attachmentPartial
		}
		if len(delivered) == 1 {
			body.WriteString("Your material document has been successfully processed. The extracted metadata is attached in JSON format.\n\n")
		} else {
			fmt.Fprintf(&body, "%d products were extracted and their metadata is attached in JSON format.\n\n", len(delivered))
		}
	}

	body.WriteString(productList(delivered))
	fmt.Fprintf(&body, "\nConfidence: %s (%.2f)\n", domain.BucketFor(result.Confidence), result.Confidence)
	body.WriteString(notes(result, delivered))

	link, err := c.feedbackLink(result.DocumentID)
	if err != nil {
		return nil, err
	}
	if link != "" {
		fmt.Fprintf(&body, "\nTo provide feedback or corrections, please visit: %s\n", link)
	}
	fmt.Fprintf(&body, "\nDocument ID: %s\n\n%s", result.DocumentID, signature)
	n.Body = body.String()

	data, err := attachmentData(delivered)
	if err != nil {
		return nil, err
	}
	n.Attachments = append(n.Attachments, domain.NotificationAttachment{
		Name: name,
		Type: "application/json",
		Data: base64.StdEncoding.EncodeToString(data),
	})
	return n, nil
}

func (c *Composer) feedbackLink(documentID string) (string, error) {
	if c.signer == nil || c.feedbackURL == "" {
		return "", nil
	}
	token, err := c.signer.Sign(documentID)
	if err != nil {
		return "", fmt.Errorf("signing feedback token: %w", err)
	}
	return c.feedbackURL + "?token=" + url.QueryEscape(token), nil
}

func subject(title, original string) string {
	if original = strings.TrimSpace(original); original != "" {
		return title + " - " + original
	}
	return title
}

func productName(p domain.ProductResult) string {
	if p.Metadata.Name.Present() {
		return p.Metadata.Name.String()
	}
	return "Unnamed Material"
}

func productBrand(p domain.ProductResult) string {
	if p.Metadata.Brand.Present() {
		return p.Metadata.Brand.String()
	}
	return "Unspecified Brand"
}

func productList(products []domain.ProductResult) string {
	var b strings.Builder
	if len(products) == 1 {
		fmt.Fprintf(&b, "Material: %s\nBrand: %s\n", productName(products[0]), productBrand(products[0]))
		return b.String()
	}
	b.WriteString("Products:\n")
	listed := min(len(products), maxListed)
	for i := 0; i < listed; i++ {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, productName(products[i]), productBrand(products[i]))
	}
	if len(products) > listed {
		fmt.Fprintf(&b, "... and %d more\n", len(products)-listed)
	}
	return b.String()
}

func anyFlagged(products []domain.ProductResult) bool {
	for _, p := range products {
		if p.Status == domain.ProductStatusFlagged {
			return true
		}
	}
	return false
}

func issue(p domain.ProductResult) string {
	if len(p.Validation.Errors) > 0 {
		return strings.Join(p.Validation.Errors, "; ")
	}
	if p.Error != "" {
		return p.Error
	}
	return fmt.Sprintf("low confidence (%.2f)", p.Confidence)
}

func notes(result *domain.Result, delivered []domain.ProductResult) string {
	var b strings.Builder
	for _, p := range delivered {
		if p.Status == domain.ProductStatusFallback {
			b.WriteString("\nNote: Simplified metadata extracted for some products due to confidence thresholds.\n")
			break
		}
	}
	if rejected := result.Rejected(); len(rejected) > 0 {
		fmt.Fprintf(&b, "\nNote: %d product(s) could not be fully verified and were excluded from the results.\n", len(rejected))
	}
	return b.String()
}

func failureBody(to string, result *domain.Result) string {
	reason := result.ErrorSummary
	if reason == "" {
		reason = "Unknown error occurred during processing"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\nWe encountered an error while processing your material document:\n\n%s\n\n", to, reason)

	if rejected := result.Rejected(); len(rejected) > 0 {
		fmt.Fprintf(&b, "%d product(s) failed processing:\n", len(rejected))
		listed := min(len(rejected), maxFailedListed)
		for _, p := range rejected[:listed] {
			cause := p.Error
			if cause == "" {
				cause = "Validation failed"
			}
			fmt.Fprintf(&b, "- %s: %s\n", productName(p), cause)
		}
		if len(rejected) > listed {
			fmt.Fprintf(&b, "... and %d more\n", len(rejected)-listed)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Document ID: %s\n\nPlease review the document and try again. If the issue persists, contact our support team.\n\n%s",
		result.DocumentID, signature)
	return b.String()
}

// attachmentData serializes the delivered metadata: one object for a single
// product, an array otherwise.
func attachmentData(products []domain.ProductResult) ([]byte, error) {
	var v interface{}
	if len(products) == 1 {
		v = products[0].Metadata
	} else {
		all := make([]domain.Metadata, len(products))
		for i, p := range products {
			all[i] = p.Metadata
		}
		v = all
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling attachment: %w", err)
	}
	return data, nil
}
