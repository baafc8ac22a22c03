package privacy

import "regexp"

// Category labels. These form the token prefixes written to storage
// ([EMAIL_1], [PERSON_2], ...) and must stay stable: restoration does a
// byte-for-byte match on the bracketed form.
const (
	LabelEmail      = "EMAIL"
	LabelPhone      = "PHONE"
	LabelSSN        = "SSN"
	LabelCreditCard = "CREDIT_CARD"
	LabelIPAddress  = "IP_ADDRESS"
	LabelDOB        = "DOB"
	LabelPerson     = "PERSON"
	LabelAddress    = "ADDRESS"
)

// knownValueDescription is used for metadata entries produced by the
// known-value list rather than a pattern match.
const knownValueDescription = "Known person name"

// DefaultCategories returns the ordered PII category registry. Order is
// significant: earlier categories win when candidate spans overlap.
func DefaultCategories() []Category {
	return []Category{
		{
			Key:         "email",
			Label:       LabelEmail,
			Pattern:     regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
			Description: "Email address",
		},
		{
			Key:         "phone",
			Label:       LabelPhone,
			Pattern:     regexp.MustCompile(`\b(?:\+?1[-.]?)?\(?[0-9]{3}\)?[-.]?[0-9]{3}[-.]?[0-9]{4}\b`),
			Description: "Phone number",
		},
		{
			Key:         "ssn",
			Label:       LabelSSN,
			Pattern:     regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			Description: "Social Security Number",
		},
		{
			Key:         "credit_card",
			Label:       LabelCreditCard,
			Pattern:     regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`),
			Description: "Credit card number",
		},
		{
			Key:         "ip_address",
			Label:       LabelIPAddress,
			Pattern:     regexp.MustCompile(`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`),
			Description: "IP address",
		},
		{
			Key:         "date_of_birth",
			Label:       LabelDOB,
			Pattern:     regexp.MustCompile(`\b(?:0[1-9]|1[0-2])[/-](?:0[1-9]|[12][0-9]|3[01])[/-](?:19|20)\d{2}\b`),
			Description: "Date of birth",
		},
		{
			Key:         "name",
			Label:       LabelPerson,
			Pattern:     regexp.MustCompile(`\b(?:[A-Z][a-z]+ ){1,2}[A-Z][a-z]+\b`),
			Description: "Person name",
		},
		{
			Key:         "address",
			Label:       LabelAddress,
			Pattern:     regexp.MustCompile(`\b\d+\s+[A-Za-z\s]+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr)\b`),
			Description: "Physical address",
		},
	}
}

// tokenForm matches an already-emitted token, e.g. [EMAIL_3]. Used both
// to skip re-matching inside previously redacted text and to derive the
// category label from a stored token.
var tokenForm = regexp.MustCompile(`^\[[A-Z_]+_\d+\]$`)
