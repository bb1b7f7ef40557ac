// Package documents checks submitted documents against a scheme's required labels.
package documents

import (
	"fmt"
	"strings"

	dErrors "aidledger/pkg/domain-errors"
	platformstrings "aidledger/pkg/platform/strings"
)

// Document is one uploaded file as the applicant named it.
type Document struct {
	Name       string `json:"name"`
	StorageRef string `json:"storage_ref"`
}

// MissingDocumentsError lists the labels no submitted document satisfies,
// in requirement order.
type MissingDocumentsError struct {
	Missing []string
}

func (e *MissingDocumentsError) Error() string {
	return "missing required documents: " + strings.Join(e.Missing, ", ")
}

// Satisfies reports whether a document name contains a required label,
// ignoring case. Separators are matched literally, so "aadhaar_card.pdf"
// does not cover "Aadhaar Card".
func Satisfies(name, label string) bool {
	return platformstrings.ContainsFold(name, label)
}

// Validate returns a *MissingDocumentsError when any required label is not
// covered by at least one submitted document name.
func Validate(required []string, submitted []Document) error {
	var missing []string
	for _, label := range required {
		found := false
		for _, doc := range submitted {
			if Satisfies(doc.Name, label) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, label)
		}
	}
	if len(missing) > 0 {
		return &MissingDocumentsError{Missing: missing}
	}
	return nil
}

// CheckEntries rejects documents without a name or storage reference.
func CheckEntries(submitted []Document) error {
	var invalid []string
	for i, doc := range submitted {
		if strings.TrimSpace(doc.Name) == "" {
			invalid = append(invalid, fmt.Sprintf("documents[%d].name", i))
		}
		if strings.TrimSpace(doc.StorageRef) == "" {
			invalid = append(invalid, fmt.Sprintf("documents[%d].storage_ref", i))
		}
	}
	if len(invalid) > 0 {
		return dErrors.New(dErrors.CodeValidation, "invalid documents").WithDetail("fields", invalid)
	}
	return nil
}
