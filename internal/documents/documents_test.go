package documents

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "aidledger/pkg/domain-errors"
)

var required = []string{"Aadhaar Card", "Income Certificate", "Marksheet"}

func docs(names ...string) []Document {
	out := make([]Document, 0, len(names))
	for _, n := range names {
		out = append(out, Document{Name: n, StorageRef: "blob://" + n})
	}
	return out
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		submitted []Document
		missing   []string
	}{
		{"all labels covered", docs("Aadhaar Card", "Income Certificate", "Marksheet"), nil},
		{"case-insensitive substring", docs("my AADHAAR CARD scan", "income certificate 2025", "class 12 marksheet"), nil},
		{"separators are not spaces", docs("aadhaar_card.pdf", "Income-Certificate.png", "marksheet.jpg"), []string{"Aadhaar Card", "Income Certificate"}},
		{"one document may cover several labels", docs("Aadhaar Card + Income Certificate + Marksheet"), nil},
		{"missing labels in requirement order", docs("Marksheet"), []string{"Aadhaar Card", "Income Certificate"}},
		{"nothing submitted", nil, required},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(required, tt.submitted)
			if tt.missing == nil {
				assert.NoError(t, err)
				return
			}
			var mde *MissingDocumentsError
			require.True(t, errors.As(err, &mde))
			assert.Equal(t, tt.missing, mde.Missing)
		})
	}
}

// containsLower is a plain ASCII reference for label matching.
func containsLower(name, label string) bool {
	return strings.TrimSpace(label) != "" && strings.Contains(strings.ToLower(name), strings.ToLower(label))
}

// Validate succeeds iff every label is a case-insensitive substring of some
// document name.
func TestValidateAgreesWithSubstringMatch(t *testing.T) {
	labels := [][]string{
		required,
		{"A.B"},
		{"income certificate"},
		{"Card"},
	}
	names := [][]string{
		{},
		{"Aadhaar"},
		{"Aadhaar Card"},
		{"Aadhaar Card", "Marksheet"},
		{"Income Certificate", "marksheet", "aadhaar card"},
		{"income_certificate.pdf", "aadhaar-card", "Marksheet"},
		{"a b"},
		{"a.b.pdf"},
		{"card"},
	}
	for _, req := range labels {
		for _, set := range names {
			submitted := docs(set...)
			want := true
			for _, label := range req {
				covered := false
				for _, d := range submitted {
					covered = covered || containsLower(d.Name, label)
				}
				want = want && covered
			}
			assert.Equal(t, want, Validate(req, submitted) == nil, "labels %v, names %v", req, set)
		}
	}
}

func TestSeparatorsMatchLiterally(t *testing.T) {
	assert.False(t, Satisfies("income_certificate.pdf", "Income Certificate"))
	assert.False(t, Satisfies("a b", "A.B"))
	assert.True(t, Satisfies("scan-A.B.pdf", "a.b"))
}

func TestNoRequirementsAlwaysPass(t *testing.T) {
	assert.NoError(t, Validate(nil, nil))
}

func TestEmptyNameNeverSatisfies(t *testing.T) {
	assert.False(t, Satisfies("", "Aadhaar Card"))
	assert.False(t, Satisfies("Aadhaar Card", " "))
}

func TestCheckEntries(t *testing.T) {
	err := CheckEntries([]Document{{Name: "Aadhaar", StorageRef: "s3://a"}, {Name: " ", StorageRef: ""}})
	de, ok := dErrors.As(err)
	require.True(t, ok)
	assert.Equal(t, []string{"documents[1].name", "documents[1].storage_ref"}, de.Details["fields"])
}
