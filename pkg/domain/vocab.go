package domain

import "regexp"

// Evidence source names. HighConfidenceSources are the curated diagnostic-grade
// providers that feed the automatic confidence count; ExpertReview* names carry
// an explicit rating override when attached by an internal curator.
var (
	HighConfidenceSources = []string{
		"Radboud University Medical Center, Nijmegen",
		"Illumina TruGenome Clinical Sequencing Services",
		"Emory Genetics Laboratory",
		"UKGTN",
		"NHS GMS",
	}

	OtherSources = []string{
		"Eligibility statement prior genetic testing",
		"Research",
		"Other",
		"Literature",
		"Expert list",
		"Expert Review",
	}
)

// Expert review evidence names, one per rating.
const (
	ExpertReviewGreen   = "Expert Review Green"
	ExpertReviewAmber   = "Expert Review Amber"
	ExpertReviewRed     = "Expert Review Red"
	ExpertReviewRemoved = "Expert Review Removed"
)

// ExpertReviewRating maps an expert-review evidence name to its status value.
func ExpertReviewRating(name string) (int, bool) {
	switch name {
	case ExpertReviewGreen:
		return 3, true
	case ExpertReviewAmber:
		return 2, true
	case ExpertReviewRed:
		return 1, true
	case ExpertReviewRemoved:
		return 0, true
	}
	return 0, false
}

// ExpertReviewForRating returns the evidence name carrying the given rating.
func ExpertReviewForRating(r Rating) (string, bool) {
	switch r {
	case RatingGreen:
		return ExpertReviewGreen, true
	case RatingAmber:
		return ExpertReviewAmber, true
	case RatingRed:
		return ExpertReviewRed, true
	}
	return "", false
}

// IsHighConfidenceSource reports membership in the diagnostic-grade whitelist.
func IsHighConfidenceSource(name string) bool {
	for _, s := range HighConfidenceSources {
		if s == name {
			return true
		}
	}
	return false
}

// IsKnownSource reports whether the name is any recognised evidence source.
func IsKnownSource(name string) bool {
	if IsHighConfidenceSource(name) {
		return true
	}
	for _, s := range OtherSources {
		if s == name {
			return true
		}
	}
	_, ok := ExpertReviewRating(name)
	return ok
}

// Long-form rating labels used in serialisations and accepted by importers.
const (
	RatingGreenLabel = "Green List (high evidence)"
	RatingAmberLabel = "I don't know"
	RatingRedLabel   = "Red List (low evidence)"
)

// ParseRating canonicalises either the short code or the long label.
func ParseRating(s string) (Rating, bool) {
	switch s {
	case string(RatingGreen), RatingGreenLabel:
		return RatingGreen, true
	case string(RatingAmber), RatingAmberLabel:
		return RatingAmber, true
	case string(RatingRed), RatingRedLabel:
		return RatingRed, true
	case "":
		return "", true
	}
	return "", false
}

// Label returns the long-form label for a rating.
func (r Rating) Label() string {
	switch r {
	case RatingGreen:
		return RatingGreenLabel
	case RatingAmber:
		return RatingAmberLabel
	case RatingRed:
		return RatingRedLabel
	}
	return ""
}

// ModesOfInheritance is the closed vocabulary for entry and evaluation MOI.
// The trailing option's spelling is kept as published.
var ModesOfInheritance = []string{
	"MONOALLELIC, autosomal or pseudoautosomal, not imprinted",
	"MONOALLELIC, autosomal or pseudoautosomal, maternally imprinted (paternal allele expressed)",
	"MONOALLELIC, autosomal or pseudoautosomal, paternally imprinted (maternal allele expressed)",
	"MONOALLELIC, autosomal or pseudoautosomal, imprinted status unknown",
	"BIALLELIC, autosomal or pseudoautosomal",
	"BOTH monoallelic and biallelic, autosomal or pseudoautosomal",
	"BOTH monoallelic and biallelic (but BIALLELIC mutations cause a more SEVERE disease form), autosomal or pseudoautosomal",
	"X-LINKED: hemizygous mutation in males, biallelic mutations in females",
	"X-LINKED: hemizygous mutation in males, monoallelic mutations in females may cause disease (may be less severe, later onset than males)",
	"MITOCHONDRIAL",
	"Unknown",
	"Other - please specifiy in evaluation comments",
}

// IsValidMOI reports membership in the MOI vocabulary.
func IsValidMOI(s string) bool {
	for _, m := range ModesOfInheritance {
		if m == s {
			return true
		}
	}
	return false
}

// Modes of pathogenicity.
var ModesOfPathogenicity = []string{
	"Loss-of-function variants (as defined in pop up message) DO NOT cause this phenotype - please provide details in the comments",
	"Other - please provide details in the comments",
}

// Penetrance values.
const (
	PenetranceComplete   = "Complete"
	PenetranceIncomplete = "Incomplete"
)

// Chromosomes lists valid chromosome names for STR and region coordinates.
var Chromosomes = []string{
	"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12",
	"13", "14", "15", "16", "17", "18", "19", "20", "21", "22", "X", "Y",
}

// IsValidChromosome reports membership in the chromosome list.
func IsValidChromosome(s string) bool {
	for _, c := range Chromosomes {
		if c == s {
			return true
		}
	}
	return false
}

var (
	entityNameRe       = regexp.MustCompile(`^[-~.$@\w]+$`)
	repeatedSequenceRe = regexp.MustCompile(`^[ACGTN]+$`)
)

// IsValidEntityName reports whether a name is acceptable for any entry kind.
func IsValidEntityName(s string) bool { return entityNameRe.MatchString(s) }

// IsValidRepeatedSequence restricts STR sequences to the DNA alphabet plus N.
func IsValidRepeatedSequence(s string) bool { return repeatedSequenceRe.MatchString(s) }
