// Package domain defines the persistent entities, value types, and rule
// evaluation primitives of the panel curation core. All entities are value
// objects: mutation happens by constructing a new value inside a transaction,
// never by editing shared state in place.
package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EntityKind discriminates the three entry variants a panel can contain.
type EntityKind string

// Supported entity kinds.
const (
	KindGene   EntityKind = "gene"
	KindSTR    EntityKind = "str"
	KindRegion EntityKind = "region"
)

// ReviewerType classifies the actor supplying evidence or evaluations.
type ReviewerType string

// Reviewer types, in decreasing order of trust.
const (
	// ReviewerGEL is an internal curator with elevated permissions.
	ReviewerGEL ReviewerType = "GEL"
	// ReviewerVerified is a verified external reviewer.
	ReviewerVerified ReviewerType = "REVIEWER"
	// ReviewerExternal is an unverified external user.
	ReviewerExternal ReviewerType = "EXTERNAL"
)

// PanelStatus captures panel visibility across the curation lifecycle.
type PanelStatus string

// Panel statuses. Panels are never hard-deleted; StatusDeleted removes them
// from default listings while keeping snapshots addressable.
const (
	StatusInternal PanelStatus = "internal"
	StatusPublic   PanelStatus = "public"
	StatusPromoted PanelStatus = "promoted"
	StatusRetired  PanelStatus = "retired"
	StatusDeleted  PanelStatus = "deleted"
)

// IsApproved reports whether the status makes the panel publicly visible.
func (s PanelStatus) IsApproved() bool {
	return s == StatusPublic || s == StatusPromoted
}

// User identifies an actor. The core defines no authentication; callers pass
// the acting user with every mutating operation.
type User struct {
	Name     string       `json:"name"`
	FullName string       `json:"full_name,omitempty"`
	Email    string       `json:"email,omitempty"`
	Type     ReviewerType `json:"type"`
}

// IsGEL reports whether the user is an internal curator.
func (u User) IsGEL() bool { return u.Type == ReviewerGEL }

// Version is a panel snapshot version pair. Ordering is lexicographic on
// (major, minor).
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

// IncrementMinor returns the next minor version.
func (v Version) IncrementMinor() Version {
	return Version{Major: v.Major, Minor: v.Minor + 1}
}

// IncrementMajor returns the next major version; minor resets to zero.
func (v Version) IncrementMajor() Version {
	return Version{Major: v.Major + 1, Minor: 0}
}

// Less reports whether v orders strictly before o.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// ParseVersion parses a "major.minor" string.
func ParseVersion(s string) (Version, error) {
	major, minor, ok := strings.Cut(s, ".")
	if !ok {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	maj, err := strconv.Atoi(major)
	if err != nil {
		return Version{}, fmt.Errorf("invalid major version %q", s)
	}
	min, err := strconv.Atoi(minor)
	if err != nil {
		return Version{}, fmt.Errorf("invalid minor version %q", s)
	}
	if maj < 0 || min < 0 {
		return Version{}, fmt.Errorf("negative version %q", s)
	}
	return Version{Major: maj, Minor: min}, nil
}

// Base contains common fields for all identified records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Panel is the identity of a clinical panel across versions.
type Panel struct {
	Base
	// OldPK is a legacy identifier carried over from the previous system.
	OldPK  string      `json:"old_pk,omitempty"`
	Name   string      `json:"name"`
	Status PanelStatus `json:"status"`
	Types  []string    `json:"types,omitempty"`
	// SignedOffID points at the historical snapshot produced by the most
	// recent sign-off, when any.
	SignedOffID *string `json:"signed_off_id,omitempty"`
	// ActiveSnapshotID is the working snapshot; the snapshot it names always
	// carries the greatest (major, minor, modified, id) tuple of the panel.
	ActiveSnapshotID string `json:"active_snapshot_id"`
}

// UniqueID returns the legacy identifier when present, the primary id otherwise.
func (p Panel) UniqueID() string {
	if p.OldPK != "" {
		return p.OldPK
	}
	return p.ID
}

// PanelSnapshot is one immutable version of a panel. A snapshot is either a
// leaf (owns entries directly) or a super-panel (ChildPanels non-empty, owns
// no entries of its own).
type PanelSnapshot struct {
	Base
	PanelID string  `json:"panel_id"`
	Version Version `json:"version"`
	// OldPanels lists predecessor panel names, most recent last.
	OldPanels      []string `json:"old_panels,omitempty"`
	Title          string   `json:"title"`
	SubTitle       string   `json:"sub_title,omitempty"`
	Description    string   `json:"description,omitempty"`
	VersionComment string   `json:"version_comment,omitempty"`
	// ChildPanels holds panel ids for super-panel snapshots.
	ChildPanels []string       `json:"child_panels,omitempty"`
	Entries     []EntityRecord `json:"entries,omitempty"`
	Stats       SnapshotStats  `json:"stats"`
}

// IsSuperPanel reports whether the snapshot aggregates child panels.
func (s PanelSnapshot) IsSuperPanel() bool { return len(s.ChildPanels) > 0 }

// EntriesOf returns the snapshot's directly-owned entries of one kind.
func (s PanelSnapshot) EntriesOf(kind EntityKind) []EntityRecord {
	var out []EntityRecord
	for _, e := range s.Entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// FindEntry locates a directly-owned entry by kind and name.
func (s PanelSnapshot) FindEntry(kind EntityKind, name string) (EntityRecord, bool) {
	for _, e := range s.Entries {
		if e.Kind == kind && e.Name == name {
			return e, true
		}
	}
	return EntityRecord{}, false
}

// SnapshotStats are derived counters cached on the snapshot so list views
// never walk the entity graph.
type SnapshotStats struct {
	NumberOfEntities    int      `json:"number_of_entities"`
	NumberOfGenes       int      `json:"number_of_genes"`
	NumberOfSTRs        int      `json:"number_of_strs"`
	NumberOfRegions     int      `json:"number_of_regions"`
	NumberOfGreen       int      `json:"number_of_green"`
	NumberOfAmber       int      `json:"number_of_amber"`
	NumberOfRed         int      `json:"number_of_red"`
	NumberOfGray        int      `json:"number_of_gray"`
	NumberOfEvaluations int      `json:"number_of_evaluations"`
	Reviewers           []string `json:"reviewers,omitempty"`
}

// Range is a half-open genomic coordinate interval.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// STRFields carries the attributes specific to short-tandem-repeat entries.
type STRFields struct {
	Chromosome        string `json:"chromosome"`
	Position37        *Range `json:"position_37,omitempty"`
	Position38        Range  `json:"position_38"`
	RepeatedSequence  string `json:"repeated_sequence"`
	NormalRepeats     int    `json:"normal_repeats"`
	PathogenicRepeats int    `json:"pathogenic_repeats"`
}

// RegionFields carries the attributes specific to genomic-region entries.
type RegionFields struct {
	VerboseName               string `json:"verbose_name"`
	Chromosome                string `json:"chromosome"`
	Position37                *Range `json:"position_37,omitempty"`
	Position38                Range  `json:"position_38"`
	TypeOfVariants            string `json:"type_of_variants"`
	HaploinsufficiencyScore   string `json:"haploinsufficiency_score,omitempty"`
	TriplosensitivityScore    string `json:"triplosensitivity_score,omitempty"`
	RequiredOverlapPercentage int    `json:"required_overlap_percentage"`
}

// Region variant types. Loss regions require a haploinsufficiency score,
// gain regions a triplosensitivity score.
const (
	VariantCNVLoss = "cnv_loss"
	VariantCNVGain = "cnv_gain"
	VariantSmall   = "small"
)

// EntityRecord is one entry inside one panel snapshot: a gene, STR, or region
// together with its evidence, evaluations, comments, and derived rating. It is
// the tagged-variant shape shared by all three kinds; STR and Region point at
// their kind-specific fields, gene data is denormalised into Gene.
type EntityRecord struct {
	Base
	Kind EntityKind `json:"entity_kind"`
	Name string     `json:"entity_name"`
	// Gene is a copy of the reference gene taken at creation time so that
	// historical views stay stable if the reference later changes. Present on
	// gene entries and on STR/region entries linked to a gene.
	Gene *GeneData `json:"gene_data,omitempty"`
	// GeneSymbol references the reference-catalog record, when linked.
	GeneSymbol          string        `json:"gene_symbol,omitempty"`
	Transcript          []string      `json:"transcript,omitempty"`
	ModeOfInheritance   string        `json:"mode_of_inheritance,omitempty"`
	ModeOfPathogenicity string        `json:"mode_of_pathogenicity,omitempty"`
	Penetrance          string        `json:"penetrance,omitempty"`
	Publications        []string      `json:"publications,omitempty"`
	Phenotypes          []string      `json:"phenotypes,omitempty"`
	Tags                []string      `json:"tags,omitempty"`
	Evidence            []Evidence    `json:"evidence,omitempty"`
	Evaluations         []Evaluation  `json:"evaluations,omitempty"`
	Comments            []Comment     `json:"comments,omitempty"`
	Track               []TrackRecord `json:"track,omitempty"`
	Flagged             bool          `json:"flagged"`
	Ready               bool          `json:"ready"`
	// SavedGELStatus caches the derived confidence rating; it is recomputed
	// on every evidence mutation and is a pure function of Evidence+Flagged.
	SavedGELStatus int           `json:"saved_gel_status"`
	STR            *STRFields    `json:"str,omitempty"`
	Region         *RegionFields `json:"region,omitempty"`
}

// Label renders the entry for activity and log text.
func (e EntityRecord) Label() string {
	switch e.Kind {
	case KindSTR:
		return "STR: " + e.Name
	case KindRegion:
		return "Region: " + e.Name
	default:
		return "Gene: " + e.Name
	}
}

// EvaluationBy returns the evaluation posted by the named user, if any.
func (e EntityRecord) EvaluationBy(user string) (Evaluation, bool) {
	for _, ev := range e.Evaluations {
		if ev.User == user {
			return ev, true
		}
	}
	return Evaluation{}, false
}

// HasEvidence reports whether an evidence with the given source name exists.
func (e EntityRecord) HasEvidence(name string) bool {
	for _, ev := range e.Evidence {
		if ev.Name == name {
			return true
		}
	}
	return false
}

// Evidence is one information source backing an entry.
type Evidence struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Rating is the source's own 1..5 weighting, kept for parity with
	// historical records; it does not participate in the confidence function.
	Rating       int          `json:"rating"`
	Comment      string       `json:"comment,omitempty"`
	Reviewer     string       `json:"reviewer,omitempty"`
	ReviewerType ReviewerType `json:"reviewer_type"`
	CreatedAt    time.Time    `json:"created_at"`
}

// IsGEL reports whether the evidence was supplied by an internal curator.
func (e Evidence) IsGEL() bool { return e.ReviewerType == ReviewerGEL }

// Rating is a reviewer's traffic-light classification.
type Rating string

// Review ratings.
const (
	RatingGreen Rating = "GREEN"
	RatingAmber Rating = "AMBER"
	RatingRed   Rating = "RED"
)

// Evaluation is one review posted by one user against one entry.
type Evaluation struct {
	ID                  string       `json:"id"`
	User                string       `json:"user"`
	UserType            ReviewerType `json:"user_type"`
	Rating              Rating       `json:"rating,omitempty"`
	ModeOfInheritance   string       `json:"mode_of_inheritance,omitempty"`
	ModeOfPathogenicity string       `json:"mode_of_pathogenicity,omitempty"`
	Publications        []string     `json:"publications,omitempty"`
	Phenotypes          []string     `json:"phenotypes,omitempty"`
	CurrentDiagnostic   bool         `json:"current_diagnostic"`
	// ClinicallyRelevant records whether interruptions in an STR's repeated
	// sequence are reported as part of standard diagnostic practice.
	ClinicallyRelevant bool `json:"clinically_relevant"`
	// Version is free text recording provenance; cross-panel copies rewrite
	// it to "Imported from <panel> panel version <v>".
	Version string `json:"version,omitempty"`
	// OriginalPanel accumulates "<name> v<major.minor>" for every panel the
	// evaluation has been carried through, semicolon separated.
	OriginalPanel string     `json:"original_panel,omitempty"`
	Comments      []Comment  `json:"comments,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	LastUpdated   *time.Time `json:"last_updated,omitempty"`
}

// IsCommentWithoutReview reports whether the evaluation carries nothing
// beyond comments.
func (e Evaluation) IsCommentWithoutReview() bool {
	return e.Rating == "" &&
		e.ModeOfInheritance == "" &&
		e.ModeOfPathogenicity == "" &&
		!e.CurrentDiagnostic &&
		!e.ClinicallyRelevant &&
		len(e.Publications) == 0 &&
		len(e.Phenotypes) == 0
}

// Comment is free text attached to an evaluation or to an entry directly.
type Comment struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Text      string    `json:"text"`
	Flagged   bool      `json:"flagged"`
	Version   string    `json:"version,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TrackRecord describes one field-level change applied to an entry.
type TrackRecord struct {
	ID          string    `json:"id"`
	User        string    `json:"user"`
	Issues      []string  `json:"issues,omitempty"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Tag is a process-wide uniquely named label.
type Tag struct {
	Base
	Name string `json:"name"`
}

// Activity is one audit row on a panel's activity stream.
type Activity struct {
	ID         string     `json:"id"`
	PanelID    string     `json:"panel_id"`
	User       string     `json:"user"`
	EntityKind EntityKind `json:"entity_kind,omitempty"`
	EntityName string     `json:"entity_name,omitempty"`
	Text       string     `json:"text"`
	CreatedAt  time.Time  `json:"created_at"`
}

// HistoricalSnapshot is the immutable JSON projection of a frozen panel
// snapshot, keyed by (panel, major, minor).
type HistoricalSnapshot struct {
	ID            string          `json:"id"`
	PanelID       string          `json:"panel_id"`
	Version       Version         `json:"version"`
	SchemaVersion string          `json:"schema_version"`
	Reason        string          `json:"reason,omitempty"`
	Data          json.RawMessage `json:"data"`
	SignedOffDate *time.Time      `json:"signed_off_date,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Release is a named batch of per-panel sign-off/promotion actions applied
// atomically.
type Release struct {
	Base
	Name             string             `json:"name"`
	PromotionComment string             `json:"promotion_comment,omitempty"`
	Panels           []ReleasePanel     `json:"panels,omitempty"`
	Deployment       *ReleaseDeployment `json:"deployment,omitempty"`
}

// FindPanel locates the release child pinning the given panel.
func (r Release) FindPanel(panelID string) (ReleasePanel, bool) {
	for _, rp := range r.Panels {
		if rp.PanelID == panelID {
			return rp, true
		}
	}
	return ReleasePanel{}, false
}

// ReleasePanel pins one panel snapshot inside a release.
type ReleasePanel struct {
	ID         string `json:"id"`
	PanelID    string `json:"panel_id"`
	SnapshotID string `json:"snapshot_id"`
	Promote    bool   `json:"promote"`
	// Deployment is recorded once the release deploys.
	Deployment *ReleasePanelDeployment `json:"deployment,omitempty"`
}

// ReleaseDeployment tracks the deploy window of a release.
type ReleaseDeployment struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Elapsed returns the time between start and end, or since start when the
// deployment is still open. Nil when the deployment never started.
func (d ReleaseDeployment) Elapsed(now time.Time) *time.Duration {
	if d.Start == nil {
		return nil
	}
	ref := now
	if d.End != nil {
		ref = *d.End
	}
	elapsed := ref.Sub(*d.Start)
	return &elapsed
}

// DeployRetryAfter is the soft time-out after which an unfinished deployment
// may be retried.
const DeployRetryAfter = 30 * time.Minute

// TimedOut reports whether an unfinished deployment is older than the soft
// time-out and therefore eligible for a retry.
func (d ReleaseDeployment) TimedOut(now time.Time) bool {
	elapsed := d.Elapsed(now)
	return d.End == nil && elapsed != nil && *elapsed > DeployRetryAfter
}

// ReleasePanelDeployment records the before/after state of one panel that a
// release deployment touched.
type ReleasePanelDeployment struct {
	BeforeID          string  `json:"before_id"`
	SignedOffBeforeID *string `json:"signed_off_before_id,omitempty"`
	CommentBefore     string  `json:"comment_before,omitempty"`
	AfterID           string  `json:"after_id"`
	SignedOffAfterID  *string `json:"signed_off_after_id,omitempty"`
	CommentAfter      string  `json:"comment_after,omitempty"`
}
