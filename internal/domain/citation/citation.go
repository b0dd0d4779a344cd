package citation

// Type classifies a citation mention.
type Type string

// Citation types. Source, KB and Juris are bracketed tags emitted by the
// answer generator; Article and Statute are legal references in prose.
const (
	TypeSource  Type = "source"
	TypeKB      Type = "kb"
	TypeJuris   Type = "juris"
	TypeArticle Type = "article"
	TypeStatute Type = "statute"
)

// IsBracketed reports whether t is a generator tag such as [Source-1].
func (t Type) IsBracketed() bool {
	return t == TypeSource || t == TypeKB || t == TypeJuris
}

// Reference is a citation parsed out of generated text.
type Reference struct {
	Type     Type   `json:"type"`
	Number   string `json:"number"`
	Year     string `json:"year,omitempty"`
	Raw      string `json:"raw"`
	Position int    `json:"position"`
}

// Status is the verification outcome of a reference.
type Status string

// Verification statuses.
const (
	Verified     Status = "verified"
	PartialMatch Status = "partial_match"
	Unverified   Status = "unverified"
)

// Tier is the matching tier that produced a status.
type Tier string

// Matching tiers, tried in order.
const (
	TierExact      Tier = "exact"
	TierNormalized Tier = "normalized"
	TierPartial    Tier = "partial"
	TierNone       Tier = "none"
)

// Source is a retrieved passage an answer may cite. Index is 1-based.
type Source struct {
	Index      int    `json:"index"`
	DocumentID string `json:"documentId"`
	Title      string `json:"title,omitempty"`
	Content    string `json:"content"`
}

// Validation is the outcome for one reference.
type Validation struct {
	Reference   Reference `json:"reference"`
	Status      Status    `json:"status"`
	Tier        Tier      `json:"tier"`
	SourceIndex int       `json:"sourceIndex,omitempty"`
	DocumentID  string    `json:"documentId,omitempty"`
	Excerpt     string    `json:"excerpt,omitempty"`
}

// Warning is a non-blocking note about a citation.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Raw     string `json:"raw"`
}

// Claim is a cited sentence checked against its source.
type Claim struct {
	Sentence    string  `json:"sentence"`
	SourceIndex int     `json:"sourceIndex"`
	Supported   bool    `json:"supported"`
	Overlap     float64 `json:"overlap"`
}

// Report is the full citation validation result. It never blocks an answer.
type Report struct {
	Validations       []Validation `json:"validations"`
	Warnings          []Warning    `json:"warnings"`
	Claims            []Claim      `json:"claims,omitempty"`
	Total             int          `json:"total"`
	Verified          int          `json:"verified"`
	Partial           int          `json:"partial"`
	Unverified        int          `json:"unverified"`
	UnsupportedClaims int          `json:"unsupportedClaims"`
}

// Flagged reports whether the answer carries at least one unverified reference.
func (r *Report) Flagged() bool { return r.Unverified > 0 }
