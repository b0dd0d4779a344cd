// Package classify assigns a taxonomy category to normalized legal text.
package classify

import (
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
	"github.com/kailas-cloud/lexdex/internal/usecase/normalize"
)

// DefaultReviewConfidence is the confidence below which a result needs review.
const DefaultReviewConfidence = 0.6

// sampleRunes bounds how much of a document is scanned for cues.
const sampleRunes = 20000

// Result is a classification decision.
type Result struct {
	Category         knowledge.Category `json:"category"`
	Subcategory      string             `json:"subcategory,omitempty"`
	Confidence       float64            `json:"confidence"`
	NeedsReview      bool               `json:"needsReview"`
	Ambiguous        bool               `json:"ambiguous"`
	DetectedLanguage string             `json:"detectedLanguage,omitempty"`
}

// cues are folded keyword stems per category, French and Arabic mixed.
var cues = map[knowledge.Category][]string{
	knowledge.Jurisprudence: {
		"arret", "cour de cassation", "par ces motifs", "au nom du peuple", "tribunal", "chambre",
		"محكمة", "قرار تعقيبي", "لهذه الاسباب",
	},
	knowledge.Codes: {
		"code ", "code des", "code de la", "code penal", "code civil",
		"مجلة",
	},
	knowledge.Legislation: {
		"loi n", "loi organique", "decret", "arrete", "القانون عدد", "امر عدد", "مرسوم",
	},
	knowledge.Doctrine: {
		"doctrine", "commentaire", "these", "revue", "auteur", "فقه", "تعليق",
	},
	knowledge.JORT: {
		"journal officiel", "jort", "الرائد الرسمي",
	},
	knowledge.Modeles: {
		"modele", "contrat de", "les parties conviennent", "نموذج", "عقد",
	},
	knowledge.Formulaires: {
		"formulaire", "cerfa", "a remplir", "مطبوع",
	},
	knowledge.Procedures: {
		"procedure", "delai", "requete", "assignation", "اجراءات",
	},
	knowledge.Conventions: {
		"convention", "accord", "traite", "ratifi", "اتفاقية", "معاهدة",
	},
	knowledge.Constitution: {
		"constitution", "دستور",
	},
	knowledge.Guides: {
		"guide", "pratique", "etape", "دليل",
	},
	knowledge.Lexique: {
		"lexique", "glossaire", "definition", "معجم", "مصطلح",
	},
}

var latinLangs = whatlanggo.Options{
	Whitelist: map[whatlanggo.Lang]bool{
		whatlanggo.Fra: true,
		whatlanggo.Eng: true,
		whatlanggo.Ita: true,
		whatlanggo.Spa: true,
		whatlanggo.Deu: true,
	},
}

// LanguageDetector returns the ISO 639-1 code of a confidently detected
// non-French Latin-script language, or "".
type LanguageDetector func(text string) string

// Classifier scores categories by keyword cues.
type Classifier struct {
	reviewConfidence float64
	detect           LanguageDetector
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLanguageDetector replaces the whatlanggo cross-check.
func WithLanguageDetector(d LanguageDetector) Option {
	return func(c *Classifier) { c.detect = d }
}

// New creates a Classifier. A non-positive threshold uses DefaultReviewConfidence.
func New(reviewConfidence float64, opts ...Option) *Classifier {
	if reviewConfidence <= 0 {
		reviewConfidence = DefaultReviewConfidence
	}
	c := &Classifier{reviewConfidence: reviewConfidence, detect: foreignLatin}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify decides the category of a document. A declared category is kept
// with confidence 1.
func (c *Classifier) Classify(title, text string, lang knowledge.Language, declared *knowledge.Category) Result {
	var res Result
	if declared != nil {
		res = Result{Category: *declared, Confidence: 1}
	} else {
		res = c.score(title + "\n" + sample(text))
	}

	if lang != knowledge.Arabic {
		if other := c.detect(sample(text)); other != "" {
			res.DetectedLanguage = other
			res.NeedsReview = true
		}
	}
	return res
}

func (c *Classifier) score(text string) Result {
	folded := normalize.Fold(text)
	var (
		best      = knowledge.Autre
		bestHits  int
		totalHits int
	)
	for _, cat := range knowledge.Categories {
		hits := 0
		for _, cue := range cues[cat] {
			hits += strings.Count(folded, cue)
		}
		totalHits += hits
		if hits > bestHits {
			best, bestHits = cat, hits
		}
	}

	res := Result{Category: best}
	if totalHits > 0 {
		res.Confidence = float64(bestHits) / float64(totalHits)
	}
	if res.Confidence < c.reviewConfidence {
		res.Ambiguous = true
		res.NeedsReview = true
	}
	return res
}

func foreignLatin(text string) string {
	info := whatlanggo.DetectWithOptions(text, latinLangs)
	if info.Confidence < 0.8 || info.Lang == whatlanggo.Fra {
		return ""
	}
	latin := 0
	for _, r := range text {
		if r < 0x0250 && ((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r >= 0xC0) {
			latin++
		}
	}
	if latin < 40 {
		return ""
	}
	return info.Lang.Iso6391()
}

func sample(text string) string {
	n := 0
	for i := range text {
		if n == sampleRunes {
			return text[:i]
		}
		n++
	}
	return text
}
