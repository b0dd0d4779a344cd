package knowledge

import "strings"

// Category is a closed taxonomy of legal source types.
type Category string

// Categories.
const (
	Jurisprudence Category = "jurisprudence"
	Codes         Category = "codes"
	Legislation   Category = "legislation"
	Doctrine      Category = "doctrine"
	JORT          Category = "jort"
	Modeles       Category = "modeles"
	Formulaires   Category = "formulaires"
	Procedures    Category = "procedures"
	Conventions   Category = "conventions"
	Constitution  Category = "constitution"
	Guides        Category = "guides"
	Lexique       Category = "lexique"
	Autre         Category = "autre"
)

// Categories lists the taxonomy in a stable order.
var Categories = []Category{
	Jurisprudence, Codes, Legislation, Doctrine, JORT, Modeles, Formulaires,
	Procedures, Conventions, Constitution, Guides, Lexique, Autre,
}

var categoryAliases = map[string]Category{
	"code":       Codes,
	"modele":     Modeles,
	"formulaire": Formulaires,
	"procedure":  Procedures,
	"convention": Conventions,
	"guide":      Guides,
}

// ParseCategory resolves a category name or alias. ok is false for unknown values,
// which resolve to Autre.
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	if c, found := categoryAliases[s]; found {
		return c, true
	}
	return Autre, false
}

// Language is the detected language of a document.
type Language string

// Languages.
const (
	Arabic Language = "ar"
	French Language = "fr"
	Mixed  Language = "mixed"
)

// ParseLanguage validates a language tag.
func ParseLanguage(s string) (Language, bool) {
	switch Language(s) {
	case Arabic, French, Mixed:
		return Language(s), true
	}
	return "", false
}
