package search

import (
	"sort"
	"strings"

	"github.com/kailas-cloud/lexdex/internal/usecase/normalize"
)

// domainTerms are the positive terms of each legal domain, French and Arabic.
// They are folded once at init.
var domainTerms = map[string][]string{
	"penal": {
		"جزائي", "جزائية", "جنائي", "عقوبة", "عقوبات", "جريمة", "المجلة الجزائية",
		"القتل", "السرقة", "الدفاع الشرعي", "الرشوة", "التزوير", "النصب", "احتيال",
		"خيانة الأمانة", "اختلاس", "تدليس", "التحرش", "هتك عرض", "الحبس", "السجن",
		"الإيداع", "الإيقاف التحفظي", "pénal", "penal", "criminel", "infraction", "peine",
	},
	"civil": {
		"مدني", "التزامات", "عقود", "تعويض", "مسؤولية مدنية", "تقادم",
		"مجلة الالتزامات والعقود", "العقد", "الفسخ", "الضمان", "الملكية", "الحيازة",
		"الرهن", "الكفالة", "الوكالة", "civil", "responsabilité", "contrat", "obligations",
	},
	"commercial": {
		"تجاري", "تجارية", "المجلة التجارية", "شيك", "إفلاس", "تفليس", "كمبيالة",
		"شركة", "شركات", "commercial", "chèque", "faillite", "société",
	},
	"famille": {
		"أحوال شخصية", "مجلة الأحوال الشخصية", "طلاق", "زواج", "نفقة", "حضانة",
		"ميراث", "وصية", "نسب", "divorce", "mariage", "garde", "famille", "succession",
	},
	"travail": {
		"شغل", "مجلة الشغل", "طرد تعسفي", "إضراب", "أجر", "أجير", "مؤجر",
		"travail", "licenciement", "grève", "salaire",
	},
	"immobilier": {
		"عقاري", "عقار", "ملكية عقارية", "تسجيل عقاري", "رسم عقاري", "immobilier", "foncier",
	},
	"fiscal": {
		"ضرائب", "ضريبة", "جبائي", "fiscal", "impôt", "tva",
	},
	"administratif": {
		"إداري", "صفقات عمومية", "المحكمة الإدارية", "administratif", "marchés publics",
	},
}

func init() {
	for _, terms := range domainTerms {
		for i, t := range terms {
			terms[i] = normalize.Fold(t)
		}
	}
}

// Intent is the legal domain a query is about.
type Intent struct {
	// Domains holds every domain tied for the most hits.
	Domains []string
	// Confidence is the top domain's share of all hits, 0 without hits.
	Confidence float64
}

// ClassifyIntent scores each domain by the number of its terms found in the query.
func ClassifyIntent(query string) Intent {
	q := normalize.Fold(query)
	hits := make(map[string]int, len(domainTerms))
	total, best := 0, 0
	for d, terms := range domainTerms {
		for _, t := range terms {
			if strings.Contains(q, t) {
				hits[d]++
			}
		}
		total += hits[d]
		best = max(best, hits[d])
	}
	if total == 0 {
		return Intent{}
	}

	var in Intent
	for d, n := range hits {
		if n == best {
			in.Domains = append(in.Domains, d)
		}
	}
	sort.Strings(in.Domains)
	in.Confidence = float64(best) / float64(total)
	return in
}

// mentions reports whether folded text carries a positive term of any domain.
func mentions(folded string, domains []string) bool {
	for _, d := range domains {
		for _, t := range domainTerms[d] {
			if strings.Contains(folded, t) {
				return true
			}
		}
	}
	return false
}
