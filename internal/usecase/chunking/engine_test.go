package chunking

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/chunk"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
)

const statute = `Code des obligations et des contrats

Article 1 : Les obligations dérivent des conventions et autres déclarations de volonté, des quasi-contrats et des délits.

Article 2 : Les éléments nécessaires pour la validité des obligations qui dérivent d'une déclaration de volonté sont la capacité.

Article 3 : La capacité civile de l'individu est réglée par la loi de son statut personnel, sauf dispositions contraires.`

func numbers(drafts []chunk.Draft) [][]string {
	out := make([][]string, len(drafts))
	for i, d := range drafts {
		out[i] = d.ArticleNumbers
	}
	return out
}

func checkSlices(t *testing.T, text string, drafts []chunk.Draft) {
	t.Helper()
	for i, d := range drafts {
		if d.Content != text[d.Start:d.End] {
			t.Errorf("chunk %d content does not match its offsets", i)
		}
		if d.Content == "" || d.TokenCount <= 0 {
			t.Errorf("chunk %d is empty", i)
		}
	}
}

func TestChunk_ArticlePerChunk(t *testing.T) {
	e := New(Config{}, nil)
	drafts, err := e.Chunk(statute, knowledge.Codes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(drafts) != 3 {
		t.Fatalf("got %d chunks, want 3", len(drafts))
	}
	want := [][]string{{"1"}, {"2"}, {"3"}}
	if got := numbers(drafts); !reflect.DeepEqual(got, want) {
		t.Errorf("article numbers = %v, want %v", got, want)
	}
	for i, d := range drafts {
		if d.Strategy != chunk.StrategyArticle {
			t.Errorf("chunk %d strategy = %s", i, d.Strategy)
		}
		if !strings.HasPrefix(d.Content, "Article ") {
			t.Errorf("chunk %d does not start at its marker: %q", i, d.Content)
		}
		if i > 0 && d.Start < drafts[i-1].End {
			t.Errorf("article chunks %d and %d overlap", i-1, i)
		}
	}
	checkSlices(t, statute, drafts)
}

func TestChunk_FrenchMarkers(t *testing.T) {
	text := `Article premier : Toute personne a droit au respect de sa vie privée et familiale, de son domicile.

Article 2 : Nul ne peut être privé de sa liberté si ce n'est dans les cas prévus par la loi en vigueur.

ARTICLE 258 bis : Le débiteur est tenu de réparer le dommage causé par l'inexécution de son obligation.

Art. 259 - Le créancier peut exiger l'exécution forcée de l'obligation lorsque celle-ci reste possible.`

	drafts, err := New(Config{}, nil).Chunk(text, knowledge.Codes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [][]string{{"1"}, {"2"}, {"258 bis"}, {"259"}}
	if got := numbers(drafts); !reflect.DeepEqual(got, want) {
		t.Errorf("article numbers = %v, want %v", got, want)
	}
}

func TestChunk_ArabicMarkers(t *testing.T) {
	text := `الفصل 258 : يجب على كل من يتعاقد ان يحترم الالتزامات الناشئة عن العقد وفق القانون الجاري به العمل.

الفصل 259 مكرر : لا يجوز للطرفين تعديل العقد الا باتفاقهما المشترك او بحكم قضائي نهائي وبات.

المادة 260 : تنطبق احكام هذا الباب على جميع العقود المبرمة بعد دخول هذا القانون حيز التنفيذ.`

	drafts, err := New(Config{}, nil).Chunk(text, knowledge.Constitution)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [][]string{{"258"}, {"259 مكرر"}, {"260"}}
	if got := numbers(drafts); !reflect.DeepEqual(got, want) {
		t.Errorf("article numbers = %v, want %v", got, want)
	}
	checkSlices(t, text, drafts)
}

func TestChunk_HeadingPath(t *testing.T) {
	text := `Livre premier : Des obligations en général

Titre I : Des sources des obligations

Article 1 : Les obligations dérivent des conventions et autres déclarations de volonté.

Titre II : De la preuve des obligations

Article 2 : La preuve de l'obligation incombe à celui qui s'en prévaut devant le juge.`

	drafts, err := New(Config{}, nil).Chunk(text, knowledge.Codes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("got %d chunks, want 2", len(drafts))
	}
	want0 := []string{"Livre premier : Des obligations en général", "Titre I : Des sources des obligations"}
	want1 := []string{"Livre premier : Des obligations en général", "Titre II : De la preuve des obligations"}
	if !reflect.DeepEqual(drafts[0].HeadingPath, want0) {
		t.Errorf("heading path 0 = %v", drafts[0].HeadingPath)
	}
	if !reflect.DeepEqual(drafts[1].HeadingPath, want1) {
		t.Errorf("heading path 1 = %v", drafts[1].HeadingPath)
	}
	if strings.Contains(drafts[0].Content, "Titre II") {
		t.Errorf("heading leaked into article body: %q", drafts[0].Content)
	}
}

func TestChunk_GroupsShortArticles(t *testing.T) {
	var parts []string
	for _, n := range []string{"1", "2", "3", "4", "5"} {
		parts = append(parts, "Article "+n+" : Abrogé.")
	}
	text := strings.Join(parts, "\n\n")

	drafts, err := New(Config{}, nil).Chunk(text, knowledge.Codes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [][]string{{"1", "2", "3", "4"}, {"5"}}
	if got := numbers(drafts); !reflect.DeepEqual(got, want) {
		t.Errorf("groups = %v, want %v", got, want)
	}
	checkSlices(t, text, drafts)
}

func TestChunk_ShortArticlesStayCitable(t *testing.T) {
	tests := []struct {
		name string
		text string
		want [][]string
	}{
		{
			"marker on its own line",
			"Article 1\nLe contrat est la loi des parties.\n\nArticle 2\nLe juge applique la loi.\n\nArticle 3\nLa bonne foi est présumée.",
			[][]string{{"1"}, {"2"}, {"3"}},
		},
		{
			"marker inline",
			"Article 1 : Nul n'est censé ignorer la loi.\nArticle 2 : La loi ne dispose que pour l'avenir.\nArticle 3 : Toute personne est capable.",
			[][]string{{"1"}, {"2"}, {"3"}},
		},
		{
			"stubs between real articles",
			"Article 1 : Le contrat est la loi des parties.\nArticle 2 : Abrogé.\nArticle 3 : Abrogé.\nArticle 4 : La bonne foi est présumée.",
			[][]string{{"1"}, {"2", "3"}, {"4"}},
		},
		{
			"arabic",
			"الفصل 1\nالعقد شريعة المتعاقدين.\n\nالفصل 2\nيطبق القاضي القانون على النزاع.\n\nالفصل 3\nحسن النية مفترض دائما.",
			[][]string{{"1"}, {"2"}, {"3"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drafts, err := New(Config{}, nil).Chunk(tt.text, knowledge.Codes)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := numbers(drafts); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("article numbers = %v, want %v", got, tt.want)
			}
			checkSlices(t, tt.text, drafts)
		})
	}
}

func TestChunk_SplitsLongArticle(t *testing.T) {
	body := strings.Repeat("La partie lésée peut demander la réparation du dommage subi. ", 60)
	text := "Article 7 : " + strings.TrimSpace(body)

	e := New(Config{}, nil)
	drafts, err := e.Chunk(text, knowledge.Codes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(drafts) < 2 {
		t.Fatalf("long article not split: %d chunks", len(drafts))
	}
	target := e.Params(knowledge.Codes).Target
	for i, d := range drafts {
		if !reflect.DeepEqual(d.ArticleNumbers, []string{"7"}) {
			t.Errorf("piece %d lost its article number: %v", i, d.ArticleNumbers)
		}
		if i > 0 && d.Start < drafts[i-1].End {
			t.Errorf("pieces %d and %d overlap", i-1, i)
		}
		if i < len(drafts)-1 && d.TokenCount > target {
			t.Errorf("piece %d has %d tokens, target %d", i, d.TokenCount, target)
		}
	}
	checkSlices(t, text, drafts)
}

func TestChunk_NoMarkersFallsBackToAdaptive(t *testing.T) {
	text := "Le présent recueil rassemble les textes relatifs au droit des contrats.\n\n" +
		"Il ne comporte aucun article numéroté et sert d'introduction générale."

	drafts, err := New(Config{}, nil).Chunk(text, knowledge.Codes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(drafts) == 0 {
		t.Fatal("expected chunks")
	}
	for _, d := range drafts {
		if d.Strategy != chunk.StrategyAdaptive || d.ArticleNumbers != nil {
			t.Errorf("expected adaptive chunk, got %+v", d)
		}
	}
}

func TestChunk_PreambleKeptWhenLongEnough(t *testing.T) {
	preamble := "Le présent code a été promulgué par la loi organique et entre en vigueur à compter de sa publication officielle."
	text := preamble + "\n\n" + statute[strings.Index(statute, "Article 1"):]

	drafts, err := New(Config{}, nil).Chunk(text, knowledge.Codes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(drafts) != 4 {
		t.Fatalf("got %d chunks, want preamble + 3 articles", len(drafts))
	}
	if drafts[0].Strategy != chunk.StrategyAdaptive || drafts[0].Content != preamble {
		t.Errorf("preamble chunk = %+v", drafts[0])
	}
}

func TestChunk_AdaptiveOverlap(t *testing.T) {
	sentence := "Le tribunal a relevé que les parties avaient exécuté le contrat pendant plusieurs années. "
	var paras []string
	for i := 0; i < 20; i++ {
		paras = append(paras, strings.TrimSpace(strings.Repeat(sentence, 4)))
	}
	text := strings.Join(paras, "\n\n")

	e := New(Config{}, nil)
	drafts, err := e.Chunk(text, knowledge.Autre)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(drafts) < 3 {
		t.Fatalf("expected several chunks, got %d", len(drafts))
	}
	p := e.Params(knowledge.Autre)
	for i, d := range drafts {
		if i < len(drafts)-1 && d.TokenCount > p.Target {
			t.Errorf("chunk %d has %d tokens, target %d", i, d.TokenCount, p.Target)
		}
		if i > 0 {
			prev := drafts[i-1]
			if d.Start >= prev.End {
				t.Errorf("chunk %d does not overlap its predecessor", i)
			}
			if overlap := e.counter.Count(text[d.Start:prev.End]); overlap > p.Overlap {
				t.Errorf("chunk %d overlap is %d tokens, max %d", i, overlap, p.Overlap)
			}
		}
		if d.Strategy != chunk.StrategyAdaptive {
			t.Errorf("chunk %d strategy = %s", i, d.Strategy)
		}
	}
	checkSlices(t, text, drafts)
}

func TestChunk_HardSplitsLongSentence(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("mot ", 2000))
	e := New(Config{}, nil)
	drafts, err := e.Chunk(text, knowledge.Autre)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(drafts) < 8 {
		t.Fatalf("expected a hard split, got %d chunks", len(drafts))
	}
	for i, d := range drafts[:len(drafts)-1] {
		if d.TokenCount > e.Params(knowledge.Autre).Target {
			t.Errorf("chunk %d has %d tokens", i, d.TokenCount)
		}
	}
}

func TestChunk_RuntMerged(t *testing.T) {
	e := New(Config{Table: map[knowledge.Category]Params{
		knowledge.Autre: {Target: 20, Overlap: 0, Min: 10},
	}}, nil)
	text := strings.Repeat("a", 76) + "\n\n" + strings.Repeat("b", 8)

	drafts, err := e.Chunk(text, knowledge.Autre)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(drafts) != 1 || drafts[0].End != len(text) {
		t.Errorf("runt not merged: %+v", drafts)
	}
}

func TestChunk_Deterministic(t *testing.T) {
	e := New(Config{}, nil)
	sentence := "Le juge apprécie souverainement la portée des preuves qui lui sont soumises. "
	text := statute + "\n\n" + strings.Repeat(sentence, 50)

	for _, cat := range []knowledge.Category{knowledge.Codes, knowledge.Jurisprudence} {
		a, errA := e.Chunk(text, cat)
		b, errB := e.Chunk(text, cat)
		if errA != nil || errB != nil {
			t.Fatalf("unexpected errors: %v %v", errA, errB)
		}
		if !reflect.DeepEqual(a, b) {
			t.Errorf("%s: chunking is not deterministic", cat)
		}
	}
}

func TestChunk_ContentTooShort(t *testing.T) {
	e := New(Config{}, nil)
	for _, text := range []string{"", "  \n\f\n ", "Article 1 : Court."} {
		drafts, err := e.Chunk(text, knowledge.Codes)
		if !errors.Is(err, domain.ErrContentTooShort) {
			t.Errorf("Chunk(%q) error = %v, want content_too_short", text, err)
		}
		if domain.ReasonOf(err) != domain.ReasonContentTooShort {
			t.Errorf("reason = %s", domain.ReasonOf(err))
		}
		if len(drafts) != 0 {
			t.Errorf("Chunk(%q) returned %d chunks", text, len(drafts))
		}
	}
}

func TestFingerprint(t *testing.T) {
	a := New(Config{}, nil)
	b := New(Config{MaxArticleGroup: 2}, nil)
	if a.Fingerprint(knowledge.Codes) == b.Fingerprint(knowledge.Codes) {
		t.Error("fingerprint should change with article settings")
	}
	if a.Fingerprint(knowledge.Codes) == a.Fingerprint(knowledge.Doctrine) {
		t.Error("fingerprint should differ across categories")
	}
}

func TestEstimateCounter(t *testing.T) {
	c := EstimateCounter{}
	tests := map[string]int{"": 0, "a": 1, "abcd": 1, "abcde": 2, "الفصل": 2}
	for in, want := range tests {
		if got := c.Count(in); got != want {
			t.Errorf("Count(%q) = %d, want %d", in, got, want)
		}
	}
}
