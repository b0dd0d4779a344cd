package normalize

import (
	"strings"
	"testing"

	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
)

func TestNormalize_Idempotent(t *testing.T) {
	n := New(Options{StripTashkeel: true})
	inputs := []string{
		"Art. 5 - Le contrat est nul.\r\n\r\n\r\nPage 3 sur 10\nsuite   du   texte",
		"الفصل الأول\u00A0:  فصل 12 من المجلة ، وفق القانون ؛ انتهى",
		"premier\fdeuxième\f",
		"\f\fdébut",
		"Sommaire ........ 12\nArticle 2 ......... 14",
		"  \n\n  ",
		"art 7 et ART. 8, puis article 9",
		"\u0623\u064E\u062D\u0652\u0645\u064E\u062F \u0661\u0662\u0663",
		"voir art......5 6 du code",
		"فصل..... 3 4",
		"نص المجلة ......، ثم art\t\t9",
	}
	for _, in := range inputs {
		once := n.Normalize(in)
		twice := n.Normalize(once.Text)
		if once != twice {
			t.Errorf("not idempotent for %q:\n once=%q\ntwice=%q", in, once.Text, twice.Text)
		}
	}
}

func TestNormalize_Steps(t *testing.T) {
	n := New(Options{})
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"french article abbreviation", "voir art. 5 et ART 12", "voir Article 5 et Article 12"},
		{"arabic article prefix", "فصل 7", "الفصل 7"},
		{"arabic article already prefixed", "الفصل 7", "الفصل 7"},
		{"article behind dot leader", "voir art......5 6 du code", "voir Article 6 du code"},
		{"arabic article behind dot leader", "فصل..... 3 4", "الفصل 4"},
		{"page boilerplate", "Texte\nPage 3 sur 10\nSuite", "Texte\nSuite"},
		{"lone page number", "Texte\n- 12 -\nSuite", "Texte\nSuite"},
		{"blank runs collapse", "a\n\n\n\nb", "a\n\nb"},
		{"dot leaders", "Titre premier ........ 12", "Titre premier"},
		{"eastern digits", "\u0661\u0662\u0663", "123"},
		{"zero width removed", "ab\u200Bcd", "abcd"},
		{"nbsp to space", "a\u00A0\u00A0b", "a b"},
		{"arabic comma spacing", "\u0646\u0635 \u060C\u0622\u062E\u0631", "\u0646\u0635\u060C \u0627\u062E\u0631"},
		{"form feed on its own line", "a\fb", "a\n\n\f\n\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Text(tt.in); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_StripTashkeelOption(t *testing.T) {
	in := "\u0643\u064E\u062A\u064E\u0628\u064E"
	if got := New(Options{}).Text(in); got != in {
		t.Errorf("tashkeel should be kept by default, got %q", got)
	}
	if got := New(Options{StripTashkeel: true}).Text(in); got != "\u0643\u062A\u0628" {
		t.Errorf("tashkeel not stripped: %q", got)
	}
}

func TestNormalize_PageCount(t *testing.T) {
	got := New(Options{}).Text("p1\fp2\fp3")
	if c := strings.Count(got, "\f"); c != 2 {
		t.Errorf("form feeds = %d, want 2 in %q", c, got)
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want knowledge.Language
	}{
		{"Le contrat est nul de plein droit", knowledge.French},
		{"العقد باطل بطلانا مطلقا", knowledge.Arabic},
		{"Article الفصل", knowledge.Mixed},
		{"12 / 2024", knowledge.French},
		{"", knowledge.French},
	}
	for _, tt := range tests {
		if got := DetectLanguage(tt.in); got != tt.want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFold(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Élève   École ", "eleve ecole"},
		{"\u0623\u064E\u062D\u0652\u0645\u064E\u062F", "\u0627\u062D\u0645\u062F"},
		{"Code des Obligations", "code des obligations"},
	}
	for _, tt := range tests {
		if got := Fold(tt.in); got != tt.want {
			t.Errorf("Fold(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("L'article 5 du Code pénal")
	want := []string{"article", "du", "code", "penal"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Tokens = %v, want %v", got, want)
	}
}

func TestHash(t *testing.T) {
	a, b := Hash("texte"), Hash("texte")
	if a != b || len(a) != 64 {
		t.Errorf("hash not stable: %q %q", a, b)
	}
	if Hash("texte ") == a {
		t.Error("different text should hash differently")
	}
}
