package chunking

import (
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
)

// Params are the adaptive sizes for one category, in tokens.
type Params struct {
	Target  int `yaml:"target_tokens"`
	Overlap int `yaml:"overlap_tokens"`
	Min     int `yaml:"min_tokens"`
}

// DefaultTable holds the per-category adaptive sizes.
var DefaultTable = map[knowledge.Category]Params{
	knowledge.Jurisprudence: {Target: 450, Overlap: 50, Min: 40},
	knowledge.Codes:         {Target: 150, Overlap: 25, Min: 15},
	knowledge.Legislation:   {Target: 300, Overlap: 40, Min: 30},
	knowledge.Doctrine:      {Target: 375, Overlap: 45, Min: 40},
	knowledge.JORT:          {Target: 300, Overlap: 40, Min: 30},
	knowledge.Modeles:       {Target: 200, Overlap: 25, Min: 20},
	knowledge.Formulaires:   {Target: 175, Overlap: 20, Min: 15},
	knowledge.Procedures:    {Target: 300, Overlap: 40, Min: 30},
	knowledge.Conventions:   {Target: 350, Overlap: 40, Min: 35},
	knowledge.Constitution:  {Target: 375, Overlap: 45, Min: 30},
	knowledge.Guides:        {Target: 275, Overlap: 35, Min: 25},
	knowledge.Lexique:       {Target: 150, Overlap: 20, Min: 10},
	knowledge.Autre:         {Target: 256, Overlap: 25, Min: 25},
}

// Config tunes the chunking engine.
type Config struct {
	// Table overrides DefaultTable per category.
	Table map[knowledge.Category]Params
	// ArticleGroupTokens is the body size, marker excluded, below which
	// consecutive articles are grouped.
	ArticleGroupTokens int
	// MaxArticleGroup caps the number of articles in one group.
	MaxArticleGroup int
	// MaxArticleFactor times the target is the size above which an article is split.
	MaxArticleFactor int
}

// Defaults for article mode.
const (
	DefaultArticleGroupTokens = 5
	DefaultMaxArticleGroup    = 4
	DefaultMaxArticleFactor   = 3
)

func (c Config) withDefaults() Config {
	table := make(map[knowledge.Category]Params, len(DefaultTable))
	for k, v := range DefaultTable {
		table[k] = v
	}
	for k, v := range c.Table {
		if v.Target > 0 {
			table[k] = v
		}
	}
	c.Table = table
	if c.ArticleGroupTokens <= 0 {
		c.ArticleGroupTokens = DefaultArticleGroupTokens
	}
	if c.MaxArticleGroup <= 0 {
		c.MaxArticleGroup = DefaultMaxArticleGroup
	}
	if c.MaxArticleFactor <= 0 {
		c.MaxArticleFactor = DefaultMaxArticleFactor
	}
	return c
}

// ArticleMode reports whether a category is chunked by article.
func ArticleMode(c knowledge.Category) bool {
	return c == knowledge.Codes || c == knowledge.Constitution
}
