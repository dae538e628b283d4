package candidate

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// readmeExcerptLimit bounds how much readme text feeds the embedding input.
const readmeExcerptLimit = 2000

// Candidate is an immutable repository record considered for ranking.
// Once fetched for a query it never changes; enrichment (readme excerpt)
// happens through WithReadme, which returns a copy.
type Candidate struct {
	id            int64
	name          string
	owner         string
	description   string
	language      string
	stars         int
	createdAt     time.Time
	updatedAt     time.Time
	pushedAt      time.Time
	htmlURL       string
	readmeExcerpt string
	archived      bool
	disabled      bool
	fork          bool
}

// New validates and creates a candidate from provider metadata.
func New(
	id int64, name, owner, description, language string,
	stars int, createdAt, updatedAt, pushedAt time.Time, htmlURL string,
) (Candidate, error) {
	if id <= 0 {
		return Candidate{}, fmt.Errorf("candidate id must be positive, got %d", id)
	}
	if name == "" {
		return Candidate{}, fmt.Errorf("candidate name is required")
	}
	if owner == "" {
		return Candidate{}, fmt.Errorf("candidate owner is required")
	}
	if htmlURL == "" {
		return Candidate{}, fmt.Errorf("candidate url is required")
	}
	if stars < 0 {
		return Candidate{}, fmt.Errorf("stars must be non-negative, got %d", stars)
	}

	return Candidate{
		id: id, name: name, owner: owner,
		description: description, language: language, stars: stars,
		createdAt: createdAt, updatedAt: updatedAt, pushedAt: pushedAt,
		htmlURL: htmlURL,
	}, nil
}

// ID returns the provider-stable identity.
func (c *Candidate) ID() int64 { return c.id }

// Name returns the repository name.
func (c *Candidate) Name() string { return c.name }

// Owner returns the owning namespace.
func (c *Candidate) Owner() string { return c.owner }

// FullName returns "owner/name".
func (c *Candidate) FullName() string { return c.owner + "/" + c.name }

// Description returns the free-text description.
func (c *Candidate) Description() string { return c.description }

// Language returns the primary language tag.
func (c *Candidate) Language() string { return c.language }

// Stars returns the star count.
func (c *Candidate) Stars() int { return c.stars }

// CreatedAt returns the creation timestamp.
func (c *Candidate) CreatedAt() time.Time { return c.createdAt }

// UpdatedAt returns the last-update timestamp.
func (c *Candidate) UpdatedAt() time.Time { return c.updatedAt }

// PushedAt returns the last-push timestamp.
func (c *Candidate) PushedAt() time.Time { return c.pushedAt }

// URL returns the canonical repository URL.
func (c *Candidate) URL() string { return c.htmlURL }

// ReadmeExcerpt returns the bounded readme excerpt, empty when not fetched.
func (c *Candidate) ReadmeExcerpt() string { return c.readmeExcerpt }

// Archived reports whether the repository is archived.
func (c *Candidate) Archived() bool { return c.archived }

// Disabled reports whether the repository is disabled.
func (c *Candidate) Disabled() bool { return c.disabled }

// Fork reports whether the repository is a fork.
func (c *Candidate) Fork() bool { return c.fork }

// WithFlags returns a copy with provider status flags set.
func (c Candidate) WithFlags(archived, disabled, fork bool) Candidate {
	c.archived = archived
	c.disabled = disabled
	c.fork = fork
	return c
}

// WithReadme returns a copy carrying a readme excerpt, truncated to the
// embedding input bound at a rune boundary.
func (c Candidate) WithReadme(readme string) Candidate {
	c.readmeExcerpt = truncateRunes(readme, readmeExcerptLimit)
	return c
}

// truncateRunes cuts s to at most limit bytes without splitting a
// multi-byte rune.
func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// EmbeddingText composes the text embedded for similarity scoring:
// name, description, readme excerpt and language, in a fixed order so the
// same candidate always hashes to the same cache key.
func (c *Candidate) EmbeddingText() string {
	parts := make([]string, 0, 4)
	parts = append(parts, "Repository: "+c.name)
	if c.description != "" {
		parts = append(parts, "Description: "+c.description)
	}
	if c.readmeExcerpt != "" {
		parts = append(parts, "README: "+c.readmeExcerpt)
	}
	if c.language != "" {
		parts = append(parts, "Language: "+c.language)
	}
	return strings.Join(parts, "\n")
}

// Reconstruct rebuilds a candidate without validation. For repository and
// test code only.
func Reconstruct(
	id int64, name, owner, description, language string,
	stars int, createdAt, updatedAt, pushedAt time.Time, htmlURL string,
) Candidate {
	return Candidate{
		id: id, name: name, owner: owner,
		description: description, language: language, stars: stars,
		createdAt: createdAt, updatedAt: updatedAt, pushedAt: pushedAt,
		htmlURL: htmlURL,
	}
}
