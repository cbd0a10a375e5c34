package knowledge

import (
	"cmp"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/pipeline-rca/internal/models"
	"github.com/miradorstack/pipeline-rca/internal/utils"
)

// Catalog is the in-memory solution template knowledge base.
type Catalog struct {
	mu          sync.RWMutex
	solutions   []models.SolutionTemplate
	version     int
	lastUpdated time.Time

	logger *slog.Logger
	now    func() time.Time
}

// NewCatalog builds a catalog from seed; a nil seed selects DefaultSolutions.
func NewCatalog(logger *slog.Logger, seed []models.SolutionTemplate) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	if seed == nil {
		seed = DefaultSolutions()
	}
	c := &Catalog{logger: logger, now: time.Now, version: 1}
	now := c.now().UTC()
	c.lastUpdated = now
	for _, s := range seed {
		c.solutions = append(c.solutions, stamp(s, now))
	}
	return c
}

func stamp(s models.SolutionTemplate, now time.Time) models.SolutionTemplate {
	if s.Version <= 0 {
		s.Version = 1
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.LastUpdated.IsZero() {
		s.LastUpdated = s.CreatedAt
	}
	return cloneSolution(s)
}

// All returns every template in catalog order.
func (c *Catalog) All() []models.SolutionTemplate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneAll(c.solutions)
}

// Get returns the template with id.
func (c *Catalog) Get(id string) (models.SolutionTemplate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if idx := c.indexOf(id); idx >= 0 {
		return cloneSolution(c.solutions[idx]), true
	}
	return models.SolutionTemplate{}, false
}

// Search matches query case-insensitively against title, description, problem patterns and tags.
// An empty query returns everything.
func (c *Catalog) Search(query string) []models.SolutionTemplate {
	q := strings.ToLower(strings.TrimSpace(query))
	return c.filter(func(s models.SolutionTemplate) bool {
		if q == "" {
			return true
		}
		if strings.Contains(strings.ToLower(s.Title), q) || strings.Contains(strings.ToLower(s.Description), q) {
			return true
		}
		for _, p := range s.ProblemPatterns {
			if strings.Contains(strings.ToLower(p), q) {
				return true
			}
		}
		for _, tag := range s.Tags {
			if strings.Contains(strings.ToLower(tag), q) {
				return true
			}
		}
		return false
	})
}

// ByCategory returns templates for a failure category id.
func (c *Catalog) ByCategory(category string) []models.SolutionTemplate {
	return c.filter(func(s models.SolutionTemplate) bool {
		return strings.EqualFold(s.Category, category)
	})
}

// BySeverity returns templates with the given severity.
func (c *Catalog) BySeverity(severity models.Severity) []models.SolutionTemplate {
	return c.filter(func(s models.SolutionTemplate) bool {
		return s.Severity == severity
	})
}

// FindSolutions returns templates whose problem patterns match the failure text,
// best success rate first.
func (c *Catalog) FindSolutions(failureReason string, logs []string) []models.SolutionTemplate {
	text := strings.Join(append([]string{failureReason}, logs...), "\n")
	found := c.filter(func(s models.SolutionTemplate) bool {
		for _, p := range s.ProblemPatterns {
			if _, ok := matchPattern(p, text); ok {
				return true
			}
		}
		return false
	})
	slices.SortStableFunc(found, func(a, b models.SolutionTemplate) int {
		return cmp.Compare(b.SuccessRate, a.SuccessRate)
	})
	return found
}

// RecognizePattern reports every problem pattern matching text. Patterns that
// fail to compile never match.
func (c *Catalog) RecognizePattern(text string) []models.PatternMatch {
	c.mu.RLock()
	defer c.mu.RUnlock()
	matches := make([]models.PatternMatch, 0)
	for _, s := range c.solutions {
		for _, p := range s.ProblemPatterns {
			if m, ok := matchPattern(p, text); ok {
				matches = append(matches, models.PatternMatch{
					SolutionID: s.ID,
					Title:      s.Title,
					Category:   s.Category,
					Pattern:    p,
					Match:      m,
				})
			}
		}
	}
	return matches
}

// AutoFix returns the auto-fix script text for a template; nil when it has none.
func (c *Catalog) AutoFix(id string) (*string, error) {
	s, ok := c.Get(id)
	if !ok {
		return nil, &utils.NotFoundError{Kind: "solution", ID: id}
	}
	return s.AutoFixScript, nil
}

// AutoFixForCategory returns the first auto-fix script offered for category.
func (c *Catalog) AutoFixForCategory(category string) *string {
	for _, s := range c.ByCategory(category) {
		if s.AutoFixScript != nil && *s.AutoFixScript != "" {
			script := *s.AutoFixScript
			return &script
		}
	}
	return nil
}

// Add inserts a new template, generating an id when none is given.
func (c *Catalog) Add(s models.SolutionTemplate) (models.SolutionTemplate, error) {
	if err := validateSolution(s); err != nil {
		return models.SolutionTemplate{}, err
	}
	if s.ID == "" {
		s.ID = "solution-" + uuid.NewString()
	}
	now := c.now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexOf(s.ID) >= 0 {
		return models.SolutionTemplate{}, &utils.ValidationError{Fields: []string{"id"}, Msg: fmt.Sprintf("solution %q already exists", s.ID)}
	}
	s.Version = 1
	s.CreatedAt = now
	s.LastUpdated = now
	s = cloneSolution(s)
	c.solutions = append(c.solutions, s)
	c.touch(now)
	c.logger.Info("solution added", slog.String("solution_id", s.ID), slog.String("category", s.Category))
	return cloneSolution(s), nil
}

// Update replaces the template with id, bumping its version and lastUpdated.
func (c *Catalog) Update(id string, s models.SolutionTemplate) (models.SolutionTemplate, error) {
	if err := validateSolution(s); err != nil {
		return models.SolutionTemplate{}, err
	}
	now := c.now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexOf(id)
	if idx < 0 {
		return models.SolutionTemplate{}, &utils.NotFoundError{Kind: "solution", ID: id}
	}
	prev := c.solutions[idx]
	s.ID = prev.ID
	s.CreatedAt = prev.CreatedAt
	s.Version = prev.Version + 1
	s.LastUpdated = now
	c.solutions[idx] = cloneSolution(s)
	c.touch(now)
	c.logger.Info("solution updated", slog.String("solution_id", id), slog.Int("version", s.Version))
	return cloneSolution(s), nil
}

// Delete removes the template with id.
func (c *Catalog) Delete(id string) error {
	now := c.now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexOf(id)
	if idx < 0 {
		return &utils.NotFoundError{Kind: "solution", ID: id}
	}
	c.solutions = slices.Delete(c.solutions, idx, idx+1)
	c.touch(now)
	c.logger.Info("solution deleted", slog.String("solution_id", id))
	return nil
}

// Stats summarises the catalog.
func (c *Catalog) Stats() models.KnowledgeBaseStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := models.KnowledgeBaseStats{
		TotalSolutions: len(c.solutions),
		ByCategory:     make(map[string]int),
		BySeverity:     make(map[string]int),
		Version:        c.version,
		LastUpdated:    c.lastUpdated,
	}
	total := 0.0
	for _, s := range c.solutions {
		stats.ByCategory[s.Category]++
		stats.BySeverity[string(s.Severity)]++
		if s.Verified {
			stats.Verified++
		}
		if s.AutoFixScript != nil {
			stats.AutoFixAvailable++
		}
		total += s.SuccessRate
	}
	if len(c.solutions) > 0 {
		stats.AverageSuccessRate = total / float64(len(c.solutions))
	}
	return stats
}

// Export serialises the catalog as indented JSON.
func (c *Catalog) Export() ([]byte, error) {
	c.mu.RLock()
	snapshot := models.KnowledgeBaseExport{
		Version:     c.version,
		LastUpdated: c.lastUpdated,
		Solutions:   cloneAll(c.solutions),
	}
	c.mu.RUnlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export knowledge base: %w", err)
	}
	return data, nil
}

// Import replaces the catalog with a snapshot produced by Export.
func (c *Catalog) Import(data []byte) error {
	var snapshot models.KnowledgeBaseExport
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return &utils.MalformedInputError{Field: "knowledge base export", Err: err}
	}
	seen := make(map[string]struct{}, len(snapshot.Solutions))
	for i, s := range snapshot.Solutions {
		if s.ID == "" {
			return utils.NewValidationError(fmt.Sprintf("solutions[%d].id", i))
		}
		if _, dup := seen[s.ID]; dup {
			return &utils.ValidationError{Fields: []string{"id"}, Msg: fmt.Sprintf("duplicate solution %q", s.ID)}
		}
		seen[s.ID] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.solutions = cloneAll(snapshot.Solutions)
	c.version = snapshot.Version
	c.lastUpdated = snapshot.LastUpdated
	c.logger.Info("knowledge base imported", slog.Int("solutions", len(c.solutions)), slog.Int("version", c.version))
	return nil
}

func (c *Catalog) touch(now time.Time) {
	c.version++
	c.lastUpdated = now
}

func (c *Catalog) indexOf(id string) int {
	return slices.IndexFunc(c.solutions, func(s models.SolutionTemplate) bool {
		return s.ID == id
	})
}

func (c *Catalog) filter(keep func(models.SolutionTemplate) bool) []models.SolutionTemplate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.SolutionTemplate, 0)
	for _, s := range c.solutions {
		if keep(s) {
			out = append(out, cloneSolution(s))
		}
	}
	return out
}

func validateSolution(s models.SolutionTemplate) error {
	missing := make([]string, 0, 3)
	if s.Title == "" {
		missing = append(missing, "title")
	}
	if s.Category == "" {
		missing = append(missing, "category")
	}
	if s.Severity == "" {
		missing = append(missing, "severity")
	}
	if len(missing) > 0 {
		return utils.NewValidationError(missing...)
	}
	if !s.Severity.Valid() {
		return &utils.ValidationError{Fields: []string{"severity"}, Msg: fmt.Sprintf("invalid severity %q", s.Severity)}
	}
	return nil
}

func matchPattern(pattern, text string) (string, bool) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return "", false
	}
	loc := re.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	return text[loc[0]:loc[1]], true
}

func cloneAll(in []models.SolutionTemplate) []models.SolutionTemplate {
	out := make([]models.SolutionTemplate, 0, len(in))
	for _, s := range in {
		out = append(out, cloneSolution(s))
	}
	return out
}

func cloneSolution(s models.SolutionTemplate) models.SolutionTemplate {
	s.ProblemPatterns = slices.Clone(s.ProblemPatterns)
	s.Tags = slices.Clone(s.Tags)
	s.PreventionSteps = slices.Clone(s.PreventionSteps)
	steps := make([]models.SolutionStep, len(s.Solutions))
	for i, step := range s.Solutions {
		step.Commands = slices.Clone(step.Commands)
		steps[i] = step
	}
	s.Solutions = steps
	if s.AutoFixScript != nil {
		script := *s.AutoFixScript
		s.AutoFixScript = &script
	}
	return s
}
