// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classify

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/tabherd/services/organizer/tabs"
)

// Rule is one user-defined grouping rule.
//
// Rules are evaluated in file order; the first match wins. A rule with
// no matchers never matches.
type Rule struct {
	// Name identifies the rule in logs. Required.
	Name string `yaml:"name" validate:"required"`

	// Group is the group tabs matching this rule are placed in. Required.
	Group string `yaml:"group" validate:"required"`

	// Color pins the group color when the group is created by this rule.
	Color string `yaml:"color" validate:"omitempty,oneof=grey blue red yellow green pink purple cyan orange"`

	// Domains match the URL host. A leading "*." matches subdomains,
	// otherwise the host must equal the pattern or be a subdomain of it.
	Domains []string `yaml:"domains"`

	// Keywords match case-insensitively against the tab title and URL.
	Keywords []string `yaml:"keywords"`

	// Match is an optional regular expression applied to "title url".
	Match string `yaml:"match"`

	// Disabled turns the rule off without deleting it.
	Disabled bool `yaml:"disabled"`
}

// rulesFile is the on-disk shape of a rules file.
type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

var ruleValidator = validator.New()

// LoadRulesFile reads and validates grouping rules from a YAML file.
//
// # Outputs
//
//   - []Rule: The parsed rules, in file order.
//   - error: Non-nil on read, parse, or validation failure.
func LoadRulesFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	if err := ValidateRules(file.Rules); err != nil {
		return nil, err
	}
	return file.Rules, nil
}

// ValidateRules checks every rule, reporting all problems at once.
func ValidateRules(rules []Rule) error {
	var errs []string
	for i, r := range rules {
		if err := ruleValidator.Struct(r); err != nil {
			errs = append(errs, fmt.Sprintf("rule %d (%s): %v", i, r.Name, err))
			continue
		}
		if len(r.Domains) == 0 && len(r.Keywords) == 0 && r.Match == "" {
			errs = append(errs, fmt.Sprintf("rule %d (%s): no matchers", i, r.Name))
		}
		if r.Match != "" {
			if _, err := regexp.Compile(r.Match); err != nil {
				errs = append(errs, fmt.Sprintf("rule %d (%s): bad match regex: %v", i, r.Name, err))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// compiledRule is a Rule with its matchers prepared.
type compiledRule struct {
	rule     Rule
	domains  []string
	keywords []string
	match    *regexp.Regexp
}

// PatternProvider classifies tabs with user rules, no model calls.
//
// # Description
//
//	Serves two roles: the offline provider when no model is configured,
//	and the fallback the Engine answers from when the model fails. Rules
//	can be swapped at runtime; the rules file watcher uses SetRules on
//	every reload.
//
// # Thread Safety
//
// Safe for concurrent use.
type PatternProvider struct {
	mu    sync.RWMutex
	rules []compiledRule
}

// NewPatternProvider compiles the given rules.
func NewPatternProvider(rules []Rule) (*PatternProvider, error) {
	p := &PatternProvider{}
	if err := p.SetRules(rules); err != nil {
		return nil, err
	}
	return p, nil
}

// SetRules validates, compiles, and atomically swaps in new rules.
func (p *PatternProvider) SetRules(rules []Rule) error {
	if err := ValidateRules(rules); err != nil {
		return err
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.Disabled {
			continue
		}
		cr := compiledRule{rule: r}
		for _, d := range r.Domains {
			cr.domains = append(cr.domains, strings.ToLower(strings.TrimSpace(d)))
		}
		for _, k := range r.Keywords {
			cr.keywords = append(cr.keywords, strings.ToLower(strings.TrimSpace(k)))
		}
		if r.Match != "" {
			cr.match = regexp.MustCompile(r.Match)
		}
		compiled = append(compiled, cr)
	}

	p.mu.Lock()
	p.rules = compiled
	p.mu.Unlock()
	return nil
}

// Name implements Provider.
func (p *PatternProvider) Name() string { return string(ProviderPattern) }

// Classify implements Provider. First matching rule wins per tab; tabs
// matching no rule are left out of the result.
func (p *PatternProvider) Classify(ctx context.Context, req *Request) (*Result, error) {
	if len(req.Items) == 0 {
		return nil, ErrNoItems
	}

	p.mu.RLock()
	rules := p.rules
	p.mu.RUnlock()

	out := make([]Assignment, 0, len(req.Items))
	for _, item := range req.Items {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		for _, cr := range rules {
			if conf, ok := cr.matches(item); ok {
				out = append(out, Assignment{
					ItemID:     item.ID,
					Group:      cr.rule.Group,
					Confidence: conf,
					Reasoning:  "rule: " + cr.rule.Name,
				})
				break
			}
		}
	}

	return &Result{Assignments: out, Provider: p.Name()}, nil
}

// ColorFor returns the color pinned by the first rule targeting the
// given group, or empty when no rule pins one.
func (p *PatternProvider) ColorFor(group string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, cr := range p.rules {
		if cr.rule.Group == group && cr.rule.Color != "" {
			return cr.rule.Color
		}
	}
	return ""
}

// matches reports whether the rule places the item, with a confidence
// reflecting the matcher strength. Domain and regex matches are strong;
// keyword matches are weaker.
func (cr *compiledRule) matches(item tabs.Item) (float64, bool) {
	if len(cr.domains) > 0 {
		if host := hostOf(item.URL); host != "" {
			for _, d := range cr.domains {
				if domainMatch(host, d) {
					return 1.0, true
				}
			}
		}
	}

	haystack := strings.ToLower(item.Title + " " + item.URL)
	if cr.match != nil && cr.match.MatchString(item.Title+" "+item.URL) {
		return 1.0, true
	}
	for _, k := range cr.keywords {
		if strings.Contains(haystack, k) {
			return 0.7, true
		}
	}
	return 0, false
}

// hostOf extracts the lowercase host from a tab URL, or "" when the URL
// does not parse.
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// domainMatch reports whether host matches the pattern. "*.example.com"
// matches subdomains only; "example.com" matches the host itself and
// any subdomain.
func domainMatch(host, pattern string) bool {
	if sub, ok := strings.CutPrefix(pattern, "*."); ok {
		return strings.HasSuffix(host, "."+sub)
	}
	return host == pattern || strings.HasSuffix(host, "."+pattern)
}

var _ Provider = (*PatternProvider)(nil)
