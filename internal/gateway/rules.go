package gateway

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Threat categories, checked in this order: a SQLi match wins over XSS.
const (
	CategorySQLi = "sqli"
	CategoryXSS  = "xss"
)

// Rule is one detection signature. Rules live in a data table rather than
// code so they can be tuned and unit-tested without touching the pipeline.
type Rule struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Pattern  string `yaml:"pattern"`

	re *regexp.Regexp
}

// Matches reports whether the compiled pattern matches the value.
func (r *Rule) Matches(value string) bool {
	return r.re != nil && r.re.MatchString(value)
}

// RuleSet is an ordered list of compiled rules grouped by category.
type RuleSet struct {
	sqli []*Rule
	xss  []*Rule
}

// CompileRules validates and compiles a rule list, preserving order
// within each category.
func CompileRules(rules []Rule) (*RuleSet, error) {
	rs := &RuleSet{}
	for i := range rules {
		r := rules[i]
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile rule %q: %w", r.Name, err)
		}
		r.re = re
		switch r.Category {
		case CategorySQLi:
			rs.sqli = append(rs.sqli, &r)
		case CategoryXSS:
			rs.xss = append(rs.xss, &r)
		default:
			return nil, fmt.Errorf("rule %q: unknown category %q", r.Name, r.Category)
		}
	}
	return rs, nil
}

// LoadRules reads a YAML rule file, falling back to the built-in set when
// path is empty.
func LoadRules(path string) (*RuleSet, error) {
	if path == "" {
		return CompileRules(DefaultRules())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s contains no rules", path)
	}
	return CompileRules(doc.Rules)
}

// Match scans a single value: SQLi rules first, then XSS. Returns the
// first matching rule or nil.
func (rs *RuleSet) Match(value string) *Rule {
	for _, r := range rs.sqli {
		if r.Matches(value) {
			return r
		}
	}
	for _, r := range rs.xss {
		if r.Matches(value) {
			return r
		}
	}
	return nil
}

// DefaultRules is the built-in signature table. Deliberately pattern-based
// and probabilistic: recall is traded for speed and simplicity.
func DefaultRules() []Rule {
	return []Rule{
		// SQL injection
		{Name: "sqli-union-select", Category: CategorySQLi, Pattern: `(?i)\bunion\b[\s\S]{0,60}?\bselect\b`},
		{Name: "sqli-statement-chain", Category: CategorySQLi, Pattern: `(?i);\s*(drop|delete|truncate|update|insert|alter)\b`},
		{Name: "sqli-select-from", Category: CategorySQLi, Pattern: `(?i)\bselect\b[\s\S]{0,80}?\bfrom\b[\s\S]{0,80}?\b(where|information_schema|mysql|pg_catalog|sysobjects)\b`},
		{Name: "sqli-tautology", Category: CategorySQLi, Pattern: `(?i)['"]\s*(or|and)\s*['"]?\d+['"]?\s*=\s*['"]?\d+`},
		{Name: "sqli-comment-trailer", Category: CategorySQLi, Pattern: `(?i)(\bor\b|\band\b)[\s\S]{0,20}?(--|#|/\*)`},
		{Name: "sqli-time-probe", Category: CategorySQLi, Pattern: `(?i)\b(sleep|benchmark|pg_sleep)\s*\(|\bwaitfor\s+delay\b`},
		{Name: "sqli-schema-probe", Category: CategorySQLi, Pattern: `(?i)\b(information_schema|load_file|into\s+(outfile|dumpfile))\b`},
		{Name: "sqli-stacked-exec", Category: CategorySQLi, Pattern: `(?i)\b(exec|execute)\s*\(\s*(sp_|xp_)`},

		// Cross-site scripting
		{Name: "xss-script-tag", Category: CategoryXSS, Pattern: `(?i)<\s*script[\s>]`},
		{Name: "xss-js-scheme", Category: CategoryXSS, Pattern: `(?i)javascript\s*:`},
		{Name: "xss-event-handler", Category: CategoryXSS, Pattern: `(?i)\bon(abort|blur|change|click|dblclick|error|focus|keydown|keypress|keyup|load|mousedown|mousemove|mouseout|mouseover|mouseup|reset|resize|select|submit|unload)\s*=`},
		{Name: "xss-embed-tag", Category: CategoryXSS, Pattern: `(?i)<\s*(iframe|object|embed|applet|meta\s+http-equiv)\b`},
		{Name: "xss-svg-onload", Category: CategoryXSS, Pattern: `(?i)<\s*svg[^>]*\bonload\b`},
		{Name: "xss-dom-access", Category: CategoryXSS, Pattern: `(?i)\bdocument\s*\.\s*(cookie|write|location|domain)\b`},
		{Name: "xss-eval-call", Category: CategoryXSS, Pattern: `(?i)\b(eval|settimeout|setinterval|function)\s*\(\s*['"]`},
		{Name: "xss-alert-probe", Category: CategoryXSS, Pattern: `(?i)\b(alert|prompt|confirm)\s*\(`},
		{Name: "xss-css-expression", Category: CategoryXSS, Pattern: `(?i)\bexpression\s*\(|\bvbscript\s*:`},
		// Base64 vectors stay flagged even when the image allowance is on.
		{Name: "xss-b64-function", Category: CategoryXSS, Pattern: `(?i)\b(atob|btoa|base64_decode|base64_encode|from_base64)\s*\(`},
		{Name: "xss-b64-html-uri", Category: CategoryXSS, Pattern: `(?i)data:\s*(text/html|application/[a-z0-9.+-]+)\s*;\s*base64`},
		// Generic catch-all; the rich-text image allowance works by
		// stripping image data URIs before this rule sees the value.
		{Name: "xss-b64-data-uri", Category: CategoryXSS, Pattern: `(?i)data:\s*[a-z0-9.+/-]+\s*;\s*base64\s*,`},
	}
}
