package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/argus-sec/argus/internal/logger"
	"github.com/argus-sec/argus/internal/metrics"
	"github.com/argus-sec/argus/internal/models"
	"github.com/argus-sec/argus/internal/util"
)

// maxScanBody caps how much request body the detector reads.
const maxScanBody = 1 << 20

// attackRiskScore is assigned to every detected injection attempt.
const attackRiskScore = 80

// Parameters never scanned: pagination and sorting fields plus the CSRF
// and method-override fields frameworks inject. Keys in general are never
// scanned, only values.
var excludedParams = map[string]struct{}{
	"page": {}, "per_page": {}, "perpage": {}, "limit": {}, "offset": {},
	"cursor": {}, "sort": {}, "sort_by": {}, "order": {}, "order_by": {},
	"direction": {}, "_token": {}, "_method": {},
}

// Rich-text fields where an embedded base64 image data URI alone is not
// suspicious when the allowance is enabled.
var richTextFields = map[string]struct{}{
	"content": {}, "description": {}, "body": {}, "message": {}, "details": {},
}

var imageDataURI = regexp.MustCompile(`(?i)data:\s*image/(png|jpe?g|gif|webp|bmp|svg\+xml)\s*;\s*base64\s*,[a-zA-Z0-9+/=\s]+`)

// ThreatDetector classifies request payloads as SQL injection, XSS or
// clean, and escalates repeat offenders to a permanent ban.
type ThreatDetector struct {
	rules     *RuleSet
	b64Allow  bool
	events    EventRecorder
	escalator *BanEscalator
}

// NewThreatDetector builds the stage. escalator may be nil to disable
// auto-banning (tests).
func NewThreatDetector(rules *RuleSet, b64Allow bool, events EventRecorder, escalator *BanEscalator) *ThreatDetector {
	return &ThreatDetector{rules: rules, b64Allow: b64Allow, events: events, escalator: escalator}
}

func (d *ThreatDetector) Name() string { return "threat" }

func (d *ThreatDetector) Evaluate(c *Context) Decision {
	c.Inputs = collectInputs(c.Request)

	rule := d.classify(c.Inputs)
	if rule == nil {
		return Admit()
	}

	eventType := models.EventSQLInjectionAttempt
	if rule.Category == CategoryXSS {
		eventType = models.EventXSSAttempt
	}
	metrics.IncThreatDetected(rule.Category)

	// Trusted callers and administrators are never blocked; the match is
	// still recorded for the audit trail.
	if c.Trusted || c.IsAdmin() {
		d.recordEvent(c, &models.SecurityEvent{
			Address:    c.ClientIP,
			EventType:  eventType,
			Severity:   models.SeverityWarning,
			RiskScore:  attackRiskScore,
			Route:      c.Route,
			RawRequest: snapshot(c, rule),
		})
		c.Log.WithFields(map[string]interface{}{
			"ip":   c.ClientIP,
			"rule": rule.Name,
		}).Warn("threat match bypassed for trusted caller")
		return Admit()
	}

	d.maybeEscalate(c, rule)

	d.recordEvent(c, &models.SecurityEvent{
		Address:    c.ClientIP,
		EventType:  eventType,
		Severity:   models.SeverityDanger,
		RiskScore:  attackRiskScore,
		Route:      c.Route,
		RawRequest: snapshot(c, rule),
	})

	// Generic response only; the offending payload is never echoed back.
	return Reject(http.StatusForbidden, CodeUnsafeContent, "unsafe content detected")
}

// classify scans every collected value against the rule table. The first
// matching rule classifies the whole request.
func (d *ThreatDetector) classify(inputs []Input) *Rule {
	for _, in := range inputs {
		value := in.Value
		if d.b64Allow {
			if _, rich := richTextFields[strings.ToLower(in.Key)]; rich {
				value = imageDataURI.ReplaceAllString(value, "")
			}
		}
		if rule := d.rules.Match(value); rule != nil {
			return rule
		}
	}
	return nil
}

// maybeEscalate bans the address permanently when this is not its first
// attack inside 24 hours.
func (d *ThreatDetector) maybeEscalate(c *Context, rule *Rule) {
	if d.events == nil || d.escalator == nil {
		return
	}
	ctx, cancel := c.storeCtx()
	defer cancel()

	prior, err := d.events.CountAttacksSince(ctx, c.ClientIP, time.Now().Add(-24*time.Hour))
	if err != nil {
		logger.Alert().WithError(err).WithField("ip", c.ClientIP).Error("attack history lookup failed, skipping escalation")
		return
	}
	if prior < 1 {
		return
	}

	reason := fmt.Sprintf("repeated attack detected (%s)", rule.Category)
	if err := d.escalator.AutoBan(ctx, c.ClientIP, reason); err != nil {
		logger.Alert().WithError(err).WithField("ip", c.ClientIP).Error("auto-ban failed")
		return
	}
	d.recordEvent(c, &models.SecurityEvent{
		Address:   c.ClientIP,
		EventType: models.EventBlockedAccess,
		Severity:  models.SeverityCritical,
		RiskScore: 90,
		Route:     c.Route,
	})
}

func (d *ThreatDetector) recordEvent(c *Context, ev *models.SecurityEvent) {
	if d.events == nil {
		return
	}
	ctx, cancel := c.storeCtx()
	defer cancel()
	if err := d.events.Record(ctx, ev); err != nil {
		logger.Alert().WithError(err).Warn("dropped security event write")
	}
}

// collectInputs flattens query and body values into scannable pairs.
// Parameter names in the exclusion table are skipped; keys themselves are
// never scanned.
func collectInputs(r *http.Request) []Input {
	var inputs []Input

	appendValues := func(values url.Values) {
		for key, vals := range values {
			if excluded(key) {
				continue
			}
			for _, v := range vals {
				inputs = append(inputs, Input{Key: key, Value: v})
			}
		}
	}

	appendValues(r.URL.Query())

	if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return inputs
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxScanBody))
	if err != nil {
		return inputs
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	if len(body) == 0 {
		return inputs
	}

	ct := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(ct, "application/json"):
		var doc interface{}
		if err := json.Unmarshal(body, &doc); err == nil {
			inputs = appendJSON(inputs, "", doc)
		}
	case strings.HasPrefix(ct, "application/x-www-form-urlencoded"):
		if form, err := url.ParseQuery(string(body)); err == nil {
			appendValues(form)
		}
	case strings.HasPrefix(ct, "multipart/form-data"):
		appendValues(parseMultipartValues(ct, body))
	}

	return inputs
}

// parseMultipartValues extracts the text fields of a multipart body from
// the buffered copy, leaving the request body itself untouched. File parts
// are not scanned; any temp files ReadForm spilled are removed.
func parseMultipartValues(contentType string, body []byte) url.Values {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil || params["boundary"] == "" {
		return nil
	}
	form, err := multipart.NewReader(bytes.NewReader(body), params["boundary"]).ReadForm(maxScanBody)
	if err != nil {
		return nil
	}
	defer form.RemoveAll()
	return url.Values(form.Value)
}

// appendJSON walks a decoded JSON document collecting string leaves under
// their nearest field name.
func appendJSON(inputs []Input, key string, node interface{}) []Input {
	switch v := node.(type) {
	case map[string]interface{}:
		for k, child := range v {
			inputs = appendJSON(inputs, k, child)
		}
	case []interface{}:
		for _, child := range v {
			inputs = appendJSON(inputs, key, child)
		}
	case string:
		if !excluded(key) {
			inputs = append(inputs, Input{Key: key, Value: v})
		}
	}
	return inputs
}

func excluded(key string) bool {
	_, ok := excludedParams[strings.ToLower(key)]
	return ok
}

// snapshot serializes a sanitized copy of the request for forensics.
func snapshot(c *Context, rule *Rule) string {
	type entry struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	capture := struct {
		Method string  `json:"method"`
		Route  string  `json:"route"`
		Query  string  `json:"query"`
		Rule   string  `json:"rule"`
		Inputs []entry `json:"inputs"`
	}{
		Method: c.Request.Method,
		Route:  c.Route,
		Query:  util.SanitizeForLog(c.Request.URL.RawQuery),
		Rule:   rule.Name,
	}
	for _, in := range c.Inputs {
		v := util.SanitizeForLog(in.Value)
		if len(v) > 500 {
			v = v[:500]
		}
		capture.Inputs = append(capture.Inputs, entry{Key: in.Key, Value: v})
	}
	raw, err := json.Marshal(capture)
	if err != nil {
		return ""
	}
	return string(raw)
}
