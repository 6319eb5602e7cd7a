// Package features derives the normalized signal values a record carries
// under a rule configuration. Extraction is pure: no I/O, no clock, no
// randomness, so the same (record, configuration) pair always yields the
// same feature set.
package features

import (
	"regexp"
	"strings"
	"sync"

	"github.com/openlead/kestrel/internal/domain"
)

// Built-in domain lists. Configurations extend these through email_quality.
var builtinFreemail = map[string]bool{
	"gmail.com":      true,
	"yahoo.com":      true,
	"hotmail.com":    true,
	"outlook.com":    true,
	"aol.com":        true,
	"icloud.com":     true,
	"gmx.com":        true,
	"gmx.de":         true,
	"web.de":         true,
	"mail.com":       true,
	"protonmail.com": true,
	"proton.me":      true,
	"yandex.com":     true,
	"zoho.com":       true,
	"libero.it":      true,
	"virgilio.it":    true,
}

var builtinDisposable = map[string]bool{
	"mailinator.com":      true,
	"guerrillamail.com":   true,
	"10minutemail.com":    true,
	"tempmail.com":        true,
	"temp-mail.org":       true,
	"throwawaymail.com":   true,
	"yopmail.com":         true,
	"sharklasers.com":     true,
	"getnada.com":         true,
	"trashmail.com":       true,
	"fakeinbox.com":       true,
	"dispostable.com":     true,
	"maildrop.cc":         true,
	"mintemail.com":       true,
	"spamgourmet.com":     true,
	"mytemp.email":        true,
	"burnermail.io":       true,
	"emailondeck.com":     true,
	"mohmal.com":          true,
	"tempinbox.com":       true,
	"discard.email":       true,
	"mailnesia.com":       true,
	"anonbox.net":         true,
	"spam4.me":            true,
	"grr.la":              true,
	"guerrillamailblock.com": true,
}

var suspiciousTLDs = map[string]bool{
	"xyz":    true,
	"top":    true,
	"click":  true,
	"loan":   true,
	"gq":     true,
	"ml":     true,
	"cf":     true,
	"tk":     true,
	"work":   true,
	"racing": true,
}

var noReplyPrefixes = []string{
	"noreply", "no-reply", "no.reply", "donotreply", "do-not-reply",
	"mailer-daemon", "bounce", "unsubscribe",
}

// regexCache avoids recompiling configured suspicious patterns per record.
var regexCache sync.Map // pattern string -> *regexp.Regexp

// Extract computes the feature set for one record. It returns an
// InvalidRecordError when the record lacks the material features depend on;
// the caller converts that into an INVALID_RECORD result.
func Extract(record *domain.Record, cfg *domain.RuleConfiguration) (*domain.FeatureSet, error) {
	email := strings.ToLower(strings.TrimSpace(record.Email))
	if email == "" {
		return nil, &domain.InvalidRecordError{RecordID: record.ID, Reason: "email is required"}
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return nil, &domain.InvalidRecordError{RecordID: record.ID, Reason: "malformed email address"}
	}
	local, emailDomain := email[:at], email[at+1:]

	fs := &domain.FeatureSet{}

	fs.DomainClass = classifyDomain(emailDomain, cfg.EmailQuality)
	fs.Structural = structuralScore(local)
	fs.QualityFlags = suspiciousFlags(email, cfg.EmailQuality.SuspiciousPatterns)
	fs.Quality = qualityScore(fs.DomainClass, fs.Structural, len(fs.QualityFlags), cfg.EmailQuality.RequireCorporateDomain)

	fs.MatchedKeywords = matchKeywords(record, cfg.CompanyKeywords)
	fs.Relevance = relevanceScore(fs.MatchedKeywords)

	fs.Geography, fs.GeoMultiplier, fs.GeoRule = resolveGeo(record.Country, cfg.GeographicRules)

	fs.Engagement = engagementScore(record.Attributes)

	return fs, nil
}

// classifyDomain resolves the domain class: configured lists first, then the
// built-in lists, then structural heuristics. Domains that look like nothing
// in particular stay unclassified and score neutrally.
func classifyDomain(emailDomain string, rules domain.QualityRules) domain.DomainClass {
	for _, d := range rules.DisposableDomains {
		if strings.EqualFold(d, emailDomain) {
			return domain.DomainDisposable
		}
	}
	for _, d := range rules.FreemailDomains {
		if strings.EqualFold(d, emailDomain) {
			return domain.DomainFreemail
		}
	}
	if builtinDisposable[emailDomain] {
		return domain.DomainDisposable
	}
	if builtinFreemail[emailDomain] {
		return domain.DomainFreemail
	}

	dot := strings.LastIndex(emailDomain, ".")
	if dot < 0 {
		return domain.DomainUnclassified
	}
	tld := emailDomain[dot+1:]
	if suspiciousTLDs[tld] {
		return domain.DomainSuspicious
	}
	if digitDensity(emailDomain) > 0.4 || len(emailDomain) > 40 {
		return domain.DomainSuspicious
	}
	return domain.DomainCorporate
}

// structuralScore rates the local part on [0,100]: length extremes,
// non-alphanumeric density and automated-sender prefixes are penalized.
func structuralScore(local string) float64 {
	score := 100.0

	if len(local) < 3 || len(local) > 30 {
		score -= 25
	}
	if symbolDensity(local) > 0.3 {
		score -= 25
	}
	if digitDensity(local) > 0.5 {
		score -= 20
	}
	for _, prefix := range noReplyPrefixes {
		if strings.HasPrefix(local, prefix) {
			score -= 40
			break
		}
	}

	if score < 0 {
		return 0
	}
	return score
}

func suspiciousFlags(email string, patterns []string) []string {
	var flags []string
	for _, pattern := range patterns {
		re := compiledPattern(pattern)
		if re != nil && re.MatchString(email) {
			flags = append(flags, pattern)
		}
	}
	return flags
}

// compiledPattern returns nil for an invalid pattern; validation rejects
// those before a configuration is accepted.
func compiledPattern(pattern string) *regexp.Regexp {
	if cached, ok := regexCache.Load(pattern); ok {
		return cached.(*regexp.Regexp)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}
	regexCache.Store(pattern, re)
	return re
}

// Class base values for the quality dimension.
var classBase = map[domain.DomainClass]float64{
	domain.DomainCorporate:    90,
	domain.DomainFreemail:     60,
	domain.DomainUnclassified: 50,
	domain.DomainSuspicious:   30,
	domain.DomainDisposable:   10,
}

func qualityScore(class domain.DomainClass, structural float64, flagCount int, requireCorporate bool) float64 {
	score := 0.6*classBase[class] + 0.4*structural
	score -= float64(flagCount) * 15
	if requireCorporate && class != domain.DomainCorporate && score > 40 {
		score = 40
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// resolveGeo resolves a record's country against the geographic rules with
// exact-country > region > others precedence; the first match in that order
// wins. It returns the geography dimension value, the multiplier applied to
// the composite, and the name of the matched rule.
func resolveGeo(country string, rules domain.GeoRules) (score, multiplier float64, ruleName string) {
	name := strings.TrimSpace(country)
	if name == "" {
		return 50, 1.0, "others"
	}

	for _, excluded := range rules.ExcludeCountries {
		if strings.EqualFold(excluded, name) {
			return 0, 0, "excluded:" + excluded
		}
	}

	target := false
	for _, t := range rules.TargetCountries {
		if strings.EqualFold(t, name) {
			target = true
			break
		}
	}

	for c, m := range rules.CountryMultipliers {
		if strings.EqualFold(c, name) {
			if target {
				return 100, m, "country:" + c
			}
			return 85, m, "country:" + c
		}
	}

	if region := regionOf(name); region != "" {
		if m, ok := rules.RegionMultipliers[region]; ok {
			if target {
				return 100, m, "region:" + region
			}
			return 70, m, "region:" + region
		}
	}

	if target {
		return 100, 1.0, "target_country"
	}
	return 50, rules.OthersMultiplier, "others"
}

// engagementScore derives the engagement dimension from the record's
// free-form attributes. With no engagement signals present it stays at a
// neutral 50 so unengaged imports are not punished for missing data.
func engagementScore(attrs map[string]interface{}) float64 {
	var signals []float64

	if v, ok := numericAttr(attrs, "interactions"); ok {
		s := v * 10
		if s > 100 {
			s = 100
		}
		if s < 0 {
			s = 0
		}
		signals = append(signals, s)
	}

	if days, ok := numericAttr(attrs, "last_contact_days"); ok {
		switch {
		case days <= 7:
			signals = append(signals, 100)
		case days <= 30:
			signals = append(signals, 75)
		case days <= 90:
			signals = append(signals, 50)
		case days <= 365:
			signals = append(signals, 25)
		default:
			signals = append(signals, 10)
		}
	}

	if len(signals) == 0 {
		return 50
	}

	total := 0.0
	for _, s := range signals {
		total += s
	}
	return total / float64(len(signals))
}

func numericAttr(attrs map[string]interface{}, key string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	switch v := attrs[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func digitDensity(s string) float64 {
	if s == "" {
		return 0
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return float64(digits) / float64(len(s))
}

func symbolDensity(s string) float64 {
	if s == "" {
		return 0
	}
	symbols := 0
	for _, r := range s {
		if !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			symbols++
		}
	}
	return float64(symbols) / float64(len(s))
}
