package validator

import (
	"net/url"
	"regexp"
)

// semverRe matches MAJOR.MINOR.PATCH with an optional pre-release or build
// suffix. shortVerRe matches a version that stops at MAJOR.MINOR, which is
// tolerated with a warning.
var (
	semverRe   = regexp.MustCompile(`^\d+\.\d+\.\d+(?:[-+][0-9A-Za-z.\-]+)?$`)
	shortVerRe = regexp.MustCompile(`^\d+\.\d+(?:[-+][0-9A-Za-z.\-]+)?$`)
)

// ValidateCard checks an Agent Card against the protocol's structural rules.
// All rules run regardless of earlier findings and their order does not
// affect the outcome. Unknown top-level fields are ignored for forward
// compatibility.
func ValidateCard(card map[string]any) Result {
	var res Result

	for _, field := range []string{"name", "description"} {
		v, present := card[field]
		switch {
		case !present:
			res.errorf("required field is missing: %q", field)
		case !nonEmptyString(v):
			res.errorf("field %q must be a non-empty string", field)
		}
	}

	validateCardURL(card, &res)
	validateCardVersion(card, &res)
	validateCapabilities(card, &res)
	validateSkills(card, &res)
	validateModes(card, &res)

	return res
}

func validateCardURL(card map[string]any, res *Result) {
	v, present := card["url"]
	if !present {
		res.errorf("required field is missing: %q", "url")
		return
	}
	if !nonEmptyString(v) {
		res.errorf("field %q must be a non-empty string", "url")
		return
	}
	u, err := url.Parse(v.(string))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		res.errorf("field %q must be an absolute URL with http(s) scheme and host", "url")
	}
}

func validateCardVersion(card map[string]any, res *Result) {
	v, present := card["version"]
	if !present {
		res.errorf("required field is missing: %q", "version")
		return
	}
	if !nonEmptyString(v) {
		res.errorf("field %q must be a non-empty string", "version")
		return
	}
	ver := v.(string)
	switch {
	case semverRe.MatchString(ver):
	case shortVerRe.MatchString(ver):
		res.warnf("field %q is missing the patch component (e.g. '1.2.0' instead of '1.2')", "version")
	default:
		res.errorf("field %q should be semver-like (e.g. '1.2.3' or '1.2.3-alpha')", "version")
	}
}

func validateCapabilities(card map[string]any, res *Result) {
	v, present := card["capabilities"]
	if !present {
		res.errorf("required field is missing: %q", "capabilities")
		return
	}
	caps, ok := v.(map[string]any)
	if !ok {
		res.errorf("field %q must be an object", "capabilities")
		return
	}
	if streaming, present := caps["streaming"]; present {
		if _, ok := streaming.(bool); !ok {
			res.errorf("field %q must be a boolean if present", "capabilities.streaming")
		}
	}
}

func validateSkills(card map[string]any, res *Result) {
	v, present := card["skills"]
	if !present {
		res.errorf("required field is missing: %q", "skills")
		return
	}
	skills, ok := v.([]any)
	if !ok {
		res.errorf("field %q must be an array", "skills")
		return
	}
	if len(skills) == 0 {
		res.warnf("field %q is empty; an agent that performs actions should declare at least one skill", "skills")
		return
	}
	for i, s := range skills {
		entry, ok := s.(map[string]any)
		if !ok {
			res.errorf("skills[%d] must be an object", i)
			continue
		}
		if !nonEmptyString(entry["name"]) && !nonEmptyString(entry["id"]) {
			res.errorf("skills[%d] must carry a non-empty 'name' or 'id'", i)
		}
	}
}

func validateModes(card map[string]any, res *Result) {
	for _, field := range []string{"defaultInputModes", "defaultOutputModes"} {
		v, present := card[field]
		if !present {
			res.warnf("field %q is missing", field)
			continue
		}
		modes, ok := stringSlice(v)
		if !ok {
			res.errorf("field %q must be an array of strings", field)
			continue
		}
		if len(modes) == 0 {
			res.errorf("field %q must not be empty", field)
		}
	}
}
