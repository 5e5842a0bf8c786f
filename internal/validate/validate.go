// Package validate checks declarative documents (trusts, roles, assets,
// laws) against their schema shape and the registry's cross-record rules
// before the ingest engine is allowed to see them. Unlike the daemon's own
// configuration validation (which aggregates every error for a single
// report), the registry validator fails fast: the first offending entity
// aborts the whole pass, per the single VALIDATION_FAILED contract in
// spec §4.I.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/trustint/trustint/internal/model"
)

// slugPattern is the required shape of a Trust.Slug: lowercase letters,
// digits, and hyphens, at least three characters.
var slugPattern = regexp.MustCompile(`^[a-z0-9-]{3,}$`)

// Error reports the first offending entity and the rule it violated.
// Error.Error() never includes the entity's full contents beyond a
// stringified identifier, to keep failures concise in logs.
type Error struct {
	Entity string // a human-readable identifier of the offending record
	Rule   string // the violated rule, schema or cross-record
}

func (e *Error) Error() string {
	return fmt.Sprintf("validate: %s: %s", e.Entity, e.Rule)
}

func fail(entity, rule string) error {
	return &Error{Entity: entity, Rule: rule}
}

// All runs both validation passes (schema, then cross-record rules) over
// docs and returns the first violation found, or nil if docs is entirely
// valid.
func All(docs model.Documents) error {
	if err := schema(docs); err != nil {
		return err
	}
	return crossRecord(docs)
}

// schema checks that each record matches its declared shape: required
// fields present, string patterns, and enum domains.
func schema(docs model.Documents) error {
	for _, t := range docs.Trusts {
		if !slugPattern.MatchString(t.Slug) {
			return fail(fmt.Sprintf("trust %q", t.Slug), "slug must match ^[a-z0-9-]{3,}$")
		}
		if len(t.Name) < 3 {
			return fail(fmt.Sprintf("trust %q", t.Slug), "name must be at least 3 characters")
		}
		if len(t.Jurisdiction) < 2 {
			return fail(fmt.Sprintf("trust %q", t.Slug), "jurisdiction must be at least 2 characters")
		}
	}

	for _, r := range docs.Roles {
		entity := fmt.Sprintf("role %s/%s", r.Trust, r.Party)
		if r.Trust == "" {
			return fail(entity, "trust is required")
		}
		if !model.RoleTypes[r.RoleType] {
			return fail(entity, "role must be one of: trustee, protector, beneficiary, advisor")
		}
		if len(r.Party) < 2 {
			return fail(entity, "party must be at least 2 characters")
		}
	}

	for _, a := range docs.Assets {
		entity := fmt.Sprintf("asset %s/%s", a.Trust, a.Descriptor)
		if a.Trust == "" {
			return fail(entity, "trust is required")
		}
		if !model.AssetClasses[a.Class] {
			return fail(entity, "class must be one of: land, water, air")
		}
		if len(a.Descriptor) < 2 {
			return fail(entity, "descriptor must be at least 2 characters")
		}
	}

	for _, j := range docs.Laws.Jurisdictions {
		if j.Code == "" || j.Name == "" {
			return fail(fmt.Sprintf("jurisdiction %q", j.Code), "code and name are required")
		}
	}

	for _, o := range docs.Laws.Obligations {
		entity := fmt.Sprintf("obligation %s/%s", o.Trust, o.Name)
		if o.Trust == "" || o.Name == "" {
			return fail(entity, "trust and name are required")
		}
		if !model.ObligationKinds[o.Kind] {
			return fail(entity, "kind must be one of: compliance, covenant")
		}
	}

	return nil
}

// crossRecord checks data-model invariants 1 and 2 from spec §3: every
// trust has a trustee, and every air asset declares a jurisdiction and a
// bounds-indicating descriptor.
func crossRecord(docs model.Documents) error {
	trustees := make(map[string]bool, len(docs.Roles))
	for _, r := range docs.Roles {
		if r.RoleType == "trustee" {
			trustees[r.Trust] = true
		}
	}
	for _, t := range docs.Trusts {
		if !trustees[t.Slug] {
			return fail(fmt.Sprintf("trust %q", t.Slug), "trust has no role of type trustee")
		}
	}

	for _, a := range docs.Assets {
		if a.Class != "air" {
			continue
		}
		entity := fmt.Sprintf("asset %s/%s", a.Trust, a.Descriptor)
		if a.Jurisdiction == "" {
			return fail(entity, "air asset must specify a jurisdiction")
		}
		if !containsAny(strings.ToLower(a.Descriptor), model.AirDescriptorKeywords) {
			return fail(entity, "air asset descriptor must indicate bounds or altitude (agl, ceiling, corridor, altitude)")
		}
	}

	return nil
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
