package validate_test

import (
	"errors"
	"testing"

	"github.com/trustint/trustint/internal/model"
	"github.com/trustint/trustint/internal/validate"
)

func baseTrust() model.Trust {
	return model.Trust{Slug: "test-trust", Name: "Test Trust", Jurisdiction: "NZ"}
}

func trusteeRole() model.Role {
	return model.Role{Trust: "test-trust", RoleType: "trustee", Party: "Test Party"}
}

func TestAll_ValidDocumentsPass(t *testing.T) {
	docs := model.Documents{
		Trusts: []model.Trust{baseTrust()},
		Roles:  []model.Role{trusteeRole()},
		Assets: []model.Asset{{
			Trust: "test-trust", Class: "air", Descriptor: "200ft AGL ceiling", Jurisdiction: "NZ",
		}},
	}
	if err := validate.All(docs); err != nil {
		t.Fatalf("All: %v", err)
	}
}

func TestAll_MissingTrusteeFails(t *testing.T) {
	docs := model.Documents{
		Trusts: []model.Trust{baseTrust()},
		Roles:  []model.Role{{Trust: "test-trust", RoleType: "beneficiary", Party: "Test Party"}},
	}
	err := validate.All(docs)
	var verr *validate.Error
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want *validate.Error", err)
	}
	if verr.Entity != `trust "test-trust"` {
		t.Errorf("Entity = %q, want trust %q", verr.Entity, "test-trust")
	}
	if verr.Rule == "" {
		t.Error("Rule should not be empty")
	}
}

func TestAll_AirAssetMissingJurisdictionFails(t *testing.T) {
	docs := model.Documents{
		Trusts: []model.Trust{baseTrust()},
		Roles:  []model.Role{trusteeRole()},
		Assets: []model.Asset{{Trust: "test-trust", Class: "air", Descriptor: "test"}},
	}
	err := validate.All(docs)
	var verr *validate.Error
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want *validate.Error", err)
	}
	if verr.Rule != "air asset must specify a jurisdiction" {
		t.Errorf("Rule = %q", verr.Rule)
	}
}

func TestAll_AirAssetMissingBoundsFails(t *testing.T) {
	docs := model.Documents{
		Trusts: []model.Trust{baseTrust()},
		Roles:  []model.Role{trusteeRole()},
		Assets: []model.Asset{{Trust: "test-trust", Class: "air", Descriptor: "test", Jurisdiction: "NZ"}},
	}
	err := validate.All(docs)
	var verr *validate.Error
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want *validate.Error", err)
	}
	if verr.Rule == "" {
		t.Error("Rule should not be empty")
	}
}

func TestAll_InvalidSlugFailsSchemaPass(t *testing.T) {
	docs := model.Documents{
		Trusts: []model.Trust{{Slug: "AB", Name: "Too Short Slug", Jurisdiction: "NZ"}},
	}
	err := validate.All(docs)
	var verr *validate.Error
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want *validate.Error", err)
	}
}

func TestAll_UnknownRoleTypeFails(t *testing.T) {
	docs := model.Documents{
		Trusts: []model.Trust{baseTrust()},
		Roles:  []model.Role{{Trust: "test-trust", RoleType: "wizard", Party: "Test Party"}},
	}
	if err := validate.All(docs); err == nil {
		t.Fatal("expected failure for unknown role type")
	}
}
