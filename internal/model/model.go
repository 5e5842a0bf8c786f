// Package model defines the declarative document shapes read from YAML
// configuration (trusts, roles, assets, laws) and decoded with
// gopkg.in/yaml.v3, the same library the daemon's own configuration layer
// uses. These types are the shared vocabulary between the validator
// (package validate) and the ingest engine (package ingest): the validator
// checks a decoded set before ingest ever sees it.
package model

// Trust is one entry of trusts.yaml.
type Trust struct {
	Slug         string `yaml:"slug"`
	Name         string `yaml:"name"`
	Purpose      string `yaml:"purpose"`
	Jurisdiction string `yaml:"jurisdiction"`
}

// Role is one entry of roles.yaml. RoleType must be one of the values in
// RoleTypes. Powers is an opaque mapping passed through to canon.Marshal
// unchanged.
type Role struct {
	Trust    string         `yaml:"trust"`
	RoleType string         `yaml:"role"`
	Party    string         `yaml:"party"`
	Powers   map[string]any `yaml:"powers"`
}

// RoleTypes enumerates the valid Role.RoleType values (spec §3).
var RoleTypes = map[string]bool{
	"trustee":     true,
	"protector":   true,
	"beneficiary": true,
	"advisor":     true,
}

// Asset is one entry of assets.yaml. Class must be one of AssetClasses.
type Asset struct {
	Trust        string         `yaml:"trust"`
	Class        string         `yaml:"class"`
	Descriptor   string         `yaml:"descriptor"`
	Jurisdiction string         `yaml:"jurisdiction"`
	Metadata     map[string]any `yaml:"metadata"`
}

// AssetClasses enumerates the valid Asset.Class values (spec §3).
var AssetClasses = map[string]bool{
	"land":  true,
	"water": true,
	"air":   true,
}

// AirDescriptorKeywords is the set of substrings of which an air asset's
// descriptor must contain at least one (case-insensitive), per data-model
// invariant 2.
var AirDescriptorKeywords = []string{"agl", "ceiling", "corridor", "altitude"}

// Obligation is one entry of laws.yaml's obligations sequence. Kind must
// be one of ObligationKinds.
type Obligation struct {
	Trust     string         `yaml:"trust"`
	Name      string         `yaml:"name"`
	Kind      string         `yaml:"kind"`
	Schedule  string         `yaml:"schedule"`
	Authority string         `yaml:"authority"`
	Details   map[string]any `yaml:"details"`
}

// ObligationKinds enumerates the valid Obligation.Kind values (spec §3).
var ObligationKinds = map[string]bool{
	"compliance": true,
	"covenant":   true,
}

// Jurisdiction is one entry of laws.yaml's jurisdictions sequence.
type Jurisdiction struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

// Laws is the decoded shape of laws.yaml: jurisdictions and obligations
// travel together in one document.
type Laws struct {
	Jurisdictions []Jurisdiction `yaml:"jurisdictions"`
	Obligations   []Obligation   `yaml:"obligations"`
}

// Documents bundles the four declarative inputs the validator checks
// together and the ingest engine consumes together.
type Documents struct {
	Trusts []Trust
	Roles  []Role
	Assets []Asset
	Laws   Laws
}
