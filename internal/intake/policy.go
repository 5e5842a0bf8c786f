package intake

import "strings"

// Policy is the operator-supplied intake policy document: which file
// extensions are admitted, the maximum accepted size, and a free-form
// identifier recorded against every decision for later audit.
type Policy struct {
	PolicyID string `yaml:"policy_id"`
	Rules    struct {
		AllowedExtensions []string `yaml:"allowed_extensions"`
		MaxSizeBytes      int64    `yaml:"max_size_bytes"`
	} `yaml:"rules"`
}

// allows reports whether ext (already lowercased, leading dot included) is
// in the policy's allowed_extensions list.
func (p Policy) allows(ext string) bool {
	for _, a := range p.Rules.AllowedExtensions {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}
