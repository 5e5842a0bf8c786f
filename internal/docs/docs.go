// Package docs loads the declarative trusts/roles/assets/laws documents
// that the ingest engine consumes, from a config directory holding
// trusts.yaml, roles.yaml, assets.yaml, and laws.yaml. A missing file is
// treated as an empty document, not an error, mirroring the original
// prototype's "yaml.safe_load(...) if p.exists() else None" loader.
package docs

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/trustint/trustint/internal/model"
)

// Load reads trusts.yaml, roles.yaml, assets.yaml, and laws.yaml from dir
// into a model.Documents. Any file that does not exist contributes no
// records.
func Load(dir string) (model.Documents, error) {
	var out model.Documents

	if err := loadYAML(filepath.Join(dir, "trusts.yaml"), &out.Trusts); err != nil {
		return model.Documents{}, err
	}
	if err := loadYAML(filepath.Join(dir, "roles.yaml"), &out.Roles); err != nil {
		return model.Documents{}, err
	}
	if err := loadYAML(filepath.Join(dir, "assets.yaml"), &out.Assets); err != nil {
		return model.Documents{}, err
	}
	if err := loadYAML(filepath.Join(dir, "laws.yaml"), &out.Laws); err != nil {
		return model.Documents{}, err
	}

	return out, nil
}

func loadYAML(path string, dest any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("docs: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("docs: parse %q: %w", path, err)
	}
	return nil
}
