package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/hive/pkg/models"
)

// PricingFilePath returns the path of the optional pricing override file.
func PricingFilePath() string {
	return filepath.Join(getUserConfigDir(), "pricing.yaml")
}

// LoadPricing reads per-model pricing overrides from a YAML file shaped as:
//
//	gpt-5.3-codex:
//	  input_per_million: 1.25
//	  output_per_million: 10.00
//
// A missing file is not an error; it returns an empty map. Registry
// pricing for models without published rates stays zero until overridden
// here.
func LoadPricing(path string) (map[string]models.ModelPricing, error) {
	if path == "" {
		path = PricingFilePath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]models.ModelPricing{}, nil
		}
		return nil, fmt.Errorf("read pricing file: %w", err)
	}

	overrides := map[string]models.ModelPricing{}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse pricing file %s: %w", path, err)
	}

	return overrides, nil
}
