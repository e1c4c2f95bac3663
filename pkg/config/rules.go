package config

import (
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/caravan/pkg/errtag"
	"github.com/cuemby/caravan/pkg/types"
)

type anonymizationRulesFile struct {
	Rules []types.AnonymizationRule `yaml:"rules"`
}

// LoadAnonymizationRules reads the ordered rule list from a YAML file
// and validates every pattern and strategy up front, so rule problems
// surface as configuration errors before any data is touched.
func LoadAnonymizationRules(path string) ([]types.AnonymizationRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errtag.Configuration.New("reading anonymization rules %s: %v", path, err)
	}

	var file anonymizationRulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errtag.Configuration.New("parsing anonymization rules %s: %v", path, err)
	}

	for i, rule := range file.Rules {
		if rule.Name == "" {
			return nil, errtag.Configuration.New("rule %d has no name", i)
		}
		if _, err := regexp.Compile("(?i)" + rule.FieldPattern); err != nil {
			return nil, errtag.Configuration.New("rule %q has invalid field_pattern: %v", rule.Name, err)
		}
		switch rule.Strategy {
		case types.StrategySynthetic, types.StrategyHash, types.StrategyToken,
			types.StrategyNull, types.StrategyPassthrough:
		default:
			return nil, errtag.Configuration.New("rule %q has unknown strategy %q", rule.Name, rule.Strategy)
		}
	}
	return file.Rules, nil
}

// LoadValidationRules reads the grouped validation rule families from
// a YAML file
func LoadValidationRules(path string) (types.ValidationRules, error) {
	var rules types.ValidationRules

	data, err := os.ReadFile(path)
	if err != nil {
		return rules, errtag.Configuration.New("reading validation rules %s: %v", path, err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return rules, errtag.Configuration.New("parsing validation rules %s: %v", path, err)
	}
	return rules, nil
}
