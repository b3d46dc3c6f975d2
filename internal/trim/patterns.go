package trim

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// patternFile is the on-disk shape of a trim pattern file:
//
//	patterns:
//	  - '(?im)^confidential\s*$'
//	  - '(?m)^draft v\d+$'
//
// Each entry is a Go regular expression applied to the whole document.
// Matches are removed, so patterns should anchor on line boundaries.
type patternFile struct {
	Patterns []string `yaml:"patterns"`
}

// LoadPatternFile reads extra boilerplate patterns from a YAML file.
func LoadPatternFile(path string) ([]*regexp.Regexp, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern file: %w", err)
	}

	var file patternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse pattern file %s: %w", path, err)
	}

	patterns := make([]*regexp.Regexp, 0, len(file.Patterns))
	for _, raw := range file.Patterns {
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", raw, err)
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}
