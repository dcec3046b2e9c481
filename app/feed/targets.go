package feed

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultLinkReservedChars = 23 // t.co wraps every URL to 23 characters

func DefaultTargets() []Target {
	return []Target{
		{
			Name:              "twitter",
			MaxChars:          280,
			LinkReservedChars: DefaultLinkReservedChars,
			Output:            "cleaned_letterboxd_twitter.xml",
			Title:             "Twitter",
		},
		{
			Name:              "threads",
			MaxChars:          500,
			LinkReservedChars: DefaultLinkReservedChars,
			Output:            "cleaned_letterboxd_threads.xml",
			Title:             "Threads",
		},
	}
}

// LoadTargets reads target definitions from a YAML file, or returns the
// defaults when path is empty. overrides replace MaxChars by target name.
func LoadTargets(path string, overrides map[string]int) ([]Target, error) {
	targets := DefaultTargets()

	if path != "" {
		parsed, err := parseTargets(path)
		if err != nil {
			return nil, err
		}
		targets = parsed
	}

	for name, maxChars := range overrides {
		found := false
		for i := range targets {
			if targets[i].Name == name {
				targets[i].MaxChars = maxChars
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("max chars override for unknown target '%s'", name)
		}
	}

	if err := validateTargets(targets); err != nil {
		return nil, err
	}

	for _, target := range targets {
		slog.Debug("Target loaded", "target", target.Name, "max_chars", target.MaxChars, "output", target.Output)
	}

	return targets, nil
}

func parseTargets(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}

	var file TargetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i := range file.Targets {
		setTargetDefaults(&file.Targets[i])
	}

	return file.Targets, nil
}

func setTargetDefaults(target *Target) {
	if target.LinkReservedChars == 0 {
		target.LinkReservedChars = DefaultLinkReservedChars
	}
	if target.Output == "" && target.Name != "" {
		target.Output = strings.ToLower(target.Name) + ".xml"
	}
}

func validateTargets(targets []Target) error {
	if len(targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}

	names := make(map[string]bool)
	outputs := make(map[string]bool)

	for i, target := range targets {
		if target.Name == "" {
			return fmt.Errorf("target at index %d has no name", i)
		}
		if names[strings.ToLower(target.Name)] {
			return fmt.Errorf("duplicate target name '%s'", target.Name)
		}
		names[strings.ToLower(target.Name)] = true

		if target.MaxChars <= 0 {
			return fmt.Errorf("target '%s': max chars must be positive", target.Name)
		}
		if target.LinkReservedChars < 0 || target.LinkReservedChars >= target.MaxChars {
			return fmt.Errorf("target '%s': link reserved chars must be between 0 and max chars", target.Name)
		}

		if outputs[target.Output] {
			return fmt.Errorf("target '%s': output '%s' already used", target.Name, target.Output)
		}
		outputs[target.Output] = true
	}

	return nil
}
