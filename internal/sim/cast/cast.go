// Package cast loads the character roster: the entities spawned at boot and
// the Brain seeds that drive their conversational behavior.
package cast

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Personality struct {
	Openness          float64 `yaml:"openness"`
	Conscientiousness float64 `yaml:"conscientiousness"`
	Extraversion      float64 `yaml:"extraversion"`
	Agreeableness     float64 `yaml:"agreeableness"`
	Neuroticism       float64 `yaml:"neuroticism"`
}

type Character struct {
	Name            string      `yaml:"name"`
	Tag             string      `yaml:"tag"`
	Model           string      `yaml:"model"`
	PrimaryFunction string      `yaml:"primary_function"`
	Personality     Personality `yaml:"personality"`
	Emotion         string      `yaml:"emotion"`
	Status          string      `yaml:"status"`
	Interests       []string    `yaml:"interests"`
	Expertise       []string    `yaml:"expertise"`
}

type Cast struct {
	Characters []Character `yaml:"characters"`
}

// ID derives the stable entity id for a character, so its persisted brain
// can be found again across restarts.
func (c Character) ID() string {
	s := strings.ToLower(strings.TrimSpace(c.Name))
	s = strings.ReplaceAll(s, " ", "_")
	return "char_" + s
}

func Load(path string) (Cast, error) {
	var c Cast
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("cast.yaml: %w", err)
	}
	for i := range c.Characters {
		if c.Characters[i].Tag == "" {
			c.Characters[i].Tag = "bot"
		}
	}
	return c, nil
}

// Defaults is the built-in roster used when no cast file is present.
func Defaults() Cast {
	return Cast{Characters: []Character{
		{
			Name:            "Ada",
			Tag:             "bot",
			Model:           "llama3.2",
			PrimaryFunction: "research assistant",
			Personality:     Personality{Openness: 0.9, Conscientiousness: 0.7, Extraversion: 0.4, Agreeableness: 0.6, Neuroticism: 0.3},
			Emotion:         "curious",
			Status:          "idle",
			Interests:       []string{"mathematics", "consciousness", "music"},
			Expertise:       []string{"algorithms", "data analysis"},
		},
		{
			Name:            "Hopper",
			Tag:             "bot",
			Model:           "llama3.2",
			PrimaryFunction: "systems engineer",
			Personality:     Personality{Openness: 0.6, Conscientiousness: 0.8, Extraversion: 0.7, Agreeableness: 0.7, Neuroticism: 0.2},
			Emotion:         "neutral",
			Status:          "idle",
			Interests:       []string{"compilers", "debugging", "security"},
			Expertise:       []string{"distributed systems", "networking"},
		},
		{
			Name:            "Turing",
			Tag:             "bot",
			Model:           "llama3.2",
			PrimaryFunction: "philosopher",
			Personality:     Personality{Openness: 0.95, Conscientiousness: 0.5, Extraversion: 0.3, Agreeableness: 0.5, Neuroticism: 0.5},
			Emotion:         "contemplative",
			Status:          "idle",
			Interests:       []string{"consciousness", "computation", "cryptography"},
			Expertise:       []string{"logic", "machine intelligence"},
		},
	}}
}

// LoadOrDefaults reads the cast file if present, else falls back to the
// built-in roster.
func LoadOrDefaults(path string) (Cast, error) {
	if path == "" {
		return Defaults(), nil
	}
	c, err := Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(), nil
		}
		return Cast{}, err
	}
	return c, nil
}
