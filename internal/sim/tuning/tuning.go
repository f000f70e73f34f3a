package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz      int `yaml:"tick_rate_hz"`
	AutosaveSeconds int `yaml:"autosave_seconds"`
	ContextWindow   int `yaml:"context_window"`

	Conversation Conversation `yaml:"conversation"`
	Generator    Generator    `yaml:"generator"`
}

type Conversation struct {
	BaseIntervalTicks int `yaml:"base_interval_ticks"`
	JitterTicks       int `yaml:"jitter_ticks"`
	TurnDelayTicks    int `yaml:"turn_delay_ticks"`
	BaseLength        int `yaml:"base_length"`
	LengthJitter      int `yaml:"length_jitter"`
	WrapupTurns       int `yaml:"wrapup_turns"`
	MaxSeconds        int `yaml:"max_seconds"`
	IdleConnTicks     int `yaml:"idle_conn_ticks"`
}

type Generator struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:      5,
		AutosaveSeconds: 30,
		ContextWindow:   10,
		Conversation: Conversation{
			BaseIntervalTicks: 150,
			JitterTicks:       75,
			TurnDelayTicks:    10,
			BaseLength:        8,
			LengthJitter:      2,
			WrapupTurns:       2,
			MaxSeconds:        300,
			IdleConnTicks:     600,
		},
		Generator: Generator{
			Model:          "llama3.2",
			TimeoutSeconds: 20,
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}
