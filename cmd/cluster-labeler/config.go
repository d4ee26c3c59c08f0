package main

import (
	"errors"
)

type Config struct {
	InputPath  string
	OutputPath string
	Model      string
	APIKey     string
	MaxOutput  int

	Pretty    bool
	Overwrite bool
}

func (c Config) Validate() error {
	if c.InputPath == "" {
		return errors.New("missing -in")
	}
	if c.OutputPath == "" {
		return errors.New("missing -out")
	}
	if c.Model == "" {
		return errors.New("missing -model")
	}
	if c.MaxOutput <= 0 {
		return errors.New("max-output-tokens must be > 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InputPath:  "cluster_summary.json",
		OutputPath: "cluster_labels.json",
		Model:      "gpt-5-mini",
		MaxOutput:  2500,
	}
}
