package main

import (
	"errors"

	"github.com/theimaginaryfoundation/affect-extract/migration"
)

type Config struct {
	InputPath   string
	OutputPath  string
	MinMessages int
	MaxChars    int
	Overwrite   bool
}

func (c Config) Validate() error {
	if c.InputPath == "" {
		return errors.New("missing -in")
	}
	if c.OutputPath == "" {
		return errors.New("missing -out")
	}
	if c.MinMessages <= 0 {
		return errors.New("min-messages must be > 0")
	}
	if c.MaxChars <= 0 {
		return errors.New("max-chars must be > 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InputPath:   "conversations.json",
		OutputPath:  "conversations.csv",
		MinMessages: migration.DefaultMinMessages,
		MaxChars:    migration.DefaultMaxChars,
	}
}
