package main

import (
	"errors"

	"github.com/theimaginaryfoundation/affect-extract/migration/textcluster"
)

type Config struct {
	InputPath   string
	OutputPath  string
	SummaryPath string

	K       int
	NInit   int
	MaxIter int
	Seed    uint64

	MinDF       int
	MaxFeatures int
	TopTerms    int

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
	if c.SummaryPath == "" {
		return errors.New("missing -summary-out")
	}
	if c.K <= 0 {
		return errors.New("k must be > 0")
	}
	if c.NInit <= 0 || c.MaxIter <= 0 {
		return errors.New("n-init/max-iter must be > 0")
	}
	if c.MinDF <= 0 {
		return errors.New("min-df must be > 0")
	}
	if c.MaxFeatures < 0 || c.TopTerms < 0 {
		return errors.New("max-features/top-terms must be >= 0")
	}
	return nil
}

func defaultConfig() Config {
	v := textcluster.DefaultVectorizerOptions()
	k := textcluster.DefaultKMeansOptions()
	return Config{
		InputPath:   "conversations.csv",
		OutputPath:  "clustered_conversations.csv",
		SummaryPath: "cluster_summary.json",
		K:           k.K,
		NInit:       k.NInit,
		MaxIter:     k.MaxIter,
		Seed:        k.Seed,
		MinDF:       v.MinDF,
		MaxFeatures: v.MaxFeatures,
		TopTerms:    textcluster.DefaultTopTerms,
	}
}
