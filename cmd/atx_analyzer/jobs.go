package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// jobEntry is one capture of a job list file. Empty fields take the command line value.
type jobEntry struct {
	Input     string   `yaml:"input"`
	Output    string   `yaml:"output"`
	Markers   string   `yaml:"markers"`
	Info      string   `yaml:"info"`
	Format    string   `yaml:"format"`
	TarDirs   []string `yaml:"tar_dirs"`
	NoHeaders *bool    `yaml:"no_headers"`
}

type jobList struct {
	Jobs []jobEntry `yaml:"jobs"`
}

// LoadJobs reads a YAML job list:
//
//	jobs:
//	  - input: unit17.csv
//	    output: out/unit17.xml
//	    markers: unit17.bin
//	    format: full
//	    tar_dirs: [raw/unit17]
func LoadJobs(fs afero.Fs, path string, defaults AnalyzeJob) ([]AnalyzeJob, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job list: %w", err)
	}

	var list jobList
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to parse job list %s: %w", path, err)
	}
	if len(list.Jobs) == 0 {
		return nil, fmt.Errorf("job list %s has no jobs", path)
	}

	jobs := make([]AnalyzeJob, 0, len(list.Jobs))
	for i, e := range list.Jobs {
		if e.Input == "" || e.Output == "" {
			return nil, fmt.Errorf("job list %s: job %d needs input and output", path, i+1)
		}
		job := defaults
		job.InputPath = e.Input
		job.OutputPath = e.Output
		if e.Markers != "" {
			job.MarkersPath = e.Markers
		}
		if e.Info != "" {
			job.InfoPath = e.Info
		}
		if e.Format != "" {
			job.Format = e.Format
		}
		if len(e.TarDirs) > 0 {
			job.TarDirs = e.TarDirs
		}
		if e.NoHeaders != nil {
			job.HasHeaders = !*e.NoHeaders
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
