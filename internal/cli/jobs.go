package cli

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teoat/nexus378-sub000/internal/config"
	"github.com/teoat/nexus378-sub000/pkg/model"
)

// jobSpec is one job declaration in a jobs file. Dependencies reference other
// entries by their declared id.
type jobSpec struct {
	ID            string            `yaml:"id"`
	Type          string            `yaml:"type"`
	Priority      string            `yaml:"priority"`
	EstimatedCost float64           `yaml:"estimated_cost"`
	Deadline      *time.Time        `yaml:"deadline,omitempty"`
	Metadata      map[string]string `yaml:"metadata,omitempty"`

	Timeout struct {
		Execution config.Duration `yaml:"execution"`
		Queueing  config.Duration `yaml:"queueing"`
	} `yaml:"timeout"`

	Retry *struct {
		MaxRetries        int             `yaml:"max_retries"`
		RetryDelay        config.Duration `yaml:"retry_delay"`
		BackoffMultiplier float64         `yaml:"backoff_multiplier"`
		MaxRetryDelay     config.Duration `yaml:"max_retry_delay"`
	} `yaml:"retry,omitempty"`

	Dependencies []struct {
		Target    string          `yaml:"target"`
		Type      string          `yaml:"type"`
		Condition string          `yaml:"condition,omitempty"`
		Timeout   config.Duration `yaml:"timeout,omitempty"`
	} `yaml:"dependencies,omitempty"`
}

type jobsFile struct {
	Jobs []jobSpec `yaml:"jobs"`
}

// loadJobs reads a jobs file and resolves symbolic dependency targets to job
// IDs. Jobs are returned in declaration order; dependencies must reference
// earlier or later entries by id.
func loadJobs(path string) ([]*model.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading jobs file: %w", err)
	}
	var file jobsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing jobs file %s: %w", path, err)
	}

	ids := make(map[string]string, len(file.Jobs)) // declared id -> job ID
	jobs := make([]*model.Job, 0, len(file.Jobs))

	for i, spec := range file.Jobs {
		if spec.Type == "" {
			return nil, fmt.Errorf("jobs[%d]: type is required", i)
		}
		priority := model.Priority(spec.Priority)
		if spec.Priority == "" {
			priority = model.PriorityMedium
		}
		if !priority.Valid() {
			return nil, fmt.Errorf("jobs[%d]: unknown priority %q", i, spec.Priority)
		}

		job := model.NewJob(spec.Type, priority)
		if spec.ID != "" {
			if _, dup := ids[spec.ID]; dup {
				return nil, fmt.Errorf("jobs[%d]: duplicate id %q", i, spec.ID)
			}
			job.ID = "job_" + spec.ID
		}
		ids[spec.ID] = job.ID

		job.EstimatedCost = spec.EstimatedCost
		job.Deadline = spec.Deadline
		job.Metadata = spec.Metadata
		job.Timeout.Execution = spec.Timeout.Execution.Std()
		job.Timeout.Queueing = spec.Timeout.Queueing.Std()
		if r := spec.Retry; r != nil {
			job.RetryPolicy = model.RetryPolicy{
				MaxRetries:        r.MaxRetries,
				RetryDelay:        r.RetryDelay.Std(),
				BackoffMultiplier: r.BackoffMultiplier,
				MaxRetryDelay:     r.MaxRetryDelay.Std(),
			}
		}
		jobs = append(jobs, job)
	}

	// Second pass: resolve dependency targets now that every id is known.
	for i, spec := range file.Jobs {
		for _, d := range spec.Dependencies {
			targetID, ok := ids[d.Target]
			if !ok {
				return nil, fmt.Errorf("jobs[%d]: dependency target %q not declared", i, d.Target)
			}
			depType := model.DependencyType(d.Type)
			switch depType {
			case "":
				depType = model.DependencyRequired
			case model.DependencyRequired, model.DependencyOptional, model.DependencyExclusive,
				model.DependencyConditional, model.DependencyTimeout:
			default:
				return nil, fmt.Errorf("jobs[%d]: unknown dependency type %q", i, d.Type)
			}
			if err := jobs[i].AddDependency(model.Dependency{
				TargetJobID: targetID,
				Type:        depType,
				Condition:   d.Condition,
				Timeout:     d.Timeout.Std(),
			}); err != nil {
				return nil, fmt.Errorf("jobs[%d]: %w", i, err)
			}
		}
	}
	return jobs, nil
}
