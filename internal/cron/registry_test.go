package cron

import (
	"context"
	"testing"
)

type namedJob struct {
	name string
}

func (j *namedJob) Name() string              { return j.name }
func (j *namedJob) Run(context.Context) error { return nil }

func TestRegistryKeepsRunOrderAndIgnoresNils(t *testing.T) {
	renewal := &namedJob{name: "subscription-renewal"}
	grants := &namedJob{name: "grant-expiry"}
	registry := NewRegistry(renewal, nil, grants)

	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected nil job dropped, got %d jobs", len(jobs))
	}
	if jobs[0] != renewal || jobs[1] != grants {
		t.Fatal("jobs returned out of registration order")
	}

	// the returned slice must be a copy
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatal("internal job slice leaked to caller")
	}
}
