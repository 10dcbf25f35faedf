// Package model holds the data types shared by the scrub pipeline, its
// collaborators and the CLI.
package model

import "time"

// Stage is a job status transition recorded in the document store.
type Stage string

const (
	StagePrepared  Stage = "PREPARED"
	StageAPICalled Stage = "API_CALLED"
	StageDone      Stage = "DONE"
)

// Output file keys written under Job.OutputFiles.
const (
	OutputClean       = "cleanFilePath"
	OutputBlacklisted = "blacklistedFilePath"
	OutputMerged      = "mergedFilePath"
)

// Trigger is the message that starts one scrub job.
type Trigger struct {
	FileID             string `json:"fileId" validate:"required"`
	FileName           string `json:"fileName" validate:"required"`
	Bucket             string `json:"bucket" validate:"required"`
	ConfigDocumentPath string `json:"configDocumentPath" validate:"required"`
}

// JobStatus is one stage transition.
type JobStatus struct {
	Stage       Stage     `json:"stage"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Results summarizes a finished job.
type Results struct {
	Total int `json:"total"`
	Clean int `json:"clean"`
	DNC   int `json:"dnc"`
}

// Job is the configuration document for one upload, as held by the
// document store.
type Job struct {
	Path        string            `json:"path"`
	Config      ColumnConfig      `json:"config"`
	Status      *JobStatus        `json:"status,omitempty"`
	History     []JobStatus       `json:"history,omitempty"`
	Results     *Results          `json:"results,omitempty"`
	OutputFiles map[string]string `json:"outputFiles,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}
