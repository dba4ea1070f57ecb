package storage

import "deltaHedge/internal/model"

// ReportSink persists display-rounded position reports.
type ReportSink interface {
	PutReports(snapshot Snapshot) error
}

// Snapshot is one batch of reports taken at the same instant.
type Snapshot struct {
	TakenAt string             `json:"taken_at"`
	Wallet  string             `json:"wallet,omitempty"`
	Reports []model.ReportView `json:"reports"`
}
