// Package models defines the data structures used across the application.
// These map to the forensic case tracking schema: cases, samples,
// custody_events, lab_results, users and labs.
package models

import "time"

// User roles. Officers file cases, lab users act through the partner API,
// admins manage users and labs.
const (
	RoleAdmin   = "admin"
	RoleOfficer = "officer"
	RoleLab     = "lab"
)

// Well-known custody actions. Status transitions use the "status:<value>"
// form built by StatusAction.
const (
	ActionCreatedCase    = "created_case"
	ActionReceivedByLab  = "received_by_lab"
	ActionCompletedByLab = "completed_by_lab"
)

// StatusAction builds the custody action tag for a case status change.
func StatusAction(newStatus string) string {
	return "status:" + newStatus
}

// Case is a tracked investigation unit identified by a unique case number.
// All foreign linkage (samples, custody events, lab results) is by the
// human-readable CaseNumber, not by surrogate id.
type Case struct {
	ID            int64     `json:"id" db:"id"`
	CaseNumber    string    `json:"case_number" db:"case_number"`
	OffenceType   string    `json:"offence_type" db:"offence_type"`
	Description   string    `json:"description" db:"description"`
	PriorityScore int       `json:"priority_score" db:"priority_score"`
	Status        string    `json:"status" db:"status"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	CreatedBy     string    `json:"created_by" db:"created_by"`
	LabAssigned   string    `json:"lab_assigned,omitempty" db:"lab_assigned"`
}

// Sample is a physical evidence item tied to one case via CaseNumber and
// identified by a human-readable code.
type Sample struct {
	ID         int64     `json:"id" db:"id"`
	CaseNumber string    `json:"case_number" db:"case_number"`
	Code       string    `json:"code" db:"code"`
	QRPath     string    `json:"qr_path" db:"qr_path"`
	Status     string    `json:"status" db:"status"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// CustodyEvent is one immutable, hash-linked record of an action taken
// against a case. Seq is the per-case append sequence and the authoritative
// ordering key; RecordedAt is display metadata only.
//
// PrevHash is the hash of the case's previous event ("" for the first),
// Hash is the digest of (PrevHash, canonical payload).
type CustodyEvent struct {
	ID         int64     `json:"id" db:"id"`
	CaseNumber string    `json:"case_number" db:"case_number"`
	SampleCode string    `json:"sample_code,omitempty" db:"sample_code"`
	Seq        int64     `json:"seq" db:"seq"`
	Actor      string    `json:"actor" db:"actor"`
	Action     string    `json:"action" db:"action"`
	RecordedAt time.Time `json:"timestamp" db:"recorded_at"`
	Note       string    `json:"note,omitempty" db:"note"`
	PrevHash   string    `json:"prev_hash" db:"prev_hash"`
	Hash       string    `json:"hash" db:"hash"`
}

// LabResult is a result summary filed by a partner lab for a case.
// Append-only: there is no update path.
type LabResult struct {
	ID            int64     `json:"id" db:"id"`
	CaseNumber    string    `json:"case_number" db:"case_number"`
	SampleCode    string    `json:"sample_code,omitempty" db:"sample_code"`
	LabUser       string    `json:"lab_user" db:"lab_user"`
	ResultSummary string    `json:"result_summary" db:"result_summary"`
	ResultFile    string    `json:"result_file,omitempty" db:"result_file"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// User is an agency or partner-lab account. Lab users carry an opaque
// APIToken used by the partner-lab API; it is never exposed in JSON.
type User struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	Role         string    `json:"role" db:"role"`
	PasswordHash string    `json:"-" db:"password_hash"`
	APIToken     string    `json:"-" db:"api_token"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Lab is a partner laboratory cases can be routed to.
type Lab struct {
	ID           int64     `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	ContactEmail string    `json:"contact_email" db:"contact_email"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// VerificationResult is the outcome of a ledger integrity check.
// BreakAt carries the id of the first event whose link or hash failed.
type VerificationResult struct {
	CaseNumber string `json:"case_number"`
	Valid      bool   `json:"valid"`
	BreakAt    *int64 `json:"break_at"`
	Events     int    `json:"events"`
}

// CaseDetail bundles everything a case view needs.
type CaseDetail struct {
	Case       Case           `json:"case"`
	Samples    []Sample       `json:"samples"`
	Events     []CustodyEvent `json:"events"`
	LabResults []LabResult    `json:"lab_results"`
}

// CreateCaseRequest is the request body for filing a new case.
type CreateCaseRequest struct {
	CaseNumber       string `json:"case_number"`
	OffenceType      string `json:"offence_type"`
	Description      string `json:"description"`
	SuspectInCustody bool   `json:"suspect_in_custody"`
}

// CreateCaseResponse returns everything created by a case filing.
type CreateCaseResponse struct {
	Case   Case         `json:"case"`
	Sample Sample       `json:"sample"`
	Event  CustodyEvent `json:"event"`
}

// ChangeStatusRequest is the request body for a case status transition.
type ChangeStatusRequest struct {
	Status string `json:"status"`
}

// AddSampleRequest is the request body for registering an extra sample.
type AddSampleRequest struct {
	Code string `json:"code"`
	Note string `json:"note"`
}

// CompleteRequest is the partner-lab completion payload.
type CompleteRequest struct {
	ResultSummary string `json:"result_summary"`
	ResultFile    string `json:"result_file"`
}

// LoginRequest is the web login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// CreateUserRequest is the admin payload for provisioning an account.
// Lab accounts are issued an API token on creation.
type CreateUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

// CreateLabRequest is the admin payload for registering a partner lab.
type CreateLabRequest struct {
	Name         string `json:"name"`
	ContactEmail string `json:"contact_email"`
}

// HealthStatus represents the server health check response.
type HealthStatus struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Database string `json:"database,omitempty"`
}
