// Package schema describes the two BigQuery tables the analyst agent queries.
// It is a prose contract for the model; nothing here validates SQL.
package schema

import "fmt"

// Column types as BigQuery names them
const (
	TypeString = "STRING"
	TypeFloat  = "FLOAT"
	TypeDate   = "DATE"
)

const (
	JobPostingsTable = "job_posting_test_data"
	CandidatesTable  = "candidate_test_data"

	// JoinKey links candidates to the job they applied for
	JoinKey = "job_id"
)

type Column struct {
	Name        string
	Type        string
	Description string
}

type Table struct {
	Name    string
	Columns []Column
}

// QualifiedName returns project.dataset.table
func (t Table) QualifiedName(projectID, dataset string) string {
	return fmt.Sprintf("%s.%s.%s", projectID, dataset, t.Name)
}

// Column looks up a column by name
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

var JobPostings = Table{
	Name: JobPostingsTable,
	Columns: []Column{
		{Name: "job_id", Type: TypeString, Description: "Unique identifier for the job posting."},
		{Name: "job_title", Type: TypeString, Description: "The title of the job posting."},
		{Name: "city", Type: TypeString, Description: "The city and/or state of the job."},
		{Name: "country", Type: TypeString, Description: "The country where the job is located."},
		{Name: "salary_min", Type: TypeFloat, Description: "The minimum salary for the role."},
		{Name: "salary_max", Type: TypeFloat, Description: "The maximum salary for the role."},
		{Name: "post_date", Type: TypeDate, Description: "The date the job was posted."},
	},
}

var Candidates = Table{
	Name: CandidatesTable,
	Columns: []Column{
		{Name: "candidate_id", Type: TypeString, Description: "Unique identifier for the candidate."},
		{Name: "job_id", Type: TypeString, Description: "The job ID the candidate applied for. This can be used to join with the job_posting_test_data table."},
		{Name: "first_name", Type: TypeString, Description: "The first name of the candidate."},
		{Name: "last_name", Type: TypeString, Description: "The last name of the candidate."},
		{Name: "email", Type: TypeString, Description: "The email address of the candidate."},
		{Name: "linkedin_profile", Type: TypeString, Description: "The LinkedIn URL of the candidate."},
		{Name: "resume_link", Type: TypeString, Description: "The URL of the candidate's resume."},
		{Name: "application_date", Type: TypeDate, Description: "The date the candidate applied."},
		{Name: "application_status", Type: TypeString, Description: "The status of the candidate application (Applied, Rejected, etc.)."},
		{Name: "referral_source", Type: TypeString, Description: "The source from where the candidate applied (e.g., LinkedIn, Indeed)."},
		{Name: "skills", Type: TypeString, Description: "A comma-separated list of the candidate's skills."},
	},
}

// Tables returns both tables in prompt order
func Tables() []Table {
	return []Table{JobPostings, Candidates}
}
