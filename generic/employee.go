package generic

import (
	"context"
	"slices"
	"time"
)

// =============================================================================
// EMPLOYEE GROUP DATA - Minimal projection used for policy evaluation
// =============================================================================

type EmploymentType string

const (
	EmploymentFullTime  EmploymentType = "FULL_TIME"
	EmploymentPartTime  EmploymentType = "PART_TIME"
	EmploymentContract  EmploymentType = "CONTRACT"
	EmploymentIntern    EmploymentType = "INTERN"
	EmploymentProbation EmploymentType = "PROBATION"
)

// EmployeeGroupData is what the directory tells the engine about an employee.
type EmployeeGroupData struct {
	EmployeeID     EmployeeID
	DepartmentID   string
	EmploymentType EmploymentType
	TenureDays     int
	JobTitle       string
	StartDate      TimePoint
	CompanyID      string
}

// TenureAt returns tenure in days at the given date, falling back to TenureDays
// when no start date is known.
func (g EmployeeGroupData) TenureAt(at TimePoint) int {
	if g.StartDate.IsZero() {
		return g.TenureDays
	}
	return DaysBetween(g.StartDate, at)
}

// GroupFilter selects employees by group attributes. Empty lists match everyone.
type GroupFilter struct {
	Departments     []string
	EmploymentTypes []EmploymentType
	JobTitles       []string
}

// Matches reports whether the employee falls in the filtered group.
func (f GroupFilter) Matches(g EmployeeGroupData) bool {
	if len(f.Departments) > 0 && !slices.Contains(f.Departments, g.DepartmentID) {
		return false
	}
	if len(f.EmploymentTypes) > 0 && !slices.Contains(f.EmploymentTypes, g.EmploymentType) {
		return false
	}
	if len(f.JobTitles) > 0 && !slices.Contains(f.JobTitles, g.JobTitle) {
		return false
	}
	return true
}

// =============================================================================
// DIRECTORY - Employee/Org collaborator
// =============================================================================

// Directory is the read-only view of the employee directory the engine consumes.
type Directory interface {
	GetEmployeeGroupData(ctx context.Context, id EmployeeID) (EmployeeGroupData, error)

	// GetManagerID returns "" when the employee has no manager.
	GetManagerID(ctx context.Context, id EmployeeID) (EmployeeID, error)

	ListDepartmentMembers(ctx context.Context, departmentID string) ([]EmployeeID, error)
}

// Employee is the stored directory record.
type Employee struct {
	ID             EmployeeID
	Name           string
	Email          string
	DepartmentID   string
	EmploymentType EmploymentType
	JobTitle       string
	ManagerID      EmployeeID
	CompanyID      string
	HireDate       TimePoint
	CreatedAt      time.Time
}

// GroupData projects an employee record for policy evaluation as of a date.
func (e Employee) GroupData(asOf TimePoint) EmployeeGroupData {
	return EmployeeGroupData{
		EmployeeID:     e.ID,
		DepartmentID:   e.DepartmentID,
		EmploymentType: e.EmploymentType,
		TenureDays:     DaysBetween(e.HireDate, asOf),
		JobTitle:       e.JobTitle,
		StartDate:      e.HireDate,
		CompanyID:      e.CompanyID,
	}
}
