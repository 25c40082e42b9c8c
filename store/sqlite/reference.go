package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/overtime"
	"github.com/solomon-wilson/hrmis-sub002/policy"
)

// WithClock overrides the clock used for tenure (tests).
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// =============================================================================
// POLICIES (policy.Repository)
// =============================================================================

func (s *Store) SaveLeavePolicy(ctx context.Context, p policy.LeavePolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.UpdatedAt = s.now()
	return s.savePolicy(ctx, p.ID, policy.KindLeave, string(p.LeaveTypeID), p.Active, p.Version, func(version int) any {
		p.Version = version
		return p
	})
}

func (s *Store) SaveOvertimePolicy(ctx context.Context, p overtime.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.savePolicy(ctx, p.ID, policy.KindOvertime, "", p.Active, p.Version, func(version int) any {
		p.Version = version
		return p
	})
}

// savePolicy stores a new policy at max(given, 1) and bumps the version of
// an existing one. encode receives the version to persist.
func (s *Store) savePolicy(ctx context.Context, id generic.PolicyID, kind policy.Kind, leaveType string, active bool, given int, encode func(version int) any) error {
	return s.inTx(ctx, func(t *txStore) error {
		var (
			storedKind string
			stored     int
		)
		err := t.q.QueryRowContext(ctx, "SELECT kind, version FROM policies WHERE id = ?", string(id)).Scan(&storedKind, &stored)
		exists := true
		if errors.Is(err, sql.ErrNoRows) {
			exists = false
		} else if err != nil {
			return fmt.Errorf("query policy: %w", err)
		}

		version := max(given, 1)
		if exists {
			if policy.Kind(storedKind) != kind {
				return fmt.Errorf("%w: policy %s is a %s policy", generic.ErrValidation, id, storedKind)
			}
			version = stored + 1
		}
		raw, err := json.Marshal(encode(version))
		if err != nil {
			return fmt.Errorf("encode policy: %w", err)
		}

		now := formatTime(s.now())
		if !exists {
			_, err = t.q.ExecContext(ctx, `
				INSERT INTO policies (id, kind, leave_type_id, active, config_json, version, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, string(id), string(kind), nullString(leaveType), active, string(raw), version, now, now)
		} else {
			_, err = t.q.ExecContext(ctx, `
				UPDATE policies SET leave_type_id = ?, active = ?, config_json = ?, version = ?, updated_at = ?
				WHERE id = ?
			`, nullString(leaveType), active, string(raw), version, now, string(id))
		}
		if err != nil {
			return fmt.Errorf("save policy: %w", err)
		}
		return nil
	})
}

func (s *Store) FindLeavePoliciesByType(ctx context.Context, leaveType generic.LeaveTypeID) ([]policy.LeavePolicy, error) {
	records, err := s.queryPolicies(ctx,
		"SELECT kind, config_json FROM policies WHERE kind = ? AND leave_type_id = ? ORDER BY seq",
		string(policy.KindLeave), string(leaveType))
	if err != nil {
		return nil, err
	}
	out := make([]policy.LeavePolicy, 0, len(records))
	for _, r := range records {
		out = append(out, *r.Leave)
	}
	return out, nil
}

func (s *Store) FindActiveOvertimePolicies(ctx context.Context) ([]overtime.Policy, error) {
	records, err := s.queryPolicies(ctx,
		"SELECT kind, config_json FROM policies WHERE kind = ? AND active ORDER BY seq",
		string(policy.KindOvertime))
	if err != nil {
		return nil, err
	}
	out := make([]overtime.Policy, 0, len(records))
	for _, r := range records {
		out = append(out, *r.Overtime)
	}
	return out, nil
}

func (s *Store) FindByID(ctx context.Context, id generic.PolicyID) (policy.Record, error) {
	records, err := s.queryPolicies(ctx, "SELECT kind, config_json FROM policies WHERE id = ?", string(id))
	if err != nil {
		return policy.Record{}, err
	}
	if len(records) == 0 {
		return policy.Record{}, generic.NotFound("policy", string(id))
	}
	return records[0], nil
}

// ListPolicies returns every policy in save order.
func (s *Store) ListPolicies(ctx context.Context) ([]policy.Record, error) {
	return s.queryPolicies(ctx, "SELECT kind, config_json FROM policies ORDER BY seq")
}

func (s *Store) queryPolicies(ctx context.Context, query string, args ...any) ([]policy.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query policies: %w", err)
	}
	defer rows.Close()

	var out []policy.Record
	for rows.Next() {
		var kind, raw string
		if err := rows.Scan(&kind, &raw); err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		rec := policy.Record{Kind: policy.Kind(kind)}
		switch rec.Kind {
		case policy.KindLeave:
			rec.Leave = &policy.LeavePolicy{}
			err = json.Unmarshal([]byte(raw), rec.Leave)
		case policy.KindOvertime:
			rec.Overtime = &overtime.Policy{}
			err = json.Unmarshal([]byte(raw), rec.Overtime)
		default:
			err = fmt.Errorf("unknown policy kind %q", kind)
		}
		if err != nil {
			return nil, fmt.Errorf("decode policy: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// =============================================================================
// EMPLOYEES (generic.Directory)
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, e generic.Employee) error {
	var errs generic.ValidationErrors
	if e.ID == "" {
		errs.Add("id", "is required")
	}
	if e.HireDate.IsZero() {
		errs.Add("hire_date", "is required")
	}
	if err := errs.Err(); err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees
		(id, name, email, department_id, employment_type, job_title, manager_id, company_id, hire_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			department_id = excluded.department_id,
			employment_type = excluded.employment_type,
			job_title = excluded.job_title,
			manager_id = excluded.manager_id,
			company_id = excluded.company_id,
			hire_date = excluded.hire_date
	`,
		string(e.ID),
		e.Name,
		nullString(e.Email),
		nullString(e.DepartmentID),
		nullString(string(e.EmploymentType)),
		nullString(e.JobTitle),
		nullString(string(e.ManagerID)),
		e.CompanyID,
		formatDate(e.HireDate),
		formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save employee: %w", err)
	}
	return nil
}

const employeeColumns = `id, name, email, department_id, employment_type, job_title, manager_id, company_id, hire_date, created_at`

func (s *Store) GetEmployee(ctx context.Context, id generic.EmployeeID) (generic.Employee, error) {
	list, err := s.queryEmployees(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = ?", string(id))
	if err != nil {
		return generic.Employee{}, err
	}
	if len(list) == 0 {
		return generic.Employee{}, generic.NotFound("employee", string(id))
	}
	return list[0], nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]generic.Employee, error) {
	return s.queryEmployees(ctx, "SELECT "+employeeColumns+" FROM employees ORDER BY id")
}

func (s *Store) queryEmployees(ctx context.Context, query string, args ...any) ([]generic.Employee, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	var out []generic.Employee
	for rows.Next() {
		var (
			e                                  generic.Employee
			id, hireDate, createdAt            string
			email, dept, empType, title, mgrID sql.NullString
		)
		if err := rows.Scan(&id, &e.Name, &email, &dept, &empType, &title, &mgrID, &e.CompanyID, &hireDate, &createdAt); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		e.ID = generic.EmployeeID(id)
		e.Email = email.String
		e.DepartmentID = dept.String
		e.EmploymentType = generic.EmploymentType(empType.String)
		e.JobTitle = title.String
		e.ManagerID = generic.EmployeeID(mgrID.String)
		if e.HireDate, err = parseDate(hireDate); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) GetEmployeeGroupData(ctx context.Context, id generic.EmployeeID) (generic.EmployeeGroupData, error) {
	e, err := s.GetEmployee(ctx, id)
	if err != nil {
		return generic.EmployeeGroupData{}, err
	}
	return e.GroupData(generic.DateOf(s.now())), nil
}

func (s *Store) GetManagerID(ctx context.Context, id generic.EmployeeID) (generic.EmployeeID, error) {
	e, err := s.GetEmployee(ctx, id)
	if err != nil {
		return "", err
	}
	return e.ManagerID, nil
}

func (s *Store) ListDepartmentMembers(ctx context.Context, departmentID string) ([]generic.EmployeeID, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM employees WHERE department_id = ? ORDER BY id", departmentID)
	if err != nil {
		return nil, fmt.Errorf("query department: %w", err)
	}
	defer rows.Close()

	var out []generic.EmployeeID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, generic.EmployeeID(id))
	}
	return out, rows.Err()
}

// EmailOf implements notify.AddressBook.
func (s *Store) EmailOf(ctx context.Context, id generic.EmployeeID) (string, error) {
	e, err := s.GetEmployee(ctx, id)
	if err != nil {
		return "", err
	}
	return e.Email, nil
}

// =============================================================================
// HOLIDAYS (generic.HolidayCalendar)
// =============================================================================

func (s *Store) AddHoliday(ctx context.Context, h generic.Holiday) error {
	if h.Date.IsZero() {
		return generic.ValidationErrors{{Field: "date", Message: "is required"}}
	}
	if h.ID == "" {
		h.ID = fmt.Sprintf("%s:%s:%s", h.CompanyID, formatDate(h.Date), h.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holidays (id, company_id, date, name, recurring, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(company_id, date, name) DO UPDATE SET
			recurring = excluded.recurring
	`, h.ID, h.CompanyID, formatDate(h.Date), h.Name, h.Recurring, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("save holiday: %w", err)
	}
	return nil
}

// IsHoliday matches the company's holidays and the global ones. Recurring
// holidays match on month and day. A lookup error counts as a workday.
func (s *Store) IsHoliday(companyID string, date generic.TimePoint) bool {
	const query = `
		SELECT COUNT(*) FROM holidays
		WHERE (company_id = ? OR company_id = '')
		  AND (
			(recurring = FALSE AND date = ?)
			OR (recurring = TRUE AND strftime('%m-%d', date) = ?)
		  )
	`
	var count int
	err := s.db.QueryRow(query, companyID, formatDate(date), date.Time.Format("01-02")).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

func (s *Store) ListHolidays(ctx context.Context, companyID string) ([]generic.Holiday, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, date, name, recurring
		FROM holidays
		WHERE company_id = ? OR company_id = ''
		ORDER BY date ASC
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("query holidays: %w", err)
	}
	defer rows.Close()

	var out []generic.Holiday
	for rows.Next() {
		var (
			h    generic.Holiday
			date string
		)
		if err := rows.Scan(&h.ID, &h.CompanyID, &date, &h.Name, &h.Recurring); err != nil {
			return nil, err
		}
		if h.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
