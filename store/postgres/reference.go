package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/overtime"
	"github.com/solomon-wilson/hrmis-sub002/policy"
)

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
// an existing one under a row lock.
func (s *Store) savePolicy(ctx context.Context, id generic.PolicyID, kind policy.Kind, leaveType string, active bool, given int, encode func(version int) any) error {
	return s.withTransaction(ctx, func(t *txStore) error {
		var (
			storedKind string
			stored     int
		)
		err := t.q.QueryRow(ctx, "SELECT kind, version FROM policies WHERE id = $1 FOR UPDATE", string(id)).Scan(&storedKind, &stored)
		exists := true
		if errors.Is(err, pgx.ErrNoRows) {
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

		now := s.now()
		if !exists {
			_, err = t.q.Exec(ctx, `
				INSERT INTO policies (id, kind, leave_type_id, active, config, version, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			`, string(id), string(kind), nullString(leaveType), active, raw, version, now)
			if isUniqueViolation(err) {
				return generic.ErrConcurrentModification
			}
		} else {
			_, err = t.q.Exec(ctx, `
				UPDATE policies SET leave_type_id = $2, active = $3, config = $4, version = $5, updated_at = $6
				WHERE id = $1
			`, string(id), nullString(leaveType), active, raw, version, now)
		}
		if err != nil {
			return fmt.Errorf("save policy: %w", err)
		}
		return nil
	})
}

func (s *Store) FindLeavePoliciesByType(ctx context.Context, leaveType generic.LeaveTypeID) ([]policy.LeavePolicy, error) {
	records, err := s.queryPolicies(ctx,
		"SELECT kind, config FROM policies WHERE kind = $1 AND leave_type_id = $2 ORDER BY seq",
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
		"SELECT kind, config FROM policies WHERE kind = $1 AND active ORDER BY seq",
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
	records, err := s.queryPolicies(ctx, "SELECT kind, config FROM policies WHERE id = $1", string(id))
	if err != nil {
		return policy.Record{}, err
	}
	if len(records) == 0 {
		return policy.Record{}, generic.NotFound("policy", string(id))
	}
	return records[0], nil
}

func (s *Store) ListPolicies(ctx context.Context) ([]policy.Record, error) {
	return s.queryPolicies(ctx, "SELECT kind, config FROM policies ORDER BY seq")
}

func (s *Store) queryPolicies(ctx context.Context, query string, args ...any) ([]policy.Record, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query policies: %w", err)
	}
	defer rows.Close()

	var out []policy.Record
	for rows.Next() {
		var (
			kind string
			raw  []byte
		)
		if err := rows.Scan(&kind, &raw); err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		rec := policy.Record{Kind: policy.Kind(kind)}
		switch rec.Kind {
		case policy.KindLeave:
			rec.Leave = &policy.LeavePolicy{}
			err = json.Unmarshal(raw, rec.Leave)
		case policy.KindOvertime:
			rec.Overtime = &overtime.Policy{}
			err = json.Unmarshal(raw, rec.Overtime)
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

	_, err := s.pool.Exec(ctx, `
		INSERT INTO employees
		(id, name, email, department_id, employment_type, job_title, manager_id, company_id, hire_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			department_id = EXCLUDED.department_id,
			employment_type = EXCLUDED.employment_type,
			job_title = EXCLUDED.job_title,
			manager_id = EXCLUDED.manager_id,
			company_id = EXCLUDED.company_id,
			hire_date = EXCLUDED.hire_date
	`,
		string(e.ID),
		e.Name,
		nullString(e.Email),
		nullString(e.DepartmentID),
		nullString(string(e.EmploymentType)),
		nullString(e.JobTitle),
		nullString(string(e.ManagerID)),
		e.CompanyID,
		e.HireDate.Time,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save employee: %w", err)
	}
	return nil
}

const employeeColumns = `id, name, email, department_id, employment_type, job_title, manager_id, company_id, hire_date, created_at`

func (s *Store) GetEmployee(ctx context.Context, id generic.EmployeeID) (generic.Employee, error) {
	var (
		e                                  generic.Employee
		email, dept, empType, title, mgrID *string
		hireDate                           time.Time
	)
	err := scanOne(
		s.pool.QueryRow(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = $1", string(id)),
		"employee", string(id),
		&e.ID, &e.Name, &email, &dept, &empType, &title, &mgrID, &e.CompanyID, &hireDate, &e.CreatedAt,
	)
	if err != nil {
		return generic.Employee{}, err
	}
	fillEmployee(&e, email, dept, empType, title, mgrID, hireDate)
	return e, nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]generic.Employee, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+employeeColumns+" FROM employees ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	var out []generic.Employee
	for rows.Next() {
		var (
			e                                  generic.Employee
			email, dept, empType, title, mgrID *string
			hireDate                           time.Time
		)
		if err := rows.Scan(&e.ID, &e.Name, &email, &dept, &empType, &title, &mgrID, &e.CompanyID, &hireDate, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		fillEmployee(&e, email, dept, empType, title, mgrID, hireDate)
		out = append(out, e)
	}
	return out, rows.Err()
}

func fillEmployee(e *generic.Employee, email, dept, empType, title, mgrID *string, hireDate time.Time) {
	e.Email = deref(email)
	e.DepartmentID = deref(dept)
	e.EmploymentType = generic.EmploymentType(deref(empType))
	e.JobTitle = deref(title)
	e.ManagerID = generic.EmployeeID(deref(mgrID))
	e.HireDate = dateOf(hireDate)
	e.CreatedAt = e.CreatedAt.UTC()
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
	rows, err := s.pool.Query(ctx, "SELECT id FROM employees WHERE department_id = $1 ORDER BY id", departmentID)
	if err != nil {
		return nil, fmt.Errorf("query department: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	out := make([]generic.EmployeeID, len(ids))
	for i, id := range ids {
		out[i] = generic.EmployeeID(id)
	}
	return out, nil
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
		h.ID = fmt.Sprintf("%s:%s:%s", h.CompanyID, h.Date.Time.Format(generic.DateLayout), h.Name)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO holidays (id, company_id, date, name, recurring, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (company_id, date, name) DO UPDATE SET
			recurring = EXCLUDED.recurring
	`, h.ID, h.CompanyID, h.Date.Time, h.Name, h.Recurring, s.now())
	if err != nil {
		return fmt.Errorf("save holiday: %w", err)
	}
	return nil
}

// holidayLookupTimeout bounds IsHoliday, which has no caller context.
const holidayLookupTimeout = 5 * time.Second

// IsHoliday matches the company's holidays and the global ones. Recurring
// holidays match on month and day. A lookup error counts as a workday.
func (s *Store) IsHoliday(companyID string, date generic.TimePoint) bool {
	ctx, cancel := context.WithTimeout(context.Background(), holidayLookupTimeout)
	defer cancel()

	const query = `
		SELECT EXISTS (
			SELECT 1 FROM holidays
			WHERE (company_id = $1 OR company_id = '')
			  AND (
				(NOT recurring AND date = $2)
				OR (recurring AND EXTRACT(MONTH FROM date) = $3 AND EXTRACT(DAY FROM date) = $4)
			  )
		)
	`
	var found bool
	err := s.pool.QueryRow(ctx, query, companyID, date.Time, int(date.Month()), date.Day()).Scan(&found)
	if err != nil {
		return false
	}
	return found
}

func (s *Store) ListHolidays(ctx context.Context, companyID string) ([]generic.Holiday, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, company_id, date, name, recurring
		FROM holidays
		WHERE company_id = $1 OR company_id = ''
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
			date time.Time
		)
		if err := rows.Scan(&h.ID, &h.CompanyID, &date, &h.Name, &h.Recurring); err != nil {
			return nil, err
		}
		h.Date = dateOf(date)
		out = append(out, h)
	}
	return out, rows.Err()
}
