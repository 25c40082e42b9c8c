package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/solomon-wilson/hrmis-sub002/generic"
)

// EmployeeStore is the directory: it implements generic.Directory and
// notify.AddressBook. Tenure is computed against the store clock.
type EmployeeStore struct {
	mu        sync.RWMutex
	employees map[generic.EmployeeID]generic.Employee
	now       func() time.Time
}

func NewEmployeeStore() *EmployeeStore {
	return &EmployeeStore{employees: make(map[generic.EmployeeID]generic.Employee), now: time.Now}
}

// WithClock overrides the clock used for tenure (tests).
func (s *EmployeeStore) WithClock(now func() time.Time) *EmployeeStore {
	s.now = now
	return s
}

func (s *EmployeeStore) SaveEmployee(_ context.Context, e generic.Employee) error {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	s.employees[e.ID] = e
	return nil
}

func (s *EmployeeStore) GetEmployee(_ context.Context, id generic.EmployeeID) (generic.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.employees[id]
	if !ok {
		return generic.Employee{}, generic.NotFound("employee", string(id))
	}
	return e, nil
}

func (s *EmployeeStore) ListEmployees(context.Context) ([]generic.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]generic.Employee, 0, len(s.employees))
	for _, e := range s.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *EmployeeStore) GetEmployeeGroupData(ctx context.Context, id generic.EmployeeID) (generic.EmployeeGroupData, error) {
	e, err := s.GetEmployee(ctx, id)
	if err != nil {
		return generic.EmployeeGroupData{}, err
	}
	return e.GroupData(generic.DateOf(s.now())), nil
}

func (s *EmployeeStore) GetManagerID(ctx context.Context, id generic.EmployeeID) (generic.EmployeeID, error) {
	e, err := s.GetEmployee(ctx, id)
	if err != nil {
		return "", err
	}
	return e.ManagerID, nil
}

func (s *EmployeeStore) ListDepartmentMembers(_ context.Context, departmentID string) ([]generic.EmployeeID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []generic.EmployeeID
	for _, e := range s.employees {
		if e.DepartmentID == departmentID {
			out = append(out, e.ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *EmployeeStore) EmailOf(ctx context.Context, id generic.EmployeeID) (string, error) {
	e, err := s.GetEmployee(ctx, id)
	if err != nil {
		return "", err
	}
	return e.Email, nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

// Holidays is an in-memory generic.HolidayCalendar.
type Holidays struct {
	mu       sync.RWMutex
	holidays []generic.Holiday
}

func NewHolidays(hs ...generic.Holiday) *Holidays {
	return &Holidays{holidays: hs}
}

func (h *Holidays) AddHoliday(_ context.Context, hol generic.Holiday) error {
	if hol.Date.IsZero() {
		return generic.ValidationErrors{{Field: "date", Message: "is required"}}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.holidays = append(h.holidays, hol)
	return nil
}

// IsHoliday matches the company's holidays and the global ones (empty
// CompanyID). Recurring holidays match on month and day.
func (h *Holidays) IsHoliday(companyID string, date generic.TimePoint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, hol := range h.holidays {
		if hol.CompanyID != "" && hol.CompanyID != companyID {
			continue
		}
		if hol.Date.Equal(date) {
			return true
		}
		if hol.Recurring && hol.Date.Month() == date.Month() && hol.Date.Day() == date.Day() {
			return true
		}
	}
	return false
}

func (h *Holidays) ListHolidays(_ context.Context, companyID string) ([]generic.Holiday, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []generic.Holiday
	for _, hol := range h.holidays {
		if hol.CompanyID == "" || hol.CompanyID == companyID {
			out = append(out, hol)
		}
	}
	return out, nil
}
