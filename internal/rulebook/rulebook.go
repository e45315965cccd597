// Package rulebook reads ledgers from a YAML file.
//
//	accounts:
//	  - id: checking
//	    name: Checking
//	    balance: 1200
//	    expenses:
//	      - id: rent
//	        title: Rent
//	        amount: 800
//	        begin: 2024-01-01
//	        frequency: {type: monthly, day_of_week: friday, week_of_month: last}
//
// Dates are YYYY-MM-DD or RFC 3339. Weekdays and months accept English names;
// months may also be numbers 1-12. Transfers are listed under their source
// account and are added to the destination account when it is in the same
// book.
package rulebook

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cashflow/internal/core"
)

type (
	Book struct {
		Accounts []Account `yaml:"accounts"`
	}

	Account struct {
		ID            string        `yaml:"id"`
		Name          string        `yaml:"name"`
		Balance       float64       `yaml:"balance"`
		Expenses      []Expense     `yaml:"expenses"`
		Incomes       []Income      `yaml:"incomes"`
		Loans         []Loan        `yaml:"loans"`
		Transfers     []Transfer    `yaml:"transfers"`
		CommutePasses []CommutePass `yaml:"commute_passes"`
		Payrolls      []Payroll     `yaml:"payrolls"`
		Wishlist      []Wish        `yaml:"wishlist"`
	}

	Item struct {
		ID          string    `yaml:"id"`
		Title       string    `yaml:"title"`
		Description string    `yaml:"description"`
		Amount      float64   `yaml:"amount"`
		Begin       Date      `yaml:"begin"`
		End         *Date     `yaml:"end"`
		Frequency   Frequency `yaml:"frequency"`
	}

	Frequency struct {
		Type        string   `yaml:"type"`
		Interval    int      `yaml:"interval"`
		DayOfMonth  *int     `yaml:"day_of_month"`
		DayOfWeek   *Weekday `yaml:"day_of_week"`
		WeekOfMonth *Week    `yaml:"week_of_month"`
		MonthOfYear *Month   `yaml:"month_of_year"`
	}

	Expense struct {
		Item        `yaml:",inline"`
		TaxRate     float64 `yaml:"tax_rate"`
		SubsidyRate float64 `yaml:"subsidy_rate"`
	}

	Income struct {
		Item    `yaml:",inline"`
		TaxRate float64 `yaml:"tax_rate"`
	}

	Loan struct {
		Item              `yaml:",inline"`
		PlanAmount        float64 `yaml:"plan_amount"`
		Principal         float64 `yaml:"principal"`
		InterestRate      float64 `yaml:"interest_rate"`
		InterestFrequency string  `yaml:"interest_frequency"`
		SubsidyRate       float64 `yaml:"subsidy_rate"`
	}

	Transfer struct {
		Item        `yaml:",inline"`
		Destination string `yaml:"destination"`
	}

	CommutePass struct {
		ID          string    `yaml:"id"`
		Title       string    `yaml:"title"`
		Description string    `yaml:"description"`
		Amount      float64   `yaml:"amount"`
		TaxRate     float64   `yaml:"tax_rate"`
		SubsidyRate float64   `yaml:"subsidy_rate"`
		Begin       Date      `yaml:"begin"`
		End         *Date     `yaml:"end"`
		DayOfWeek   Weekday   `yaml:"day_of_week"`
		StartTime   TimeOfDay `yaml:"start_time"`
	}

	Payroll struct {
		ID          string  `yaml:"id"`
		Title       string  `yaml:"title"`
		Description string  `yaml:"description"`
		Date        Date    `yaml:"date"`
		Amount      float64 `yaml:"amount"`
		TaxRate     float64 `yaml:"tax_rate"`
	}

	Wish struct {
		ID          string  `yaml:"id"`
		Title       string  `yaml:"title"`
		Description string  `yaml:"description"`
		Amount      float64 `yaml:"amount"`
		TaxRate     float64 `yaml:"tax_rate"`
		Available   *Date   `yaml:"available"`
	}
)

// Load reads and converts the rule-book at path.
func Load(path string) ([]core.Ledger, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rule-book: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a rule-book and returns one validated ledger per account, in
// file order. Unknown keys are rejected.
func Parse(r io.Reader) ([]core.Ledger, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var book Book
	if err := dec.Decode(&book); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty rule-book")
		}
		return nil, fmt.Errorf("decode rule-book: %w", err)
	}
	return book.Ledgers()
}

// Ledgers converts the book into domain ledgers.
func (b Book) Ledgers() ([]core.Ledger, error) {
	ledgers := make([]core.Ledger, 0, len(b.Accounts))
	index := make(map[string]int, len(b.Accounts))
	for _, a := range b.Accounts {
		if strings.TrimSpace(a.ID) == "" {
			return nil, fmt.Errorf("account without id: %w", core.ErrEmptyAccount)
		}
		if _, dup := index[a.ID]; dup {
			return nil, fmt.Errorf("duplicate account %q", a.ID)
		}
		index[a.ID] = len(ledgers)
		ledgers = append(ledgers, a.ledger())
	}

	owners := make(map[string]string)
	for _, l := range ledgers {
		for _, id := range itemIDs(l) {
			if owner, ok := owners[id]; ok && owner != l.Account.AccountID {
				return nil, fmt.Errorf("account %s: item %s: %w (already used by account %s)", l.Account.AccountID, id, core.ErrDuplicateID, owner)
			}
			owners[id] = l.Account.AccountID
		}
	}

	for _, l := range ledgers {
		for _, t := range l.Transfers {
			if t.SourceAccountID != l.Account.AccountID {
				continue
			}
			if i, ok := index[t.DestinationAccountID]; ok {
				ledgers[i].Transfers = append(ledgers[i].Transfers, t)
			}
		}
	}

	for _, l := range ledgers {
		if err := l.Validate(); err != nil {
			return nil, fmt.Errorf("account %s: %w", l.Account.AccountID, err)
		}
	}
	return ledgers, nil
}

func itemIDs(l core.Ledger) []string {
	var ids []string
	for _, e := range l.Expenses {
		ids = append(ids, e.ID)
	}
	for _, i := range l.Incomes {
		ids = append(ids, i.ID)
	}
	for _, lo := range l.Loans {
		ids = append(ids, lo.ID)
	}
	for _, t := range l.Transfers {
		ids = append(ids, t.ID)
	}
	for _, c := range l.CommutePasses {
		ids = append(ids, c.ID)
	}
	for _, p := range l.Payrolls {
		ids = append(ids, p.ID)
	}
	for _, w := range l.Wishlist {
		ids = append(ids, w.ID)
	}
	return ids
}

func (a Account) ledger() core.Ledger {
	l := core.Ledger{
		Account: core.AccountSnapshot{AccountID: a.ID, Name: a.Name, Balance: a.Balance},
	}
	for _, e := range a.Expenses {
		l.Expenses = append(l.Expenses, core.Expense{
			RecurringItem: e.recurring(a.ID),
			TaxRate:       e.TaxRate,
			SubsidyRate:   e.SubsidyRate,
		})
	}
	for _, i := range a.Incomes {
		l.Incomes = append(l.Incomes, core.Income{RecurringItem: i.recurring(a.ID), TaxRate: i.TaxRate})
	}
	for _, ln := range a.Loans {
		l.Loans = append(l.Loans, core.Loan{
			RecurringItem:     ln.recurring(a.ID),
			PlanAmount:        ln.PlanAmount,
			Principal:         ln.Principal,
			InterestRate:      ln.InterestRate,
			InterestFrequency: core.FrequencyType(strings.ToLower(ln.InterestFrequency)),
			SubsidyRate:       ln.SubsidyRate,
		})
	}
	for _, t := range a.Transfers {
		l.Transfers = append(l.Transfers, core.Transfer{
			RecurringItem:        t.recurring(a.ID),
			SourceAccountID:      a.ID,
			DestinationAccountID: t.Destination,
		})
	}
	for _, c := range a.CommutePasses {
		l.CommutePasses = append(l.CommutePasses, core.CommutePass{
			ID:          c.ID,
			AccountID:   a.ID,
			Title:       c.Title,
			Description: c.Description,
			Amount:      c.Amount,
			TaxRate:     c.TaxRate,
			SubsidyRate: c.SubsidyRate,
			BeginDate:   c.Begin.Time,
			EndDate:     c.End.ptr(),
			DayOfWeek:   time.Weekday(c.DayOfWeek),
			StartTime:   time.Duration(c.StartTime),
		})
	}
	for _, p := range a.Payrolls {
		l.Payrolls = append(l.Payrolls, core.Payroll{
			ID:          p.ID,
			AccountID:   a.ID,
			Title:       p.Title,
			Description: p.Description,
			Date:        p.Date.Time,
			Amount:      p.Amount,
			TaxRate:     p.TaxRate,
		})
	}
	for _, w := range a.Wishlist {
		l.Wishlist = append(l.Wishlist, core.WishlistItem{
			ID:            w.ID,
			AccountID:     a.ID,
			Title:         w.Title,
			Description:   w.Description,
			Amount:        w.Amount,
			TaxRate:       w.TaxRate,
			AvailableDate: w.Available.ptr(),
		})
	}
	return l
}

func (i Item) recurring(accountID string) core.RecurringItem {
	return core.RecurringItem{
		ID:          i.ID,
		AccountID:   accountID,
		Title:       i.Title,
		Description: i.Description,
		Amount:      i.Amount,
		BeginDate:   i.Begin.Time,
		EndDate:     i.End.ptr(),
		Frequency:   i.Frequency.rule(),
	}
}

func (f Frequency) rule() core.FrequencyRule {
	r := core.FrequencyRule{
		Type:       core.FrequencyType(strings.ToLower(f.Type)),
		Interval:   f.Interval,
		DayOfMonth: f.DayOfMonth,
	}
	if f.DayOfWeek != nil {
		d := time.Weekday(*f.DayOfWeek)
		r.DayOfWeek = &d
	}
	if f.WeekOfMonth != nil {
		w := int(*f.WeekOfMonth)
		r.WeekOfMonth = &w
	}
	if f.MonthOfYear != nil {
		m := int(*f.MonthOfYear)
		r.MonthOfYear = &m
	}
	return r
}

// Date is a calendar date or full timestamp.
type Date struct{ time.Time }

func (d *Date) UnmarshalYAML(n *yaml.Node) error {
	s := strings.TrimSpace(n.Value)
	for _, layout := range []string{time.DateOnly, time.RFC3339, time.DateTime} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("line %d: invalid date %q", n.Line, s)
}

func (d *Date) ptr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

// Weekday accepts "monday", "mon" or 0-6 with Sunday as 0.
type Weekday time.Weekday

func (w *Weekday) UnmarshalYAML(n *yaml.Node) error {
	s := strings.ToLower(strings.TrimSpace(n.Value))
	if v, err := strconv.Atoi(s); err == nil && v >= 0 && v <= 6 {
		*w = Weekday(v)
		return nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			*w = Weekday(d)
			return nil
		}
	}
	return fmt.Errorf("line %d: invalid weekday %q", n.Line, n.Value)
}

// Week accepts "first" to "fourth", "last", or 1-4. It holds the zero-based
// week of month.
type Week int

var weekNames = map[string]int{"first": 0, "second": 1, "third": 2, "fourth": 3, "last": core.WeekOfMonthLast}

func (w *Week) UnmarshalYAML(n *yaml.Node) error {
	s := strings.ToLower(strings.TrimSpace(n.Value))
	if v, ok := weekNames[s]; ok {
		*w = Week(v)
		return nil
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 1 && v <= 4 {
		*w = Week(v - 1)
		return nil
	}
	return fmt.Errorf("line %d: invalid week of month %q", n.Line, n.Value)
}

// Month accepts "june", "jun" or 1-12. It holds the zero-based month.
type Month int

func (m *Month) UnmarshalYAML(n *yaml.Node) error {
	s := strings.ToLower(strings.TrimSpace(n.Value))
	if v, err := strconv.Atoi(s); err == nil && v >= 1 && v <= 12 {
		*m = Month(v - 1)
		return nil
	}
	for mo := time.January; mo <= time.December; mo++ {
		name := strings.ToLower(mo.String())
		if s == name || s == name[:3] {
			*m = Month(mo - 1)
			return nil
		}
	}
	return fmt.Errorf("line %d: invalid month %q", n.Line, n.Value)
}

// TimeOfDay is an "HH:MM" offset from midnight.
type TimeOfDay time.Duration

func (t *TimeOfDay) UnmarshalYAML(n *yaml.Node) error {
	parsed, err := time.Parse("15:04", strings.TrimSpace(n.Value))
	if err != nil {
		return fmt.Errorf("line %d: invalid time of day %q", n.Line, n.Value)
	}
	*t = TimeOfDay(time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute)
	return nil
}
