package models

import (
	"encoding/json"
	"strings"
)

// AllValue is the wire representation of an "any" selection
const AllValue = "all"

// Conference represents a single catalog entry
type Conference struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Date        string   `json:"date"` // YYYY-MM-DD
	Location    string   `json:"location"`
	Country     string   `json:"country"`
	Topics      []string `json:"directions"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	EarlyBird   bool     `json:"early_bird_available,omitempty"`
}

// Selection is either Any (no filtering on the dimension) or a specific set of values.
// The zero value is an empty specific selection, which matches nothing.
type Selection struct {
	any    bool
	values []string
}

// AnySelection returns a selection that matches every value
func AnySelection() Selection {
	return Selection{any: true}
}

// Specific returns a selection of the given values, duplicates removed
func Specific(values ...string) Selection {
	s := Selection{}
	for _, v := range values {
		s = s.with(v)
	}
	return s
}

// IsAny reports whether the selection matches everything
func (s Selection) IsAny() bool {
	return s.any
}

// Values returns the selected values; nil for Any
func (s Selection) Values() []string {
	if s.any {
		return nil
	}
	out := make([]string, len(s.values))
	copy(out, s.values)
	return out
}

// Contains reports whether v is selected. Comparison ignores case.
func (s Selection) Contains(v string) bool {
	if s.any {
		return true
	}
	return s.index(v) >= 0
}

// Intersects reports whether any of vs is selected
func (s Selection) Intersects(vs []string) bool {
	if s.any {
		return true
	}
	for _, v := range vs {
		if s.index(v) >= 0 {
			return true
		}
	}
	return false
}

// Toggle flips membership of v. Toggling a value on an Any selection
// replaces Any with just that value.
func (s Selection) Toggle(v string) Selection {
	if s.any {
		return Specific(v)
	}
	if i := s.index(v); i >= 0 {
		values := make([]string, 0, len(s.values)-1)
		values = append(values, s.values[:i]...)
		values = append(values, s.values[i+1:]...)
		return Selection{values: values}
	}
	return s.with(v)
}

// Empty reports whether nothing is selected
func (s Selection) Empty() bool {
	return !s.any && len(s.values) == 0
}

// Equal compares two selections ignoring value order and case
func (s Selection) Equal(o Selection) bool {
	if s.any || o.any {
		return s.any == o.any
	}
	if len(s.values) != len(o.values) {
		return false
	}
	for _, v := range s.values {
		if o.index(v) < 0 {
			return false
		}
	}
	return true
}

// String renders the selection for chat replies
func (s Selection) String() string {
	if s.any {
		return "All"
	}
	if len(s.values) == 0 {
		return "None"
	}
	return strings.Join(s.values, ", ")
}

// MarshalJSON writes Any as ["all"] and specific sets as plain lists
func (s Selection) MarshalJSON() ([]byte, error) {
	if s.any {
		return json.Marshal([]string{AllValue})
	}
	values := s.values
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

// UnmarshalJSON reads a list; a list containing "all" becomes Any
func (s *Selection) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = FromValues(values)
	return nil
}

// FromValues builds a selection from stored values, honouring the "all" marker
func FromValues(values []string) Selection {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), AllValue) {
			return AnySelection()
		}
	}
	return Specific(values...)
}

func (s Selection) index(v string) int {
	v = strings.TrimSpace(v)
	for i, existing := range s.values {
		if strings.EqualFold(existing, v) {
			return i
		}
	}
	return -1
}

func (s Selection) with(v string) Selection {
	v = strings.TrimSpace(v)
	if v == "" || s.index(v) >= 0 {
		return s
	}
	values := make([]string, len(s.values), len(s.values)+1)
	copy(values, s.values)
	return Selection{values: append(values, v)}
}

// UserPreferences is the persisted filter and subscription state of one user
type UserPreferences struct {
	UserID     int64     `json:"-"`
	Countries  Selection `json:"countries"`
	Topics     Selection `json:"topics"`
	Subscribed bool      `json:"subscribed"`
}

// DefaultPreferences returns the record a user gets on first interaction
func DefaultPreferences(userID int64) UserPreferences {
	return UserPreferences{
		UserID:    userID,
		Countries: AnySelection(),
		Topics:    AnySelection(),
	}
}
