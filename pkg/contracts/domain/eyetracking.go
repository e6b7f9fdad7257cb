package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// EventKind classifies an eye-tracking event row by its EventID
type EventKind int

const (
	EventFixationStarted EventKind = 0
	EventFixationEnded   EventKind = 1
	EventLFHFComputed    EventKind = 2
	EventUnknown         EventKind = -1
)

// Event names as written in the Event column
const (
	EventNameFixationStarted = "FixationStarted"
	EventNameFixationEnded   = "FixationEnded"
	EventNameLFHFComputed    = "LFHFComputed"
	EventNameUnknown         = "Unknown"
)

// EventKindFromID maps a raw EventID onto its kind. Any id outside 0..2 is Unknown.
func EventKindFromID(id int) EventKind {
	switch id {
	case 0:
		return EventFixationStarted
	case 1:
		return EventFixationEnded
	case 2:
		return EventLFHFComputed
	default:
		return EventUnknown
	}
}

// String returns the Event column name
func (k EventKind) String() string {
	switch k {
	case EventFixationStarted:
		return EventNameFixationStarted
	case EventFixationEnded:
		return EventNameFixationEnded
	case EventLFHFComputed:
		return EventNameLFHFComputed
	default:
		return EventNameUnknown
	}
}

// IsBoundary reports whether the event opens or closes a fixation
func (k EventKind) IsBoundary() bool {
	return k == EventFixationStarted || k == EventFixationEnded
}

// ParseEventKind parses an Event column value
func ParseEventKind(name string) (EventKind, error) {
	switch name {
	case EventNameFixationStarted:
		return EventFixationStarted, nil
	case EventNameFixationEnded:
		return EventFixationEnded, nil
	case EventNameLFHFComputed:
		return EventLFHFComputed, nil
	case EventNameUnknown:
		return EventUnknown, nil
	}
	return EventUnknown, fmt.Errorf("unrecognised event %q", name)
}

// CategoryKind is the variant of a Category
type CategoryKind int

const (
	// CategoryNone marks rows that carry no category (observations, unknown events)
	CategoryNone CategoryKind = iota
	CategoryKnown
	CategoryOtherElements
	CategoryUnknown
)

// Sentinel label suffixes
const (
	otherElementsSuffix = ":OtherElements"
	unknownSuffix       = ":Unknown"
)

// Category is the semantic class of the element a fixation landed on.
// Label is the rendered form written to the Category column.
type Category struct {
	Kind  CategoryKind
	Label string
}

// KnownCategory builds a dictionary category
func KnownCategory(id string) Category {
	return Category{Kind: CategoryKnown, Label: id}
}

// OtherElementsCategory renders the "label present, no match" sentinel for a
// dictionary of the given size.
func OtherElementsCategory(dictSize int) Category {
	return Category{Kind: CategoryOtherElements, Label: strconv.Itoa(dictSize) + otherElementsSuffix}
}

// UnknownCategory renders the "label empty" sentinel for a dictionary of the given size.
func UnknownCategory(dictSize int) Category {
	return Category{Kind: CategoryUnknown, Label: strconv.Itoa(dictSize+1) + unknownSuffix}
}

// ParseCategory recovers a Category from its rendered label
func ParseCategory(label string) Category {
	switch {
	case label == "":
		return Category{Kind: CategoryNone}
	case strings.HasSuffix(label, otherElementsSuffix):
		return Category{Kind: CategoryOtherElements, Label: label}
	case strings.HasSuffix(label, unknownSuffix):
		return Category{Kind: CategoryUnknown, Label: label}
	default:
		return KnownCategory(label)
	}
}

// IsSet reports whether the row carries a category
func (c Category) IsSet() bool {
	return c.Kind != CategoryNone
}

func (c Category) String() string {
	return c.Label
}

// Canonical stage headers
var (
	FilteredHeader     = []string{"EventID", "AppTime", "ServerTime", "X", "Y", "AriaLabel", "LFHF"}
	CategorizedHeader  = append(append([]string{"#", "Event", "Category"}, FilteredHeader...), "TimeSpan")
	InterpolatedHeader = append(append([]string{}, CategorizedHeader...), "LFHF(Interpolated)")
	ElementHeader      = append(append([]string{}, InterpolatedHeader...), "LFHF(Element)", "LFHF(Element:Delta)")
)

// FilteredRecord is a raw row projected onto the fixed seven-field schema.
// Fields are kept as text so downstream stages re-emit them verbatim.
type FilteredRecord struct {
	EventID    string
	AppTime    string
	ServerTime string
	X          string
	Y          string
	AriaLabel  string
	LFHF       string
}

// FilteredRecordFromFields builds a record from exactly len(FilteredHeader) fields
func FilteredRecordFromFields(f []string) (FilteredRecord, error) {
	if len(f) != len(FilteredHeader) {
		return FilteredRecord{}, fmt.Errorf("expected %d fields, got %d", len(FilteredHeader), len(f))
	}
	return FilteredRecord{
		EventID:    f[0],
		AppTime:    f[1],
		ServerTime: f[2],
		X:          f[3],
		Y:          f[4],
		AriaLabel:  f[5],
		LFHF:       f[6],
	}, nil
}

// Fields returns the record in canonical order
func (r FilteredRecord) Fields() []string {
	return []string{r.EventID, r.AppTime, r.ServerTime, r.X, r.Y, r.AriaLabel, r.LFHF}
}

// Kind parses EventID and maps it onto an EventKind
func (r FilteredRecord) Kind() (EventKind, error) {
	id, err := strconv.Atoi(strings.TrimSpace(r.EventID))
	if err != nil {
		return EventUnknown, fmt.Errorf("EventID %q is not an integer", r.EventID)
	}
	return EventKindFromID(id), nil
}

// AppTimeMillis parses AppTime
func (r FilteredRecord) AppTimeMillis() (int64, error) {
	t, err := strconv.ParseInt(strings.TrimSpace(r.AppTime), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("AppTime %q is not an integer", r.AppTime)
	}
	return t, nil
}

// LFHFValue parses the observed LF/HF value
func (r FilteredRecord) LFHFValue() (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(r.LFHF), 64)
	if err != nil {
		return 0, fmt.Errorf("LFHF %q is not a number", r.LFHF)
	}
	return v, nil
}

// CategorizedRecord is a filtered row labelled by the categorizer
type CategorizedRecord struct {
	Number   int
	Event    EventKind
	Category Category
	Filtered FilteredRecord
	TimeSpan *int64
}

// Fields renders the stage-2 columns
func (r CategorizedRecord) Fields() []string {
	fields := make([]string, 0, len(CategorizedHeader))
	fields = append(fields, strconv.Itoa(r.Number), r.Event.String(), r.Category.Label)
	fields = append(fields, r.Filtered.Fields()...)
	return append(fields, FormatOptionalInt(r.TimeSpan))
}

// ParseCategorizedFields reads a stage-2 row
func ParseCategorizedFields(f []string) (CategorizedRecord, error) {
	if len(f) != len(CategorizedHeader) {
		return CategorizedRecord{}, fmt.Errorf("expected %d fields, got %d", len(CategorizedHeader), len(f))
	}
	number, err := strconv.Atoi(f[0])
	if err != nil {
		return CategorizedRecord{}, fmt.Errorf("row number %q is not an integer", f[0])
	}
	event, err := ParseEventKind(f[1])
	if err != nil {
		return CategorizedRecord{}, err
	}
	filtered, err := FilteredRecordFromFields(f[3:10])
	if err != nil {
		return CategorizedRecord{}, err
	}
	span, err := ParseOptionalInt(f[10])
	if err != nil {
		return CategorizedRecord{}, fmt.Errorf("TimeSpan: %w", err)
	}
	return CategorizedRecord{
		Number:   number,
		Event:    event,
		Category: ParseCategory(f[2]),
		Filtered: filtered,
		TimeSpan: span,
	}, nil
}

// InterpolatedRecord adds the LF/HF estimate at the row's AppTime
type InterpolatedRecord struct {
	CategorizedRecord
	InterpolatedLFHF *float64
}

// Fields renders the stage-3 columns
func (r InterpolatedRecord) Fields() []string {
	return append(r.CategorizedRecord.Fields(), FormatOptionalMetric(r.InterpolatedLFHF))
}

// ParseInterpolatedFields reads a stage-3 row
func ParseInterpolatedFields(f []string) (InterpolatedRecord, error) {
	if len(f) != len(InterpolatedHeader) {
		return InterpolatedRecord{}, fmt.Errorf("expected %d fields, got %d", len(InterpolatedHeader), len(f))
	}
	base, err := ParseCategorizedFields(f[:len(CategorizedHeader)])
	if err != nil {
		return InterpolatedRecord{}, err
	}
	v, err := ParseOptionalFloat(f[len(CategorizedHeader)])
	if err != nil {
		return InterpolatedRecord{}, fmt.Errorf("LFHF(Interpolated): %w", err)
	}
	return InterpolatedRecord{CategorizedRecord: base, InterpolatedLFHF: v}, nil
}

// ElementRecord adds the per-element metrics computed on FixationEnded rows
type ElementRecord struct {
	InterpolatedRecord
	ElementLFHF      *float64
	ElementLFHFDelta *float64
}

// Fields renders the stage-4 columns
func (r ElementRecord) Fields() []string {
	return append(r.InterpolatedRecord.Fields(),
		FormatOptionalMetric(r.ElementLFHF),
		FormatOptionalMetric(r.ElementLFHFDelta))
}

// ParseElementFields reads a stage-4 row
func ParseElementFields(f []string) (ElementRecord, error) {
	if len(f) != len(ElementHeader) {
		return ElementRecord{}, fmt.Errorf("expected %d fields, got %d", len(ElementHeader), len(f))
	}
	base, err := ParseInterpolatedFields(f[:len(InterpolatedHeader)])
	if err != nil {
		return ElementRecord{}, err
	}
	element, err := ParseOptionalFloat(f[len(InterpolatedHeader)])
	if err != nil {
		return ElementRecord{}, fmt.Errorf("LFHF(Element): %w", err)
	}
	delta, err := ParseOptionalFloat(f[len(InterpolatedHeader)+1])
	if err != nil {
		return ElementRecord{}, fmt.Errorf("LFHF(Element:Delta): %w", err)
	}
	return ElementRecord{InterpolatedRecord: base, ElementLFHF: element, ElementLFHFDelta: delta}, nil
}

// FormatMetric writes a float with three decimals
func FormatMetric(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// FormatOptionalMetric writes an absent value as an empty field
func FormatOptionalMetric(v *float64) string {
	if v == nil {
		return ""
	}
	return FormatMetric(*v)
}

// FormatOptionalInt writes an absent value as an empty field
func FormatOptionalInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

// ParseOptionalFloat treats an empty field as absent
func ParseOptionalFloat(s string) (*float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, fmt.Errorf("%q is not a number", s)
	}
	return &v, nil
}

// ParseOptionalInt treats an empty field as absent
func ParseOptionalInt(s string) (*int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%q is not an integer", s)
	}
	return &v, nil
}
