package dataprocessing

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"etaanalyzer/pkg/contracts/domain"
)

// CategoryEntry pairs a category identifier with the aria-label substring that selects it
type CategoryEntry struct {
	ID      string `yaml:"id" json:"id" validate:"required"`
	Pattern string `yaml:"pattern" json:"pattern" validate:"required"`
}

// Dictionary is an ordered list of categories. Classification is first match
// wins, so order is part of the contract.
type Dictionary struct {
	entries []CategoryEntry
}

type dictionaryFile struct {
	Categories []CategoryEntry `yaml:"categories" validate:"required,min=1,dive"`
}

var defaultEntries = []CategoryEntry{
	{ID: "00:Welcome", Pattern: "ウェルカムダイアログ"},
	{ID: "01:Caprese", Pattern: "カプレーゼ"},
	{ID: "02:Crostini", Pattern: "クロスティーニ"},
	{ID: "03:Panissa", Pattern: "パニッサ"},
	{ID: "04:Prosciutto", Pattern: "プロシュット"},
	{ID: "05:Arrabbiata", Pattern: "アラビアータ"},
	{ID: "06:Genovese", Pattern: "ジェノベーゼ"},
	{ID: "07:Risotto", Pattern: "リゾット"},
	{ID: "08:Ravioli", Pattern: "ラビオリ"},
	{ID: "09:AcquaPazza", Pattern: "アクアパッツァ"},
	{ID: "10:Ossobuco", Pattern: "オッソ・ブーコ"},
	{ID: "11:Cotoletta", Pattern: "コトレッタ"},
	{ID: "12:Piccata", Pattern: "ピカタ"},
	{ID: "13:Tiramisu", Pattern: "ティラミス"},
	{ID: "14:PannaCotta", Pattern: "パンナコッタ"},
	{ID: "15:Semifreddo", Pattern: "セミフレッド"},
	{ID: "16:Pizzelle", Pattern: "ピッツェル"},
	{ID: "17:Confirm", Pattern: "注文"},
}

// DefaultDictionary returns the built-in menu dictionary
func DefaultDictionary() *Dictionary {
	entries := make([]CategoryEntry, len(defaultEntries))
	copy(entries, defaultEntries)
	return &Dictionary{entries: entries}
}

// NewDictionary validates entries and keeps their order
func NewDictionary(entries []CategoryEntry) (*Dictionary, error) {
	if err := validator.New().Struct(dictionaryFile{Categories: entries}); err != nil {
		return nil, fmt.Errorf("invalid category dictionary: %w", err)
	}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("invalid category dictionary: duplicate id %q", e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	out := make([]CategoryEntry, len(entries))
	copy(out, entries)
	return &Dictionary{entries: out}, nil
}

// LoadDictionary reads a YAML dictionary of the form
//
//	categories:
//	  - id: "00:Welcome"
//	    pattern: "ウェルカムダイアログ"
func LoadDictionary(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read category dictionary: %w", err)
	}
	var file dictionaryFile
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse category dictionary %s: %w", path, err)
	}
	return NewDictionary(file.Categories)
}

// Classify maps an aria-label onto a category
func (d *Dictionary) Classify(label string) domain.Category {
	if label == "" {
		return domain.UnknownCategory(len(d.entries))
	}
	for _, e := range d.entries {
		if strings.Contains(label, e.Pattern) {
			return domain.KnownCategory(e.ID)
		}
	}
	return domain.OtherElementsCategory(len(d.entries))
}

// Entries returns a copy of the ordered entries
func (d *Dictionary) Entries() []CategoryEntry {
	out := make([]CategoryEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Len returns the number of dictionary entries
func (d *Dictionary) Len() int {
	return len(d.entries)
}

// Labels returns every category label in report order: dictionary entries,
// then the two sentinels.
func (d *Dictionary) Labels() []string {
	labels := make([]string, 0, len(d.entries)+2)
	for _, e := range d.entries {
		labels = append(labels, e.ID)
	}
	return append(labels,
		domain.OtherElementsCategory(len(d.entries)).Label,
		domain.UnknownCategory(len(d.entries)).Label)
}
