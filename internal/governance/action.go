// Package governance keeps the queue of proposed schema changes that wait for
// a human decision.
package governance

import (
	"fmt"
	"strings"
	"time"
)

type ActionType string

const (
	Mapping   ActionType = "Mapping"
	Creation  ActionType = "Creation"
	Rejection ActionType = "Rejection"
)

// ParseActionType accepts the type name in any letter case.
func ParseActionType(s string) (ActionType, error) {
	for _, t := range []ActionType{Mapping, Creation, Rejection} {
		if strings.EqualFold(strings.TrimSpace(s), string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// Fields is the flat view of a proposal. Empty strings mean not applicable.
type Fields struct {
	OldCategory string
	NewCategory string
	OldValue    string
	NewValue    string
}

// Proposal is one concrete schema change. The set of implementations is closed.
type Proposal interface {
	Type() ActionType
	Fields() Fields
	proposal()
}

// CategoryMapping proposes Synonym as another spelling of Category.
type CategoryMapping struct {
	Category string
	Synonym  string
}

// ValueMapping proposes Variant as another spelling of Value inside Category.
type ValueMapping struct {
	Category string
	Value    string
	Variant  string
}

// CategoryCreation proposes a new, empty category.
type CategoryCreation struct {
	Category string
}

// ValueCreation proposes a new canonical value inside Category.
type ValueCreation struct {
	Category string
	Value    string
}

// CategoryRejection records that Synonym should not be read as Category.
type CategoryRejection struct {
	Category string
	Synonym  string
}

// ValueRejection records that Variant should not be read as Value.
type ValueRejection struct {
	Category string
	Value    string
	Variant  string
}

func (CategoryMapping) Type() ActionType   { return Mapping }
func (ValueMapping) Type() ActionType      { return Mapping }
func (CategoryCreation) Type() ActionType  { return Creation }
func (ValueCreation) Type() ActionType     { return Creation }
func (CategoryRejection) Type() ActionType { return Rejection }
func (ValueRejection) Type() ActionType    { return Rejection }

func (p CategoryMapping) Fields() Fields {
	return Fields{OldCategory: p.Category, NewCategory: p.Synonym}
}

func (p ValueMapping) Fields() Fields {
	return Fields{OldCategory: p.Category, NewCategory: p.Category, OldValue: p.Value, NewValue: p.Variant}
}

func (p CategoryCreation) Fields() Fields {
	return Fields{NewCategory: p.Category}
}

func (p ValueCreation) Fields() Fields {
	return Fields{NewCategory: p.Category, NewValue: p.Value}
}

func (p CategoryRejection) Fields() Fields {
	return Fields{OldCategory: p.Category, NewCategory: p.Synonym}
}

func (p ValueRejection) Fields() Fields {
	return Fields{OldCategory: p.Category, NewCategory: p.Category, OldValue: p.Value, NewValue: p.Variant}
}

func (CategoryMapping) proposal()   {}
func (ValueMapping) proposal()      {}
func (CategoryCreation) proposal()  {}
func (ValueCreation) proposal()     {}
func (CategoryRejection) proposal() {}
func (ValueRejection) proposal()    {}

// NewProposal builds the proposal described by the flat fields, the form used
// on disk and on the command line.
func NewProposal(t ActionType, f Fields) (Proposal, error) {
	f = Fields{
		OldCategory: strings.TrimSpace(f.OldCategory),
		NewCategory: strings.TrimSpace(f.NewCategory),
		OldValue:    strings.TrimSpace(f.OldValue),
		NewValue:    strings.TrimSpace(f.NewValue),
	}
	categoryLevel := f.OldValue == "" && f.NewValue == ""

	// Value-level records name the category once; either slot will do.
	category := f.OldCategory
	if category == "" {
		category = f.NewCategory
	}

	var p Proposal
	switch t {
	case Mapping:
		if categoryLevel {
			p = CategoryMapping{Category: f.OldCategory, Synonym: f.NewCategory}
		} else {
			p = ValueMapping{Category: category, Value: f.OldValue, Variant: f.NewValue}
		}
	case Creation:
		if categoryLevel {
			p = CategoryCreation{Category: f.NewCategory}
		} else {
			category = f.NewCategory
			if category == "" {
				category = f.OldCategory
			}
			p = ValueCreation{Category: category, Value: f.NewValue}
		}
	case Rejection:
		if categoryLevel {
			p = CategoryRejection{Category: f.OldCategory, Synonym: f.NewCategory}
		} else {
			p = ValueRejection{Category: category, Value: f.OldValue, Variant: f.NewValue}
		}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidAction, t)
	}

	if err := validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

func validate(p Proposal) error {
	var missing []string
	need := func(name, v string) {
		if v == "" {
			missing = append(missing, name)
		}
	}

	switch p := p.(type) {
	case CategoryMapping:
		need("old_category", p.Category)
		need("new_category", p.Synonym)
	case ValueMapping:
		need("old_category", p.Category)
		need("old_value", p.Value)
		need("new_value", p.Variant)
	case CategoryCreation:
		need("new_category", p.Category)
	case ValueCreation:
		need("new_category", p.Category)
		need("new_value", p.Value)
	case CategoryRejection:
		need("old_category", p.Category)
	case ValueRejection:
		need("old_category", p.Category)
	case nil:
		return fmt.Errorf("%w: no proposal", ErrInvalidAction)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s %s missing %s", ErrInvalidAction, p.Type(), describe(p), strings.Join(missing, ", "))
	}
	return nil
}

func describe(p Proposal) string {
	if IsCategoryLevel(p) {
		return "category action"
	}
	return "value action"
}

// IsCategoryLevel reports whether the proposal touches no values.
func IsCategoryLevel(p Proposal) bool {
	f := p.Fields()
	return f.OldValue == "" && f.NewValue == ""
}

// PendingAction is a queued proposal. It is never modified after creation.
type PendingAction struct {
	ID        string
	Proposal  Proposal
	Score     float64
	CreatedAt time.Time
}

func (a PendingAction) Type() ActionType {
	return a.Proposal.Type()
}

func (a PendingAction) IsCategoryLevel() bool {
	return IsCategoryLevel(a.Proposal)
}

// String renders a one-line summary for listings.
func (a PendingAction) String() string {
	f := a.Proposal.Fields()
	switch p := a.Proposal.(type) {
	case CategoryMapping:
		return fmt.Sprintf("map category %q -> %q", p.Synonym, p.Category)
	case ValueMapping:
		return fmt.Sprintf("map value %q -> %q in %q", p.Variant, p.Value, p.Category)
	case CategoryCreation:
		return fmt.Sprintf("create category %q", p.Category)
	case ValueCreation:
		return fmt.Sprintf("create value %q in %q", p.Value, p.Category)
	case CategoryRejection:
		return fmt.Sprintf("reject category %q as %q", p.Synonym, p.Category)
	case ValueRejection:
		return fmt.Sprintf("reject value %q as %q in %q", p.Variant, p.Value, p.Category)
	default:
		return fmt.Sprintf("%s %+v", a.Type(), f)
	}
}
