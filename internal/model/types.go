package model

// FieldType is the closed set of field kinds a form can hold
type FieldType string

const (
	FieldText        FieldType = "text"
	FieldTextarea    FieldType = "textarea"
	FieldEmail       FieldType = "email"
	FieldNumber      FieldType = "number"
	FieldPhone       FieldType = "phone"
	FieldURL         FieldType = "url"
	FieldSelect      FieldType = "select"
	FieldMultiSelect FieldType = "multiselect"
	FieldCheckbox    FieldType = "checkbox"
	FieldRadio       FieldType = "radio"
	FieldSlider      FieldType = "slider"
	FieldRating      FieldType = "rating"
	FieldDate        FieldType = "date"
	FieldTime        FieldType = "time"
	FieldFile        FieldType = "file"
	FieldSignature   FieldType = "signature"
	FieldTags        FieldType = "tags"
	FieldHidden      FieldType = "hidden"
)

var knownFieldTypes = map[FieldType]bool{
	FieldText: true, FieldTextarea: true, FieldEmail: true, FieldNumber: true,
	FieldPhone: true, FieldURL: true, FieldSelect: true, FieldMultiSelect: true,
	FieldCheckbox: true, FieldRadio: true, FieldSlider: true, FieldRating: true,
	FieldDate: true, FieldTime: true, FieldFile: true, FieldSignature: true,
	FieldTags: true, FieldHidden: true,
}

// Valid reports whether t is one of the known field types
func (t FieldType) Valid() bool {
	return knownFieldTypes[t]
}

// MultiValued reports whether values of this type are arrays
func (t FieldType) MultiValued() bool {
	switch t {
	case FieldMultiSelect, FieldCheckbox, FieldTags:
		return true
	}
	return false
}

// FormSchema is the typed description of a form
type FormSchema struct {
	ID       string   `json:"id"`
	Title    string   `json:"title,omitempty"`
	Blocks   []Block  `json:"blocks"`
	Fields   []Field  `json:"fields"`
	Settings Settings `json:"settings"`
	Logic    []Action `json:"logic,omitempty"`
}

// Block is one step of a multi-step form
type Block struct {
	ID          string  `json:"id"`
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Fields      []Field `json:"fields"`
}

// Field is a single input of a form
type Field struct {
	ID            string         `json:"id"`
	Type          FieldType      `json:"type"`
	Label         string         `json:"label,omitempty"`
	Placeholder   string         `json:"placeholder,omitempty"`
	HelpText      string         `json:"helpText,omitempty"`
	Required      bool           `json:"required,omitempty"`
	Options       []string       `json:"options,omitempty"`
	Validation    *Validation    `json:"validation,omitempty"`
	Prepopulation *Prepopulation `json:"prepopulation,omitempty"`
	Settings      FieldSettings  `json:"settings,omitempty"`
}

// Validation holds the optional format rules of a field
type Validation struct {
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// FieldSettings carries widget and quiz settings of a field
type FieldSettings struct {
	IsQuizField   bool     `json:"isQuizField,omitempty"`
	CorrectAnswer any      `json:"correctAnswer,omitempty"`
	Points        int      `json:"points,omitempty"`
	Explanation   string   `json:"explanation,omitempty"`
	DefaultValue  *float64 `json:"defaultValue,omitempty"`
	Min           *float64 `json:"min,omitempty"`
	Max           *float64 `json:"max,omitempty"`
	Step          *float64 `json:"step,omitempty"`
	Accept        []string `json:"accept,omitempty"`
	MaxFileMB     *float64 `json:"maxFileMB,omitempty"`
}

// Settings holds form level behaviour
type Settings struct {
	MultiStep           bool             `json:"multiStep,omitempty"`
	ShowProgressBar     bool             `json:"showProgressBar,omitempty"`
	RedirectURL         string           `json:"redirectUrl,omitempty"`
	Quiz                *QuizSettings    `json:"quiz,omitempty"`
	RateLimit           *PolicyRef       `json:"rateLimit,omitempty"`
	DuplicatePrevention *PolicyRef       `json:"duplicatePrevention,omitempty"`
	Progress            *ProgressSetting `json:"progress,omitempty"`
}

// QuizSettings turns a form into a scored quiz
type QuizSettings struct {
	Enabled      bool `json:"enabled"`
	PassingScore *int `json:"passingScore,omitempty"`
	ShowResults  bool `json:"showResults,omitempty"`
}

// PolicyRef points at an externally managed policy
type PolicyRef struct {
	PolicyID string `json:"policyId"`
}

// ProgressSetting controls saving of partial progress
type ProgressSetting struct {
	Enabled       bool `json:"enabled"`
	RetentionDays int  `json:"retentionDays,omitempty"`
}

// ActionType is the effect a logic action has on its target
type ActionType string

const (
	ActionShow        ActionType = "show"
	ActionHide        ActionType = "hide"
	ActionEnable      ActionType = "enable"
	ActionDisable     ActionType = "disable"
	ActionSetValue    ActionType = "set_value"
	ActionShowMessage ActionType = "show_message"
)

// Operator compares a field value in a condition
type Operator string

const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "not_equals"
	OpContains       Operator = "contains"
	OpNotContains    Operator = "not_contains"
	OpGreaterThan    Operator = "greater_than"
	OpLessThan       Operator = "less_than"
	OpGreaterOrEqual Operator = "greater_or_equal"
	OpLessOrEqual    Operator = "less_or_equal"
	OpIsEmpty        Operator = "is_empty"
	OpIsNotEmpty     Operator = "is_not_empty"
	OpIn             Operator = "in"
)

// Action is a conditional effect on a target field
type Action struct {
	ID        string     `json:"id,omitempty"`
	Target    string     `json:"target,omitempty"`
	Type      ActionType `json:"type"`
	Condition Condition  `json:"condition,omitempty"`
	Value     any        `json:"value,omitempty"`
}

// Condition is either a leaf comparison or an all/any group.
// A zero Condition always holds.
type Condition struct {
	Field    string      `json:"field,omitempty"`
	Operator Operator    `json:"operator,omitempty"`
	Value    any         `json:"value,omitempty"`
	All      []Condition `json:"all,omitempty"`
	Any      []Condition `json:"any,omitempty"`
}

// IsZero reports whether the condition is empty
func (c Condition) IsZero() bool {
	return c.Field == "" && c.Operator == "" && c.Value == nil && len(c.All) == 0 && len(c.Any) == 0
}

// Submission is a stored set of answers for a form
type Submission struct {
	ID        string         `json:"id"`
	FormID    string         `json:"formId"`
	Data      map[string]any `json:"data"`
	Email     string         `json:"email,omitempty"`
	IP        string         `json:"ip,omitempty"`
	CreatedAt string         `json:"createdAt,omitempty"`
}
