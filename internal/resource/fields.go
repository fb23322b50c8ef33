package resource

import (
	"crypto/subtle"
	"fmt"
	"regexp"
	"strings"
)

// Hook validates the custom field values of a submission. A rejection should be
// returned as a *Rejection so its message can be shown to the user.
type Hook func(extensions map[string]string) error

type Rejection struct {
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}

func Reject(format string, args ...any) error {
	return &Rejection{Message: fmt.Sprintf(format, args...)}
}

// Field is a custom input declared on a resource's booking form.
type Field struct {
	Name     string `yaml:"name"`
	Label    string `yaml:"label"`
	Type     string `yaml:"type"`
	Required bool   `yaml:"required"`
	Pattern  string `yaml:"pattern"`
	Title    string `yaml:"title"`

	// EqualsEnv names an environment variable whose value the input must match,
	// e.g. a shared password for a members-only resource.
	EqualsEnv string `yaml:"equals_env"`
}

var htmlInputTypes = map[string]struct{}{
	"checkbox": {}, "color": {}, "date": {}, "datetime-local": {}, "email": {},
	"hidden": {}, "month": {}, "number": {}, "password": {}, "range": {},
	"search": {}, "tel": {}, "text": {}, "time": {}, "url": {}, "week": {},
}

func (f Field) label() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

// compile resolves the field into a hook. getenv is consulted once, here.
func (f Field) compile(getenv func(string) string) (Hook, error) {
	if strings.TrimSpace(f.Name) == "" {
		return nil, fmt.Errorf("custom field: name is required")
	}
	if f.Type != "" {
		if _, ok := htmlInputTypes[f.Type]; !ok {
			return nil, fmt.Errorf("custom field %q: unsupported type %q", f.Name, f.Type)
		}
	}

	var re *regexp.Regexp
	if f.Pattern != "" {
		compiled, err := regexp.Compile("^(?:" + f.Pattern + ")$")
		if err != nil {
			return nil, fmt.Errorf("custom field %q: pattern: %w", f.Name, err)
		}
		re = compiled
	}

	var secret string
	if f.EqualsEnv != "" {
		secret = getenv(f.EqualsEnv)
		if secret == "" {
			return nil, fmt.Errorf("custom field %q: environment variable %s is not set", f.Name, f.EqualsEnv)
		}
	}

	return func(ext map[string]string) error {
		v, ok := ext[f.Name]
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			if f.Required || secret != "" {
				return Reject("%s is required", f.label())
			}
			return nil
		}
		if re != nil && !re.MatchString(v) {
			if f.Title != "" {
				return Reject("%s", f.Title)
			}
			return Reject("%s is invalid", f.label())
		}
		if secret != "" && subtle.ConstantTimeCompare([]byte(v), []byte(secret)) != 1 {
			return Reject("Invalid input")
		}
		return nil
	}, nil
}
