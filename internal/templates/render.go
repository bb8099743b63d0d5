package templates

import (
	"fmt"
	"strings"
)

// MissingVariableError is returned when a placeholder in the script has no
// entry in the substitution mapping.
type MissingVariableError struct {
	// Name is the unresolved placeholder name.
	Name string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("missing variable %q", e.Name)
}

// MalformedPlaceholderError is returned when placeholder syntax is invalid,
// such as an unterminated "${".
type MalformedPlaceholderError struct {
	// Offset is the byte offset of the "$" that started the placeholder.
	Offset int
	// Detail describes what is wrong with the placeholder.
	Detail string
}

func (e *MalformedPlaceholderError) Error() string {
	return fmt.Sprintf("malformed placeholder at offset %d: %s", e.Offset, e.Detail)
}

// Render substitutes $NAME and ${NAME} placeholders in script with values
// from vars. Names in passthrough, and any SLURM_* name, are left intact for
// the scheduler to resolve at run time. "$$" produces a literal "$". A "$"
// not followed by an identifier or "{" is kept as-is.
//
// Rendering is a pure function: either the whole script renders, or an error
// is returned and no partial output is produced.
func Render(script string, vars map[string]string, passthrough []string) (string, error) {
	keep := make(map[string]struct{}, len(passthrough))
	for _, name := range passthrough {
		keep[name] = struct{}{}
	}

	var out strings.Builder
	out.Grow(len(script))

	for i := 0; i < len(script); {
		c := script[i]
		if c != '$' {
			out.WriteByte(c)
			i++
			continue
		}

		start := i
		if i+1 >= len(script) {
			// Trailing "$" is literal.
			out.WriteByte('$')
			break
		}

		switch next := script[i+1]; {
		case next == '$':
			out.WriteByte('$')
			i += 2

		case next == '{':
			end := strings.IndexByte(script[i+2:], '}')
			if end < 0 {
				return "", &MalformedPlaceholderError{Offset: start, Detail: `unterminated "${"`}
			}
			name := script[i+2 : i+2+end]
			if !validName(name) {
				return "", &MalformedPlaceholderError{Offset: start, Detail: fmt.Sprintf("invalid name %q", name)}
			}
			value, err := resolve(name, script[start:i+2+end+1], vars, keep)
			if err != nil {
				return "", err
			}
			out.WriteString(value)
			i += 2 + end + 1

		case isNameStart(next):
			j := i + 1
			for j < len(script) && isNameByte(script[j]) {
				j++
			}
			name := script[i+1 : j]
			value, err := resolve(name, script[start:j], vars, keep)
			if err != nil {
				return "", err
			}
			out.WriteString(value)
			i = j

		default:
			// "$1", "$ ", "$-" and friends are literal text.
			out.WriteByte('$')
			i++
		}
	}

	return out.String(), nil
}

// resolve returns the replacement for a placeholder: the mapped value, the
// original token for pass-through names, or a MissingVariableError.
func resolve(name, token string, vars map[string]string, keep map[string]struct{}) (string, error) {
	if value, ok := vars[name]; ok {
		return value, nil
	}
	if _, ok := keep[name]; ok {
		return token, nil
	}
	if strings.HasPrefix(name, "SLURM_") {
		return token, nil
	}
	return "", &MissingVariableError{Name: name}
}

func validName(name string) bool {
	if name == "" || !isNameStart(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		if !isNameByte(name[i]) {
			return false
		}
	}
	return true
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameByte(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}
