package envvars

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// ErrVariableNotFound is returned when deleting an unknown key.
var ErrVariableNotFound = errors.New("environment variable not found")

var keyPattern = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

// ValidateKey checks that key is a conventional upper-case variable name.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("invalid key %q: use upper-case letters, digits and underscores", key)
	}
	return nil
}

// ValidateValue rejects values the dotenv reader cannot give back unchanged
// once quoted: a trailing backslash or double quote ends the quoted string
// early.
func ValidateValue(value string) error {
	if strings.HasSuffix(value, `\`) || strings.HasSuffix(value, `"`) {
		return errors.New(`value cannot end with a backslash or double quote`)
	}
	return nil
}

// FieldErrors maps a row identifier to the problem found with it.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for k, v := range e {
		parts = append(parts, k+": "+v)
	}
	return "invalid environment variables: " + strings.Join(parts, "; ")
}

// ToMap validates a full list and converts it to a map. Rows are identified by
// their index so colliding values never confuse the caller.
func ToMap(vars []Variable) (map[string]string, error) {
	out := make(map[string]string, len(vars))
	problems := FieldErrors{}
	for i, v := range vars {
		key := strings.TrimSpace(v.Key)
		row := fmt.Sprintf("[%d]", i)
		if err := ValidateKey(key); err != nil {
			problems[row] = err.Error()
			continue
		}
		if _, dup := out[key]; dup {
			problems[row] = fmt.Sprintf("duplicate key %q", key)
			continue
		}
		if err := ValidateValue(v.Value); err != nil {
			problems[row] = err.Error()
			continue
		}
		out[key] = v.Value
	}
	if len(problems) > 0 {
		return nil, problems
	}
	return out, nil
}

// FileStore keeps variables in a dotenv file.
type FileStore struct {
	path         string
	applyProcess bool
	mu           sync.Mutex
}

// NewFileStore returns a store backed by path. When applyProcess is true every
// write is mirrored into the running process environment.
func NewFileStore(path string, applyProcess bool) *FileStore {
	return &FileStore{path: path, applyProcess: applyProcess}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// List returns every variable in the file. A missing file is an empty list.
func (s *FileStore) List(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// ReplaceAll overwrites the file with values.
func (s *FileStore) ReplaceAll(ctx context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err := s.read()
	if err != nil {
		return err
	}
	if err := s.write(values); err != nil {
		return err
	}
	if s.applyProcess {
		for k := range previous {
			if _, kept := values[k]; !kept {
				_ = os.Unsetenv(k)
			}
		}
		for k, v := range values {
			_ = os.Setenv(k, v)
		}
	}
	return nil
}

// Set upserts a single variable.
func (s *FileStore) Set(ctx context.Context, key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ValidateValue(value); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return err
	}
	values[key] = value
	if err := s.write(values); err != nil {
		return err
	}
	if s.applyProcess {
		_ = os.Setenv(key, value)
	}
	return nil
}

// Delete removes a single variable.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return ErrVariableNotFound
	}
	delete(values, key)
	if err := s.write(values); err != nil {
		return err
	}
	if s.applyProcess {
		_ = os.Unsetenv(key)
	}
	return nil
}

func (s *FileStore) read() (map[string]string, error) {
	values, err := godotenv.Read(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read env file %s: %w", s.path, err)
	}
	return values, nil
}

// valueEscaper produces double-quoted dotenv values that godotenv.Read turns
// back into the exact input.
var valueEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\n", `\n`,
	"\r", `\r`,
	`"`, `\"`,
	"!", `\!`,
	"$", `\$`,
	"`", "\\`",
)

// write quotes every value. godotenv.Write prints integer-looking values
// bare, which loses leading zeros and signs.
func (s *FileStore) write(values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(valueEscaper.Replace(values[k]))
		b.WriteString("\"\n")
	}
	if err := os.WriteFile(s.path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("write env file %s: %w", s.path, err)
	}
	return nil
}
