package params

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v2"

	"github.com/abworrall/lacosmic/pkg/errors"
)

/* Example table file; entries override (or add to) the built-in table.

F606W:
  sigclip: 5.5
  sigfrac: 0.3
  objlim: 4
  niter: 5
  sigclip_postflash: 9.5
F999N: {sigclip: 4.0, sigfrac: 0.3, objlim: 5, niter: 4, sigclip_postflash: 0}

*/

// Validate checks the ranges the cosmic-ray task accepts.
func (p FilterParameters) Validate() error {
	switch {
	case !(p.Sigclip > 0):
		return fmt.Errorf("sigclip must be > 0, got %v", p.Sigclip)
	case !(p.Sigfrac > 0 && p.Sigfrac <= 1):
		return fmt.Errorf("sigfrac must be in (0,1], got %v", p.Sigfrac)
	case p.Objlim <= 0:
		return fmt.Errorf("objlim must be > 0, got %d", p.Objlim)
	case p.Niter <= 0:
		return fmt.Errorf("niter must be > 0, got %d", p.Niter)
	case !(p.SigclipPostflash >= 0):
		return fmt.Errorf("sigclip_postflash must be >= 0, got %v", p.SigclipPostflash)
	}
	return nil
}

func (p FilterParameters) String() string {
	return fmt.Sprintf("[sigclip=%g sigfrac=%g objlim=%d niter=%d sigclip_pf=%g]",
		p.Sigclip, p.Sigfrac, p.Objlim, p.Niter, p.SigclipPostflash)
}

// Validate checks every entry, reporting the first bad one (by name).
func (t Table) Validate() error {
	for _, name := range t.Filters() {
		if err := t[name].Validate(); err != nil {
			return errors.Configurationf("filter %s: %v", name, err)
		}
	}
	return nil
}

// Filters returns the table's filter names, sorted.
func (t Table) Filters() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge returns a new table: t with the entries of overrides laid on top.
func (t Table) Merge(overrides Table) Table {
	out := make(Table, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

func (t Table) AsYaml() string {
	b, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Sprintf("# can't marshal table yaml: %v\n", err)
	}
	return string(b)
}

// NewTableFromYaml parses a table file's contents.
func NewTableFromYaml(b []byte) (Table, error) {
	t := Table{}
	if err := yaml.UnmarshalStrict(b, &t); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parse parameter table"), errors.ErrConfiguration)
	}
	return t, t.Validate()
}

// LoadTable returns the built-in table, overridden by the entries in the
// YAML file at filename. An empty filename gives just the built-in table.
func LoadTable(filename string) (Table, error) {
	if filename == "" {
		return DefaultTable(), nil
	}

	contents, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read '%s'", filename), errors.ErrConfiguration)
	}

	overrides, err := NewTableFromYaml(contents)
	if err != nil {
		return nil, errors.Wrapf(err, "table '%s'", filename)
	}

	return DefaultTable().Merge(overrides), nil
}
