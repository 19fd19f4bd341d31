package diagnostic

import (
	"fmt"
	"go/token"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/walteh/doccomment/pkg/position"
	"gitlab.com/tozd/go/errors"
)

// Error kinds. Every failure reported by doccomment wraps exactly one of these.
var (
	ErrNonConstantString   = errors.Base("non-constant string")
	ErrMalformedInvocation = errors.Base("malformed invocation")
	ErrUnreadableFile      = errors.Base("unreadable file")
	ErrNameCollision       = errors.Base("name collision")
)

// Diagnostic is a failure tied to the source location of the invocation that caused it.
type Diagnostic struct {
	Place position.Place
	Err   error
}

// At builds a diagnostic for pos. src is the content of the file pos
// belongs to and may be nil.
func At(fset *token.FileSet, pos token.Pos, src []byte, err error) *Diagnostic {
	return &Diagnostic{
		Place: position.Of(fset, pos, src),
		Err:   err,
	}
}

func (d *Diagnostic) Error() string {
	if !d.Place.IsValid() {
		return d.Err.Error()
	}
	return fmt.Sprintf("%s: %s", d.Place, d.Err.Error())
}

func (d *Diagnostic) Unwrap() error {
	return d.Err
}

// Diagnostics collects diagnostics of one run.
type Diagnostics []*Diagnostic

func (ds Diagnostics) Sort() {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i].Place, ds[j].Place
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Character < b.Character
	})
}

// Err returns the diagnostics aggregated into one error, or nil when there
// are none.
func (ds Diagnostics) Err() error {
	ds.Sort()

	var merr *multierror.Error
	for _, d := range ds {
		merr = multierror.Append(merr, d)
	}
	if merr != nil {
		merr.ErrorFormat = ListFormat
	}
	return merr.ErrorOrNil()
}

// ListFormat renders one error per line, like the Go compiler does.
func ListFormat(errs []error) string {
	lines := make([]string, 0, len(errs))
	for _, err := range errs {
		lines = append(lines, err.Error())
	}
	return strings.Join(lines, "\n")
}

// Append merges errs into merr, keeping the one-per-line format. Nil errors
// are dropped and merr stays nil when nothing is appended.
func Append(merr *multierror.Error, errs ...error) *multierror.Error {
	for _, err := range errs {
		if err == nil {
			continue
		}
		merr = multierror.Append(merr, err)
		merr.ErrorFormat = ListFormat
	}
	return merr
}
