package portmap

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
)

const (
	msgDeleted      = "port mapping rules deleted"
	msgDeleteFailed = "failed to delete port mapping rules, see result for details"
)

// Result is the outcome of an add or delete operation.
type Result struct {
	OK      bool              `json:"ok"`
	Message string            `json:"msg"`
	Errors  map[string]string `json:"result"`
}

// Err folds the per-port errors into one error, ordered by port. It returns
// nil when there are none.
func (r Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}

	keys := make([]string, 0, len(r.Errors))
	for key := range r.Errors {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, erri := portKey(keys[i])
		pj, errj := portKey(keys[j])
		if erri != nil || errj != nil || pi == pj {
			return keys[i] < keys[j]
		}
		return pi < pj
	})

	var merr *multierror.Error
	for _, key := range keys {
		merr = multierror.Append(merr, fmt.Errorf("port %s: %s", key, r.Errors[key]))
	}
	merr.ErrorFormat = formatPortErrors
	return merr.ErrorOrNil()
}

func portKey(key string) (int, error) {
	raw, _, _ := strings.Cut(key, "/")
	return strconv.Atoi(raw)
}

func formatPortErrors(errs []error) string {
	if len(errs) == 1 {
		return errs[0].Error()
	}

	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d ports failed: %s", len(errs), strings.Join(msgs, "; "))
}

// resultFromErrors builds a delete Result from the per-port error map.
func resultFromErrors(errs map[string]error) Result {
	if len(errs) == 0 {
		return Result{OK: true, Message: msgDeleted, Errors: map[string]string{}}
	}

	out := make(map[string]string, len(errs))
	for port, err := range errs {
		out[port] = err.Error()
	}
	return Result{OK: false, Message: msgDeleteFailed, Errors: out}
}

// errNotFound marks a port with no matching rule.
var errNotFound = errors.New("no matching dnat rule")

type notFoundError struct {
	port  int
	table string
	chain string
}

func (e *notFoundError) Error() string {
	return fmt.Sprintf("no DNAT rule for host port %d in %s/%s", e.port, e.table, e.chain)
}

func (e *notFoundError) Is(target error) bool {
	return target == errNotFound
}
