package services

import (
	"errors"
	"sort"
	"strings"

	"github.com/dmitrijs2005/libraryauth/internal/server/auth"
	"github.com/dmitrijs2005/libraryauth/internal/server/models"
)

// Identity is the public view of a stored credential. It never carries the
// password salt or hash.
type Identity struct {
	ID       string         `json:"id"`
	UserName string         `json:"username"`
	Role     auth.Role      `json:"role"`
	Profile  models.Profile `json:"profile"`
}

func identityOf(u *models.User) *Identity {
	return &Identity{
		ID:       u.ID,
		UserName: u.UserName,
		Role:     auth.Role(u.Role),
		Profile:  u.Profile,
	}
}

// ValidationError reports request fields that failed validation. Err
// joins the underlying sentinel errors so callers can match them with
// errors.Is.
type ValidationError struct {
	Fields map[string]string
	Err    error
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return e.Err }

// validation accumulates field errors.
type validation struct {
	fields map[string]string
	errs   []error
}

func (v *validation) add(field string, err error) {
	if v.fields == nil {
		v.fields = make(map[string]string)
	}
	v.fields[field] = err.Error()
	v.errs = append(v.errs, err)
}

func (v *validation) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields, Err: errors.Join(v.errs...)}
}
