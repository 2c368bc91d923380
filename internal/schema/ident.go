package schema

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidIdentifier is wrapped by every identifier validation failure.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// identPattern is the allow-list for table, column, constraint and schema
// names interpolated into statements. Names come from one server's catalog
// and are fed into statements against another, so anything outside this set
// is rejected rather than escaped.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$#@ \-]{0,127}$`)

// ValidateIdentifier returns an error wrapping ErrInvalidIdentifier when id
// does not match the allow-list.
func ValidateIdentifier(id string) error {
	if !identPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}
	return nil
}

// ValidateTable validates both parts of a table identity. An empty schema is
// allowed.
func ValidateTable(t TableIdentity) error {
	if t.Schema != "" {
		if err := ValidateIdentifier(t.Schema); err != nil {
			return fmt.Errorf("schema of %s: %w", t, err)
		}
	}
	if err := ValidateIdentifier(t.Name); err != nil {
		return fmt.Errorf("table %s: %w", t, err)
	}
	return nil
}

// Validate checks every identifier the schema would interpolate: table,
// columns, primary key and foreign key names.
func (s TableSchema) Validate() error {
	if err := ValidateTable(s.Table); err != nil {
		return err
	}
	for _, c := range s.Columns {
		if err := ValidateIdentifier(c.Name); err != nil {
			return fmt.Errorf("column of %s: %w", s.Table, err)
		}
	}
	for _, pk := range s.PrimaryKey {
		if err := ValidateIdentifier(pk); err != nil {
			return fmt.Errorf("primary key of %s: %w", s.Table, err)
		}
	}
	for _, fk := range s.ForeignKeys {
		if err := ValidateForeignKey(fk); err != nil {
			return err
		}
	}
	return nil
}

// ValidateForeignKey checks every identifier of one foreign key ref.
func ValidateForeignKey(fk ForeignKeyRef) error {
	for _, id := range []string{fk.Name, fk.Column, fk.RefColumn} {
		if err := ValidateIdentifier(id); err != nil {
			return fmt.Errorf("foreign key %s: %w", fk.Name, err)
		}
	}
	if err := ValidateTable(fk.RefTable); err != nil {
		return fmt.Errorf("foreign key %s: %w", fk.Name, err)
	}
	return nil
}
