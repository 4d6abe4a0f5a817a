package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Diagnostic flattens an error tree into log fields. Store details are filled
// from the pgx error the postgres driver returns.
type Diagnostic struct {
	Message    string
	Code       Code
	Retryable  bool
	Chain      []string
	SQLState   string
	Constraint string
	Table      string
	Column     string
	Detail     string
}

// Describe walks err, including joined errors, and collects what it finds.
func Describe(err error) Diagnostic {
	if err == nil {
		return Diagnostic{}
	}
	d := Diagnostic{Message: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
		d.Retryable = MetadataFor(d.Code).Retryable
	}
	walk(err, func(e error) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	})

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		d.SQLState = pgErr.Code
		d.Constraint = pgErr.ConstraintName
		d.Table = pgErr.TableName
		d.Column = pgErr.ColumnName
		d.Detail = pgErr.Detail
	}
	return d
}

// Fields renders the diagnostic for logger.WithFields, skipping empty values.
func (d Diagnostic) Fields() map[string]any {
	fields := map[string]any{"error": d.Message}
	if d.Code != "" {
		fields["error_code"] = d.Code
		fields["retryable"] = d.Retryable
	}
	if len(d.Chain) > 1 {
		fields["error_chain"] = d.Chain
	}
	for key, value := range map[string]string{
		"sql_state":      d.SQLState,
		"sql_constraint": d.Constraint,
		"sql_table":      d.Table,
		"sql_column":     d.Column,
		"sql_detail":     d.Detail,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}

func walk(err error, visit func(error)) {
	if err == nil {
		return
	}
	visit(err)
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			walk(inner, visit)
		}
	case interface{ Unwrap() error }:
		walk(u.Unwrap(), visit)
	}
}
