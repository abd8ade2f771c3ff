package errors

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// pgDiag is the subset of Postgres diagnostics worth logging. Both drivers
// in the dependency graph (pgx through gorm, lib/pq through goose) fill it.
type pgDiag struct {
	code, constraint, table, column, detail, message string
}

func postgresDiag(err error) (pgDiag, bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgDiag{pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.ColumnName, pgxErr.Detail, pgxErr.Message}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pgDiag{string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Column, pqErr.Detail, pqErr.Message}, true
	}
	return pgDiag{}, false
}

// UniqueViolation reports whether err is a unique-index conflict and, when
// Postgres said so, which constraint fired.
func UniqueViolation(err error) (string, bool) {
	if d, ok := postgresDiag(err); ok {
		return d.constraint, d.code == pgUniqueViolation
	}
	return "", errors.Is(err, gorm.ErrDuplicatedKey)
}

// FromStore turns a repository error into an *Error. Typed errors pass
// through untouched; missing rows become NOT_FOUND with notFound as the
// public message.
func FromStore(err error, notFound, op string) error {
	if err == nil {
		return nil
	}
	if typed := As(err); typed != nil {
		return typed
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return New(CodeNotFound, notFound)
	}
	if constraint, ok := UniqueViolation(err); ok {
		return Wrap(CodeConflict, err, "Resource already exists").WithDetails(map[string]any{"constraint": constraint})
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(CodeDependency, err, "Database timed out")
	}
	return Wrap(CodeInternal, err, op)
}

// ErrorDump flattens an error chain for structured logs.
type ErrorDump struct {
	TopMessage string
	Code       Code
	Chain      []string
	pg         *pgDiag
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	if diag, ok := postgresDiag(err); ok {
		d.pg = &diag
	}
	return d
}

func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	if d.pg != nil {
		fields["pg_code"] = d.pg.code
		fields["pg_constraint"] = d.pg.constraint
		fields["pg_table"] = d.pg.table
		fields["pg_column"] = d.pg.column
		fields["pg_detail"] = d.pg.detail
		fields["pg_message"] = d.pg.message
	}
	return fields
}
