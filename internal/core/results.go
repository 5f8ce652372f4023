package core

import (
	"fmt"

	"ledgerql/pkg/domain"
)

// Problem is an expected mutation failure. Problems are returned as values
// inside an Outcome, never as errors.
type Problem interface {
	Message() string
}

// Outcome carries either the created value or the Problem that prevented it.
type Outcome[T any] struct {
	Value   T
	Problem Problem
}

// OK reports whether the mutation succeeded.
func (o Outcome[T]) OK() bool { return o.Problem == nil }

// Result returns the Problem when set, the value otherwise.
func (o Outcome[T]) Result() any {
	if o.Problem != nil {
		return o.Problem
	}
	return o.Value
}

type AuthorExists struct{ Name string }

func (p AuthorExists) Message() string {
	return fmt.Sprintf("Author %q already exists", p.Name)
}

type AuthorNameMissing struct{}

func (AuthorNameMissing) Message() string { return "Please supply an author name" }

type AuthorNotFound struct{ Name string }

func (p AuthorNotFound) Message() string {
	return fmt.Sprintf("Couldn't find an author with the name %q", p.Name)
}

type DescriptionMissing struct{}

func (DescriptionMissing) Message() string { return "Please supply a description" }

type InvalidAfipCode struct {
	Code   string
	Reason string
}

func (p InvalidAfipCode) Message() string {
	return fmt.Sprintf("Invalid AFIP code %q: %s", p.Code, p.Reason)
}

type DocumentTypeNotFound struct{ ID int64 }

func (p DocumentTypeNotFound) Message() string {
	return fmt.Sprintf("Document type %d not found", p.ID)
}

type DocumentNotFound struct{ ID string }

func (p DocumentNotFound) Message() string {
	return fmt.Sprintf("Document %s not found", p.ID)
}

type AccountingEntryNotFound struct{ ID string }

func (p AccountingEntryNotFound) Message() string {
	return fmt.Sprintf("Accounting entry %s not found", p.ID)
}

type AccountingEntryExists struct{ ID string }

func (p AccountingEntryExists) Message() string {
	return fmt.Sprintf("Accounting entry %s already exists", p.ID)
}

type AccountingEntryDetailNotFound struct{ ID string }

func (p AccountingEntryDetailNotFound) Message() string {
	return fmt.Sprintf("Accounting entry detail %s not found", p.ID)
}

type InvalidIdentifier struct {
	Value string
}

func (p InvalidIdentifier) Message() string {
	return fmt.Sprintf("%q is not a valid UUID", p.Value)
}

type InvalidAmount struct {
	Value  string
	Reason string
}

func (p InvalidAmount) Message() string {
	return fmt.Sprintf("Invalid amount %q: %s", p.Value, p.Reason)
}

type InvalidColumn struct{ Value string }

func (p InvalidColumn) Message() string {
	return fmt.Sprintf("Invalid column %q: expected %q or %q", p.Value, domain.ColumnDebit, domain.ColumnCredit)
}

type InvalidPercentage struct {
	Value  string
	Reason string
}

func (p InvalidPercentage) Message() string {
	return fmt.Sprintf("Invalid percentage %q: %s", p.Value, p.Reason)
}

type CatalogEntryNotFound struct {
	Kind domain.CatalogKind
	ID   int64
}

func (p CatalogEntryNotFound) Message() string {
	return fmt.Sprintf("%s entry %d not found", p.Kind, p.ID)
}
