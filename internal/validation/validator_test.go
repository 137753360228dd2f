// EventLedger - Partitioned Append-Only Event Log
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventledger

package validation

import (
	"strings"
	"testing"
)

type createStreamForm struct {
	StreamID       string `validate:"required,max=256"`
	PartitionCount uint32 `validate:"omitempty,min=1,max=1024"`
}

func TestValidateStructPasses(t *testing.T) {
	err := ValidateStruct(&createStreamForm{StreamID: "orders", PartitionCount: 3})
	if err != nil {
		t.Errorf("expected valid struct, got %v", err)
	}
}

func TestValidateStructRequired(t *testing.T) {
	err := ValidateStruct(&createStreamForm{PartitionCount: 3})
	if err == nil {
		t.Fatal("expected validation error for missing StreamID")
	}

	errs := err.Errors()
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	if errs[0].Field() != "StreamID" || errs[0].Tag() != "required" {
		t.Errorf("unexpected error: field=%s tag=%s", errs[0].Field(), errs[0].Tag())
	}
	if !strings.Contains(err.Error(), "StreamID is required") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestValidateStructMax(t *testing.T) {
	err := ValidateStruct(&createStreamForm{StreamID: "orders", PartitionCount: 5000})
	if err == nil {
		t.Fatal("expected validation error for excessive PartitionCount")
	}
	if !strings.Contains(err.Error(), "at most 1024") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestValidateStructMultipleErrors(t *testing.T) {
	type form struct {
		A string `validate:"required"`
		B string `validate:"required"`
	}

	err := ValidateStruct(&form{})
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if len(err.Errors()) != 2 {
		t.Errorf("expected 2 errors, got %d", len(err.Errors()))
	}
	if !strings.Contains(err.Error(), ";") {
		t.Errorf("expected combined message, got %q", err.Error())
	}
}

func TestGetValidatorIsSingleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("expected the same validator instance")
	}
}
