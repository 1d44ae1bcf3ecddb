package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSource(t *testing.T, root string, rel string, body string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestCollectViolationsFlagsLayerBreaches(t *testing.T) {
	root := t.TempDir()
	t.Chdir(root)

	writeSource(t, root, "contexts/marketplace/listing-ledger/domain/entities/ok.go", `package entities

import (
	"errors"

	"bazaar/contexts/marketplace/listing-ledger/domain/errors"
)

var _ = errors.New
`)
	writeSource(t, root, "contexts/marketplace/listing-ledger/domain/entities/bad.go", `package entities

import _ "bazaar/contexts/marketplace/listing-ledger/adapters/memory"
`)
	writeSource(t, root, "contexts/marketplace/listing-ledger/application/commands/bad.go", `package commands

import _ "bazaar/internal/platform/metrics"
`)
	writeSource(t, root, "contexts/marketplace/listing-ledger/ports/bad.go", `package ports

import _ "github.com/google/uuid"
`)
	writeSource(t, root, "contexts/marketplace/listing-ledger/ports/ok.go", `package ports

import _ "bazaar/contracts/events/v1"
`)
	writeSource(t, root, "contexts/marketplace/other-service/adapters/http/bad.go", `package http

import _ "bazaar/contexts/marketplace/listing-ledger/ports"
`)
	writeSource(t, root, "contexts/marketplace/listing-ledger/domain/entities/skip_test.go", `package entities

import _ "bazaar/internal/platform/metrics"
`)

	violations := collectViolations("contexts")

	rules := map[string]int{}
	for _, v := range violations {
		rules[v.Rule]++
		if filepath.Base(v.File) == "ok.go" || filepath.Base(v.File) == "skip_test.go" {
			t.Fatalf("unexpected violation in %s: %+v", v.File, v)
		}
	}

	for _, rule := range []string{
		"domain must not import adapters",
		"application must not import runtime infrastructure",
		"ports import is outside explicit allowlist",
		"cross-module imports are forbidden",
	} {
		if rules[rule] == 0 {
			t.Fatalf("expected a %q violation, got %+v", rule, violations)
		}
	}
}

func TestIsStdlib(t *testing.T) {
	if !isStdlib("net/http") {
		t.Fatalf("expected net/http to be stdlib")
	}
	if isStdlib("github.com/google/uuid") {
		t.Fatalf("expected third-party path to be non-stdlib")
	}
	if isStdlib("bazaar/contracts/events/v1") {
		t.Fatalf("expected module path to be non-stdlib")
	}
}

func TestCollectImportOrderFlagsUnsortedGroup(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "internal/platform/httpserver/server.go", `package httpserver

import (
	"net/http"

	"bazaar/internal/platform/ratelimiter"
	_ "bazaar/internal/platform/httpserver/docs"

	"github.com/prometheus/client_golang/prometheus"
)
`)
	writeSource(t, root, "internal/platform/httpserver/_skip/broken.go", `package skip

import (
	"os"
	"fmt"
)
`)

	violations := collectImportOrder(filepath.Join(root, "internal"))
	if len(violations) != 1 {
		t.Fatalf("expected one ordering violation, got %+v", violations)
	}
	if violations[0].Import != "bazaar/internal/platform/httpserver/docs" || violations[0].Line != 7 {
		t.Fatalf("unexpected violation: %+v", violations[0])
	}
}

func TestRepositoryImportsAreSorted(t *testing.T) {
	for _, root := range []string{"cmd", "contexts", "contracts", "internal", "scripts"} {
		if violations := collectImportOrder(filepath.Join("..", root)); len(violations) != 0 {
			t.Fatalf("unsorted imports under %s: %+v", root, violations)
		}
	}
}
