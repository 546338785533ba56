package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/iliyamo/herdbook/internal/model"
)

func TestWriteDump(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	users := []model.User{{ID: 1, Name: "Ann", Email: "ann@farm.test", EmailVerified: true, CreatedAt: created}}
	animals := []model.Animal{
		{ID: 2, OwnerID: 1, Number: "B2", Type: model.TypeGoat, BirthDate: created, Status: model.StatusSold, Gender: model.GenderMale, Image: "/uploads/x.png", CreatedAt: created},
		{ID: 1, OwnerID: 1, Number: "A1", Type: model.TypeCow, BirthDate: created, Status: model.StatusActive, Gender: model.GenderFemale, CreatedAt: created},
	}

	var buf bytes.Buffer
	writeDump(&buf, users, animals)
	out := buf.String()

	for _, want := range []string{"ann@farm.test", "B2", "/uploads/x.png", "2024-03-01", "total users: 1", "total animals: 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("dump missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "B2") > strings.Index(out, "A1") {
		t.Errorf("animals not printed in the given order:\n%s", out)
	}
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	if !names["check"] || !names["dump"] {
		t.Fatalf("subcommands = %v", names)
	}
	if f := root.PersistentFlags().Lookup("timeout"); f == nil || f.DefValue != "10s" {
		t.Fatalf("timeout flag = %+v", f)
	}
}

func TestCheck_MissingDBSettingsIsAnError(t *testing.T) {
	for _, k := range []string{"APP_ENV", "APP_PORT", "JWT_SECRET", "STORE_DRIVER", "DB_USER", "DB_HOST", "DB_PORT", "DB_NAME"} {
		t.Setenv(k, "")
	}
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"check"})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "DB_USER") {
		t.Fatalf("err = %v, want a missing DB_USER error", err)
	}
}
