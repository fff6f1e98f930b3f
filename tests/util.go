package testutil

import (
	"archive/zip"
	"bytes"
	"context"
	"io/ioutil"
	"log"
	"testing"
	"time"

	"github.com/trezcool/grader/core"
	"github.com/trezcool/grader/core/assignment"
	"github.com/trezcool/grader/core/professor"
	logsvc "github.com/trezcool/grader/services/logger"
)

// NewLogger returns a silent logger with Rollbar disabled.
func NewLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(ioutil.Discard, "TEST : ", log.LstdFlags), conf)
	logger.Enable(false)
	return logger
}

func CreateProfessor(
	t *testing.T,
	repo professor.Repository,
	name, email, dept, pwd string,
	createdAt ...time.Time,
) professor.Professor {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	prof := professor.Professor{
		Name:       name,
		Email:      email,
		Department: dept,
		CreatedAt:  tstamp,
	}
	if pwd != "" {
		if err := prof.SetPassword(pwd); err != nil {
			t.Fatalf("CreateProfessor() failed: %v", err)
		}
	}
	prof, err := repo.CreateProfessor(context.Background(), prof)
	if err != nil {
		t.Fatalf("CreateProfessor() failed: %v", err)
	}
	return prof
}

func CreateAssignment(
	t *testing.T,
	repo assignment.Repository,
	profID int,
	title, description string,
	maxPoints int,
	createdAt ...time.Time,
) assignment.Assignment {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	asn, err := repo.CreateAssignment(context.Background(), assignment.Assignment{
		Title:          title,
		Description:    description,
		MaxPoints:      maxPoints,
		ProfessorID:    profID,
		SolutionStatus: assignment.SolutionNone,
		CreatedAt:      tstamp,
	})
	if err != nil {
		t.Fatalf("CreateAssignment() failed: %v", err)
	}
	return asn
}

// MakeZip returns a ZIP archive holding `files` ({name: content}).
func MakeZip(t *testing.T, files map[string]string) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("MakeZip() failed: %v", err)
		}
		if _, err = w.Write([]byte(content)); err != nil {
			t.Fatalf("MakeZip() failed: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("MakeZip() failed: %v", err)
	}
	return buf.Bytes()
}
