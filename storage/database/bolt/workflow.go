// Package boltdb keeps workflow sessions in a bbolt file.
package boltdb

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/trezcool/grader/core/workflow"
)

var sessionsBucket = []byte("workflow_sessions")

type WorkflowStore struct {
	db *bbolt.DB
}

var _ workflow.Store = (*WorkflowStore)(nil) // interface compliance check

// Open opens (or creates) the bbolt file at path.
func Open(path string) (*WorkflowStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating workflow dir")
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "opening workflow store")
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "creating sessions bucket")
	}
	return &WorkflowStore{db: db}, nil
}

func (s *WorkflowStore) Close() error {
	return s.db.Close()
}

func sessionKey(professorID int) []byte {
	return []byte(strconv.Itoa(professorID))
}

func (s *WorkflowStore) GetSession(_ context.Context, professorID int) (workflow.Session, bool, error) {
	var (
		session workflow.Session
		found   bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(sessionsBucket).Get(sessionKey(professorID))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &session)
	})
	if err != nil {
		return workflow.Session{}, false, errors.Wrap(err, "reading session")
	}
	return session, found, nil
}

func (s *WorkflowStore) SaveSession(_ context.Context, session workflow.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "encoding session")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionsBucket).Put(sessionKey(session.ProfessorID), data)
	})
}

func (s *WorkflowStore) DeleteSession(_ context.Context, professorID int) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete(sessionKey(professorID))
	})
}
