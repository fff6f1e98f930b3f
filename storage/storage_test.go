package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/grader/core"
)

func TestOpen(t *testing.T) {
	conf := core.NewTestConfig(t.TempDir())

	repos, err := Open(conf)
	require.NoError(t, err)
	assert.Nil(t, repos.DB)
	assert.NotNil(t, repos.Professors)
	assert.NotNil(t, repos.Assignments)
	assert.NotNil(t, repos.Grading)
	assert.NotNil(t, repos.Workflow)
	assert.NoError(t, repos.Close())

	conf.Database.Engine = "mysql"
	_, err = Open(conf)
	assert.EqualError(t, err, `unknown database engine "mysql"`)
}
