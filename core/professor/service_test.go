package professor_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/grader/core"
	"github.com/trezcool/grader/core/professor"
	inmemdb "github.com/trezcool/grader/storage/database/inmem"
	"github.com/trezcool/grader/tests"
)

func setup(t *testing.T) (*professor.Service, professor.Repository, *validator.Validate) {
	repo := inmemdb.NewProfessorRepository(inmemdb.Open())
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	return professor.NewService(repo), repo, validate
}

func TestNewProfessor_Validate(t *testing.T) {
	svc, repo, validate := setup(t)
	testutil.CreateProfessor(t, repo, "Ada Lovelace", "ada@uni.edu", "CS", "")

	tests := []struct {
		name       string
		data       professor.NewProfessor
		wantFields []string
	}{
		{name: "valid", data: professor.NewProfessor{Name: " Grace Hopper ", Email: "GRACE@uni.edu"}},
		{name: "blank name", data: professor.NewProfessor{Name: "   ", Email: "x@uni.edu"}, wantFields: []string{"name"}},
		{name: "bad email", data: professor.NewProfessor{Name: "X", Email: "nope"}, wantFields: []string{"email"}},
		{name: "short password", data: professor.NewProfessor{Name: "X", Email: "x@uni.edu", Password: "short"}, wantFields: []string{"password"}},
		{name: "duplicate email", data: professor.NewProfessor{Name: "Ada", Email: "ADA@uni.edu "}, wantFields: []string{"email"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.data.Validate(validate, svc)
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)

			var fields []string
			switch e := err.(type) {
			case validator.ValidationErrors:
				for _, fe := range e {
					fields = append(fields, fe.Field())
				}
			case *core.ValidationError:
				for _, fe := range e.Fields {
					fields = append(fields, fe.Field)
				}
			default:
				t.Fatalf("unexpected error type %T", err)
			}
			assert.Equal(t, tt.wantFields, fields)
		})
	}
}

func TestService(t *testing.T) {
	ctx := context.Background()
	svc, _, validate := setup(t)

	np := professor.NewProfessor{Name: "Grace Hopper", Email: " Grace@Navy.mil", Department: "Math", Password: "compiler1"}
	require.NoError(t, np.Validate(validate, svc))
	prof, err := svc.Create(ctx, np)
	require.NoError(t, err)
	assert.Equal(t, "grace@navy.mil", prof.Email)
	assert.NotEmpty(t, prof.PasswordHash)

	got, err := svc.GetByEmail(ctx, "GRACE@navy.mil")
	require.NoError(t, err)
	assert.Equal(t, prof.ID, got.ID)

	_, err = svc.Authenticate(ctx, "grace@navy.mil", "wrong-password")
	assert.Equal(t, professor.ErrNotFound, err)
	_, err = svc.Authenticate(ctx, "grace@navy.mil", "compiler1")
	assert.NoError(t, err)

	name := "Rear Admiral Hopper"
	up := professor.UpdateProfessor{Name: &name}
	require.NoError(t, up.Validate(prof, validate, svc))
	prof, err = svc.Update(ctx, prof, up)
	require.NoError(t, err)
	assert.Equal(t, name, prof.Name)
	assert.Equal(t, "Math", prof.Department)

	_, err = svc.SetPassword(ctx, "grace@navy.mil", "cobol-rules")
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, "grace@navy.mil", "cobol-rules")
	assert.NoError(t, err)

	other, err := svc.Create(ctx, professor.NewProfessor{Name: "Alan Turing", Email: "alan@uni.edu", Department: "CS"})
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, "alan@uni.edu", "")
	assert.Equal(t, professor.ErrNotFound, err, "professors without password cannot log in")

	profs, err := svc.Query(ctx, &professor.QueryFilter{Search: "cs"}, nil)
	require.NoError(t, err)
	require.Len(t, profs, 1)
	assert.Equal(t, other.ID, profs[0].ID)

	profs, err = svc.Query(ctx, nil, []core.DBOrdering{{Field: "name", Ascending: true}, {Field: "password_hash"}})
	require.NoError(t, err)
	require.Len(t, profs, 2)
	assert.Equal(t, other.ID, profs[0].ID)

	require.NoError(t, svc.Delete(ctx, other.ID))
	_, err = svc.GetByID(ctx, other.ID)
	assert.True(t, core.IsNotFound(err))
}
