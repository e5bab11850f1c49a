package admincli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
	"github.com/dmitrijs2005/taskkeeper/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCreator struct {
	got services.NewUser
	err error
}

func (f *fakeCreator) CreateUser(_ context.Context, in services.NewUser) (*models.User, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	return &models.User{ID: "u-1", Name: in.Name, Email: in.Email, Role: in.Role}, nil
}

func stubPasswords(t *testing.T, answers ...string) {
	t.Helper()
	old := readPassword
	t.Cleanup(func() { readPassword = old })
	readPassword = func(int) ([]byte, error) {
		if len(answers) == 0 {
			return nil, errors.New("no more input")
		}
		a := answers[0]
		answers = answers[1:]
		return []byte(a), nil
	}
}

func TestCreateAdmin_Success(t *testing.T) {
	stubPasswords(t, "secret1", "secret1")
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("Root\nroot@example.com\n"), &out)
	fc := &fakeCreator{}

	u, err := CreateAdmin(context.Background(), fc, p)
	require.NoError(t, err)

	assert.Equal(t, services.NewUser{Name: "Root", Email: "root@example.com", Password: "secret1", Role: models.RoleAdmin}, fc.got)
	assert.Equal(t, "u-1", u.ID)
	assert.Contains(t, out.String(), "Created admin root@example.com (u-1)")
}

func TestCreateAdmin_PasswordMismatch(t *testing.T) {
	stubPasswords(t, "secret1", "secret2")
	p := NewPrompter(strings.NewReader("Root\nroot@example.com\n"), &bytes.Buffer{})
	fc := &fakeCreator{}

	_, err := CreateAdmin(context.Background(), fc, p)
	assert.ErrorIs(t, err, ErrPasswordMismatch)
	assert.Empty(t, fc.got.Email)
}

func TestCreateAdmin_CreatorError(t *testing.T) {
	stubPasswords(t, "secret1", "secret1")
	p := NewPrompter(strings.NewReader("Root\nroot@example.com\n"), &bytes.Buffer{})
	fc := &fakeCreator{err: common.Errorf(common.ErrorAlreadyExists, "email already registered")}

	_, err := CreateAdmin(context.Background(), fc, p)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestCreateAdmin_InputEnds(t *testing.T) {
	p := NewPrompter(strings.NewReader(""), &bytes.Buffer{})
	_, err := CreateAdmin(context.Background(), &fakeCreator{}, p)
	assert.Error(t, err)
}

func TestPrompter_LineEOF(t *testing.T) {
	p := NewPrompter(strings.NewReader("  last  "), &bytes.Buffer{})
	got, err := p.Line("Name")
	require.NoError(t, err)
	assert.Equal(t, "last", got)
}

func TestPrompter_PasswordError(t *testing.T) {
	stubPasswords(t)
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader(""), &out)
	_, err := p.Password("Password")
	assert.Error(t, err)
	assert.Equal(t, "Password: \n", out.String())
}
