// Package admincli implements the interactive operator command that
// creates admin accounts directly in the store.
package admincli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
	"github.com/dmitrijs2005/taskkeeper/internal/server/services"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

var ErrPasswordMismatch = errors.New("passwords do not match")

type UserCreator interface {
	CreateUser(ctx context.Context, in services.NewUser) (*models.User, error)
}

type Prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out, fd: int(os.Stdin.Fd())}
}

// Line prints prompt and returns the next input line without surrounding
// whitespace. Partial input before EOF is returned as is.
func (p *Prompter) Line(prompt string) (string, error) {
	if _, err := fmt.Fprint(p.out, prompt+": "); err != nil {
		return "", err
	}
	line, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Password reads a password from the terminal without echo. The caller
// should wipe the returned slice once done with it.
func (p *Prompter) Password(prompt string) ([]byte, error) {
	if _, err := fmt.Fprint(p.out, prompt+": "); err != nil {
		return nil, err
	}
	pw, err := readPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// CreateAdmin asks for name, email and a confirmed password and stores a
// new admin account.
func CreateAdmin(ctx context.Context, uc UserCreator, p *Prompter) (*models.User, error) {
	name, err := p.Line("Name")
	if err != nil {
		return nil, err
	}
	email, err := p.Line("Email")
	if err != nil {
		return nil, err
	}
	password, err := p.Password("Password")
	if err != nil {
		return nil, err
	}
	defer common.WipeBytes(password)

	confirm, err := p.Password("Repeat password")
	if err != nil {
		return nil, err
	}
	defer common.WipeBytes(confirm)

	if !bytes.Equal(password, confirm) {
		return nil, ErrPasswordMismatch
	}

	u, err := uc.CreateUser(ctx, services.NewUser{
		Name:     name,
		Email:    email,
		Password: string(password),
		Role:     models.RoleAdmin,
	})
	if err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}

	fmt.Fprintf(p.out, "Created admin %s (%s)\n", u.Email, u.ID)
	return u, nil
}
