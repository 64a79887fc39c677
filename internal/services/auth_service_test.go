package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/tbourn/dogblood-backend/internal/auth"
	"github.com/tbourn/dogblood-backend/internal/domain"
)

func newAuth(t *testing.T) (*AuthService, *auth.TokenService) {
	t.Helper()
	tokens, err := auth.NewTokenService("0123456789abcdef-secret", 0)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return NewAuthService(newServiceDB(t), tokens, auth.NewPasswordServiceWithCost(4)), tokens
}

func TestRegisterLoginAuthenticate(t *testing.T) {
	svc, _ := newAuth(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, "  Alice@Example.com ", "s3cretpass", "Alice")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.User.Email != "alice@example.com" || reg.User.Credits != 0 || reg.AccessToken == "" {
		t.Fatalf("register=%+v", reg.User)
	}

	in, err := svc.Login(ctx, "ALICE@example.com", "s3cretpass")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	u, err := svc.Authenticate(ctx, in.AccessToken)
	if err != nil || u.ID != reg.User.ID {
		t.Fatalf("Authenticate: %+v %v", u, err)
	}

	if _, err := svc.Login(ctx, "alice@example.com", "wrong-pass"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong password err=%v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "s3cretpass"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown email err=%v", err)
	}
	if _, err := svc.Authenticate(ctx, "garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("bad token err=%v", err)
	}

	if err := svc.DB.Model(&domain.User{}).Where("id = ?", reg.User.ID).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := svc.Authenticate(ctx, in.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("inactive token err=%v", err)
	}
	if _, err := svc.Login(ctx, "alice@example.com", "s3cretpass"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("inactive login err=%v", err)
	}
}

func TestAuthenticate_TokenForDeletedUser(t *testing.T) {
	svc, tokens := newAuth(t)
	tok, err := tokens.Generate("ghost")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), tok); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err=%v", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newAuth(t)
	cases := []struct {
		name, email, password, fullName string
	}{
		{"bad email", "not-an-email", "s3cretpass", "A"},
		{"blank name", "a@example.com", "s3cretpass", "  "},
		{"short password", "a@example.com", "short", "A"},
		{"long password", "a@example.com", strings.Repeat("p", 73), "A"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(context.Background(), tc.email, tc.password, tc.fullName); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("err=%v", err)
			}
		})
	}
}

func TestRegister_DuplicateEmailExactlyOnce(t *testing.T) {
	svc, _ := newAuth(t)
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Register(context.Background(), "dup@example.com", "s3cretpass", "Dup")
		}(i)
	}
	wg.Wait()

	var ok, conflict int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrConflict):
			conflict++
		default:
			t.Fatalf("unexpected err: %v", err)
		}
	}
	if ok != 1 || conflict != 1 {
		t.Fatalf("ok=%d conflict=%d", ok, conflict)
	}
	var n int64
	svc.DB.Model(&domain.User{}).Where("email = ?", "dup@example.com").Count(&n)
	if n != 1 {
		t.Fatalf("users=%d want 1", n)
	}
}

func TestProfile(t *testing.T) {
	svc, _ := newAuth(t)
	ctx := context.Background()
	reg, err := svc.Register(ctx, "p@example.com", "s3cretpass", "Pat")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	u, err := svc.Profile(ctx, reg.User.ID)
	if err != nil || u.Email != "p@example.com" || u.FullName != "Pat" {
		t.Fatalf("Profile=%+v err=%v", u, err)
	}
	if _, err := svc.Profile(ctx, "missing"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown id err=%v", err)
	}
}
