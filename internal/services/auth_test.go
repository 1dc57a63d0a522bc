package services

import (
	"context"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/dnafasttrack/custody-server/internal/models"
	"github.com/dnafasttrack/custody-server/internal/store"
)

const testJWTSecret = "test-secret"

func newTestAuth() (*AuthService, store.Store) {
	st := store.NewMemoryStore()
	return NewAuthService(st, testJWTSecret, zap.NewNop().Sugar()), st
}

func TestCreateUserAndLogin(t *testing.T) {
	ctx := context.Background()
	auth, _ := newTestAuth()

	u, apiToken, err := auth.CreateUser(ctx, models.CreateUserRequest{
		Email:    "Officer@Police.Example",
		Password: "correct horse",
		Role:     models.RoleOfficer,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.Email != "officer@police.example" {
		t.Fatalf("email not normalized: %q", u.Email)
	}
	if apiToken != "" {
		t.Fatalf("officer issued an api token: %q", apiToken)
	}
	if u.PasswordHash == "correct horse" || u.PasswordHash == "" {
		t.Fatal("password stored unhashed")
	}

	resp, err := auth.Login(ctx, "officer@police.example", "correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	tok, err := jwt.Parse(resp.Token, func(t *jwt.Token) (any, error) {
		return []byte(testJWTSecret), nil
	})
	if err != nil || !tok.Valid {
		t.Fatalf("issued token does not verify: %v", err)
	}
	claims := tok.Claims.(jwt.MapClaims)
	if claims["sub"] != "officer@police.example" || claims["role"] != models.RoleOfficer {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := auth.Login(ctx, "officer@police.example", "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := auth.Login(ctx, "nobody@police.example", "correct horse"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown email: %v", err)
	}
}

func TestCreateUserValidation(t *testing.T) {
	ctx := context.Background()
	auth, _ := newTestAuth()

	var verr *ValidationError
	if _, _, err := auth.CreateUser(ctx, models.CreateUserRequest{Password: "longenough", Role: models.RoleOfficer}); !errors.As(err, &verr) {
		t.Fatalf("empty email: %v", err)
	}
	if _, _, err := auth.CreateUser(ctx, models.CreateUserRequest{Email: "a@b.c", Password: "short", Role: models.RoleOfficer}); !errors.As(err, &verr) {
		t.Fatalf("short password: %v", err)
	}
	if _, _, err := auth.CreateUser(ctx, models.CreateUserRequest{Email: "a@b.c", Password: "longenough", Role: "superuser"}); !errors.As(err, &verr) {
		t.Fatalf("bad role: %v", err)
	}

	if _, _, err := auth.CreateUser(ctx, models.CreateUserRequest{Email: "a@b.c", Password: "longenough", Role: models.RoleOfficer}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := auth.CreateUser(ctx, models.CreateUserRequest{Email: "A@B.C", Password: "longenough", Role: models.RoleOfficer}); !errors.As(err, &verr) {
		t.Fatalf("duplicate email: %v", err)
	}
}

func TestLabTokenAuthorization(t *testing.T) {
	ctx := context.Background()
	auth, _ := newTestAuth()

	lab, labToken, err := auth.CreateUser(ctx, models.CreateUserRequest{
		Email:    "lab@partner.example",
		Password: "longenough",
		Role:     models.RoleLab,
	})
	if err != nil {
		t.Fatalf("create lab user: %v", err)
	}
	if labToken == "" {
		t.Fatal("lab user issued no api token")
	}

	got, err := auth.AuthorizeAPIToken(ctx, labToken)
	if err != nil || got.Email != lab.Email {
		t.Fatalf("authorize: %v %+v", err, got)
	}

	if _, err := auth.AuthorizeAPIToken(ctx, "no-such-token"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown token: %v", err)
	}
	if _, err := auth.AuthorizeAPIToken(ctx, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty token: %v", err)
	}
}

func TestBootstrapAdminOnlyOnEmptyStore(t *testing.T) {
	ctx := context.Background()
	auth, st := newTestAuth()

	if err := auth.BootstrapAdmin(ctx, "admin@fasttrack.local", "ChangeMe123!"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	u, err := st.FindUserByEmail(ctx, "admin@fasttrack.local")
	if err != nil || u.Role != models.RoleAdmin {
		t.Fatalf("admin not seeded: %v %+v", err, u)
	}

	// Second bootstrap is a no-op once any user exists.
	if err := auth.BootstrapAdmin(ctx, "other@fasttrack.local", "ChangeMe123!"); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	if _, err := st.FindUserByEmail(ctx, "other@fasttrack.local"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second admin was created: %v", err)
	}
}

func TestCreateLab(t *testing.T) {
	ctx := context.Background()
	auth, _ := newTestAuth()

	var verr *ValidationError
	if _, err := auth.CreateLab(ctx, models.CreateLabRequest{}); !errors.As(err, &verr) {
		t.Fatalf("empty name: %v", err)
	}

	l, err := auth.CreateLab(ctx, models.CreateLabRequest{Name: "Genomics East", ContactEmail: "ge@labs.example"})
	if err != nil || !l.IsActive {
		t.Fatalf("create lab: %v %+v", err, l)
	}

	labs, err := auth.ListLabs(ctx)
	if err != nil || len(labs) != 1 {
		t.Fatalf("list labs: %v %+v", err, labs)
	}
}
