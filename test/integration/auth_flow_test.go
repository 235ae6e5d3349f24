// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"github.com/passgate/passgate/internal/api"
	"github.com/passgate/passgate/internal/auth"
	"github.com/passgate/passgate/internal/auth/authtest"
	authpostgres "github.com/passgate/passgate/internal/auth/postgres"
	"github.com/passgate/passgate/internal/store"
)

// testEnv holds a running API backed by a PostgreSQL container.
type testEnv struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container testcontainers.Container
	pool      *pgxpool.Pool
	verifier  *authtest.StaticVerifier
	server    *httptest.Server
}

// setupTestEnv starts PostgreSQL, migrates it, and serves the API over it.
func setupTestEnv() (*testEnv, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	env := &testEnv{ctx: ctx, cancel: cancel}

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("passgate_test"),
		postgres.WithUsername("passgate"),
		postgres.WithPassword("passgate"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	env.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		env.cleanup()
		return nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		env.cleanup()
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		env.cleanup()
		return nil, err
	}
	_ = migrator.Close()

	env.pool, err = store.OpenPool(ctx, store.PoolConfig{DSN: connStr})
	if err != nil {
		env.cleanup()
		return nil, err
	}

	hasher, err := auth.NewArgon2idHasherWithParams(auth.HasherParams{Time: 1, Memory: 64, Threads: 1})
	if err != nil {
		env.cleanup()
		return nil, err
	}
	issuer, err := auth.NewJWTIssuer(auth.TokenConfig{Secret: []byte("integration-secret"), Issuer: "passgate"})
	if err != nil {
		env.cleanup()
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(GinkgoWriter, &slog.HandlerOptions{Level: slog.LevelWarn}))
	env.verifier = authtest.NewStaticVerifier()
	service, err := auth.NewService(authpostgres.NewUserRepository(env.pool), hasher, issuer, env.verifier,
		auth.WithLogger(logger))
	if err != nil {
		env.cleanup()
		return nil, err
	}

	handler, err := api.NewHandler(service, issuer, api.WithLogger(logger))
	if err != nil {
		env.cleanup()
		return nil, err
	}
	env.server = httptest.NewServer(handler)

	return env, nil
}

// cleanup releases all test resources.
func (env *testEnv) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if env.server != nil {
		env.server.Close()
	}
	if env.pool != nil {
		env.pool.Close()
	}
	if env.container != nil {
		_ = env.container.Terminate(ctx)
	}
	env.cancel()
}

// post sends a JSON body and decodes the JSON response into out, if given.
func (env *testEnv) post(path string, body any, out any) int {
	data, err := json.Marshal(body)
	Expect(err).NotTo(HaveOccurred())

	resp, err := env.server.Client().Post(env.server.URL+path, "application/json", bytes.NewReader(data))
	Expect(err).NotTo(HaveOccurred())
	return decodeResponse(resp, out)
}

func (env *testEnv) me(token string, out any) int {
	req, err := http.NewRequestWithContext(env.ctx, http.MethodGet, env.server.URL+"/api/auth/me", nil)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := env.server.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) int {
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	if out != nil {
		Expect(json.Unmarshal(raw, out)).To(Succeed(), "body: %s", raw)
	}
	return resp.StatusCode
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

var _ = Describe("Auth API", Ordered, func() {
	var env *testEnv

	BeforeAll(func() {
		var err error
		env, err = setupTestEnv()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if env != nil {
			env.cleanup()
		}
	})

	passwordHashOf := func(email string) string {
		var hash string
		err := env.pool.QueryRow(env.ctx,
			`SELECT COALESCE(password_hash, '') FROM users WHERE LOWER(email) = LOWER($1)`, email).Scan(&hash)
		Expect(err).NotTo(HaveOccurred())
		return hash
	}

	Describe("password accounts", func() {
		It("registers, logs in, and reads the session", func() {
			var registered auth.RegisterResult
			status := env.post("/api/auth/register", credentials{Email: "Ada@Example.com", Password: "hunter22"}, &registered)
			Expect(status).To(Equal(http.StatusCreated))
			Expect(registered.Email).To(Equal("ada@example.com"))
			Expect(registered.ID).To(HaveLen(26))

			var login auth.AuthResult
			status = env.post("/api/auth/login", credentials{Email: "ADA@example.com", Password: "hunter22"}, &login)
			Expect(status).To(Equal(http.StatusOK))
			Expect(login.Token).NotTo(BeEmpty())
			Expect(login.User.ID).To(Equal(registered.ID))

			var me api.MeResponse
			Expect(env.me(login.Token, &me)).To(Equal(http.StatusOK))
			Expect(me).To(Equal(api.MeResponse{ID: registered.ID, Email: "ada@example.com"}))

			Expect(passwordHashOf("ada@example.com")).To(HavePrefix("$argon2id$"))
		})

		It("rejects a duplicate email regardless of case", func() {
			var resp api.ErrorResponse
			status := env.post("/api/auth/register", credentials{Email: "ADA@EXAMPLE.COM", Password: "another1"}, &resp)
			Expect(status).To(Equal(http.StatusConflict))
			Expect(resp.Message).To(Equal("Email already used"))
		})

		It("rejects a wrong password and an unknown email the same way", func() {
			var wrong, unknown api.ErrorResponse
			Expect(env.post("/api/auth/login", credentials{Email: "ada@example.com", Password: "nope"}, &wrong)).
				To(Equal(http.StatusUnauthorized))
			Expect(env.post("/api/auth/login", credentials{Email: "nobody@example.com", Password: "nope"}, &unknown)).
				To(Equal(http.StatusUnauthorized))
			Expect(wrong).To(Equal(unknown))
		})

		It("rejects an invalid body", func() {
			var resp api.ErrorResponse
			status := env.post("/api/auth/register", credentials{Email: "not-an-email", Password: "123"}, &resp)
			Expect(status).To(Equal(http.StatusBadRequest))
			Expect(resp.Details).NotTo(BeEmpty())
		})

		It("upgrades a legacy bcrypt hash on login", func() {
			legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-pass"), bcrypt.MinCost)
			Expect(err).NotTo(HaveOccurred())
			_, err = env.pool.Exec(env.ctx,
				`INSERT INTO users (id, email, password_hash) VALUES ($1, $2, $3)`,
				ulid.Make().String(), "legacy@example.com", string(legacy))
			Expect(err).NotTo(HaveOccurred())

			Expect(env.post("/api/auth/login", credentials{Email: "legacy@example.com", Password: "legacy-pass"}, nil)).
				To(Equal(http.StatusOK))
			Expect(passwordHashOf("legacy@example.com")).To(HavePrefix("$argon2id$"))

			Expect(env.post("/api/auth/login", credentials{Email: "legacy@example.com", Password: "legacy-pass"}, nil)).
				To(Equal(http.StatusOK))
		})
	})

	Describe("federated accounts", func() {
		googleLogin := func(token string, out any) int {
			return env.post("/api/auth/google", map[string]string{"idToken": token}, out)
		}

		It("creates a user for a new verified identity", func() {
			env.verifier.Add("grace-token", auth.Claim{
				ProviderID:    "google-grace",
				Email:         "grace@example.com",
				EmailVerified: true,
				Name:          "Grace Hopper",
				AvatarURL:     "https://example.com/grace.png",
			})

			var result auth.AuthResult
			Expect(googleLogin("grace-token", &result)).To(Equal(http.StatusOK))
			Expect(result.User.Email).To(Equal("grace@example.com"))
			Expect(result.User.Name).To(Equal("Grace Hopper"))
			Expect(result.User.AvatarURL).To(Equal("https://example.com/grace.png"))
			Expect(passwordHashOf("grace@example.com")).To(BeEmpty())

			var again auth.AuthResult
			Expect(googleLogin("grace-token", &again)).To(Equal(http.StatusOK))
			Expect(again.User.ID).To(Equal(result.User.ID))

			var resp api.ErrorResponse
			Expect(env.post("/api/auth/login", credentials{Email: "grace@example.com", Password: "anything"}, &resp)).
				To(Equal(http.StatusUnauthorized))
		})

		It("links an identity to an existing password account by email", func() {
			var registered auth.RegisterResult
			Expect(env.post("/api/auth/register", credentials{Email: "linus@example.com", Password: "penguin1"}, &registered)).
				To(Equal(http.StatusCreated))

			env.verifier.Add("linus-token", auth.Claim{
				ProviderID:    "google-linus",
				Email:         "Linus@Example.com",
				EmailVerified: true,
				Name:          "Linus",
			})

			var result auth.AuthResult
			Expect(googleLogin("linus-token", &result)).To(Equal(http.StatusOK))
			Expect(result.User.ID).To(Equal(registered.ID))
			Expect(result.User.Name).To(Equal("Linus"))

			Expect(env.post("/api/auth/login", credentials{Email: "linus@example.com", Password: "penguin1"}, nil)).
				To(Equal(http.StatusOK), "password still works after linking")
		})

		It("refuses unverified emails and unknown tokens", func() {
			env.verifier.Add("unverified-token", auth.Claim{
				ProviderID: "google-unverified",
				Email:      "mallory@example.com",
			})

			var resp api.ErrorResponse
			Expect(googleLogin("unverified-token", &resp)).To(Equal(http.StatusForbidden))
			Expect(googleLogin("forged-token", &resp)).To(Equal(http.StatusUnauthorized))
		})

		It("creates exactly one user under concurrent first logins", func() {
			env.verifier.Add("race-token", auth.Claim{
				ProviderID:    "google-race",
				Email:         "race@example.com",
				EmailVerified: true,
			})

			const workers = 8
			ids := make([]string, workers)
			statuses := make([]int, workers)

			var wg sync.WaitGroup
			for i := range workers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					var result auth.AuthResult
					statuses[i] = googleLogin("race-token", &result)
					ids[i] = result.User.ID
				}()
			}
			wg.Wait()

			for i := range workers {
				Expect(statuses[i]).To(Equal(http.StatusOK))
				Expect(ids[i]).To(Equal(ids[0]))
			}

			var count int
			Expect(env.pool.QueryRow(env.ctx,
				`SELECT COUNT(*) FROM users WHERE provider_id = 'google-race'`).Scan(&count)).To(Succeed())
			Expect(count).To(Equal(1))
		})
	})

	It("reports unknown routes as JSON 404", func() {
		resp, err := env.server.Client().Get(env.server.URL + "/api/auth/nope")
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = resp.Body.Close() }()

		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		Expect(resp.Header.Get("Content-Type")).To(HavePrefix("application/json"))
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(strings.TrimSpace(string(body))).To(Equal(`{"message":"Not found"}`))
	})
})
