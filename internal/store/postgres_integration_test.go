// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/passgate/passgate/internal/store"
)

// setupPostgresContainer starts PostgreSQL and returns its connection string.
func setupPostgresContainer() (string, func(), error) {
	ctx := context.Background()

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
		return "", nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return "", nil, err
	}

	return connStr, func() { _ = container.Terminate(ctx) }, nil
}

var _ = Describe("Users schema", func() {
	var (
		ctx     context.Context
		pool    *pgxpool.Pool
		cleanup func()
	)

	BeforeEach(func() {
		ctx = context.Background()
		connStr, stop, err := setupPostgresContainer()
		Expect(err).NotTo(HaveOccurred())
		cleanup = stop

		migrator, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Close()).To(Succeed())

		pool, err = store.OpenPool(ctx, store.PoolConfig{DSN: connStr, ConnectAttempts: 3})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		pool.Close()
		cleanup()
	})

	insert := func(id, email string, passwordHash, providerID any) error {
		_, err := pool.Exec(ctx,
			`INSERT INTO users (id, email, password_hash, provider_id) VALUES ($1, $2, $3, $4)`,
			id, email, passwordHash, providerID)
		return err
	}

	Describe("email uniqueness", func() {
		It("rejects the same email in a different case", func() {
			Expect(insert("01J00000000000000000000001", "ada@example.com", "hash", nil)).To(Succeed())
			Expect(insert("01J00000000000000000000002", "ADA@example.com", "hash", nil)).NotTo(Succeed())
		})
	})

	Describe("provider id uniqueness", func() {
		It("rejects a provider id linked twice", func() {
			Expect(insert("01J00000000000000000000001", "a@example.com", nil, "google-1")).To(Succeed())
			Expect(insert("01J00000000000000000000002", "b@example.com", nil, "google-1")).NotTo(Succeed())
		})

		It("allows many password-only users", func() {
			Expect(insert("01J00000000000000000000001", "a@example.com", "hash", nil)).To(Succeed())
			Expect(insert("01J00000000000000000000002", "b@example.com", "hash", nil)).To(Succeed())
		})
	})

	Describe("credential check", func() {
		It("rejects a user without password hash or provider id", func() {
			Expect(insert("01J00000000000000000000001", "a@example.com", nil, nil)).NotTo(Succeed())
		})
	})
})
