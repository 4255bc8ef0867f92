package db

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"device_loan_service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupPostgresRepo starts a disposable Postgres container so the FOR UPDATE
// and advisory-lock paths run for real; SQLite never executes them.
func setupPostgresRepo(t *testing.T) *Repo {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	ctx := context.Background()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "loan",
				"POSTGRES_PASSWORD": "loan",
				"POSTGRES_DB":       "loan_test",
			},
			WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	t.Cleanup(func() {
		if terr := pg.Terminate(context.Background()); terr != nil {
			t.Logf("failed to terminate postgres container: %v", terr)
		}
	})

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, "5432")
	require.NoError(t, err)

	// the container answers on the port before init finishes, so retry the
	// open until the first ping goes through
	dsn := fmt.Sprintf("host=%s user=loan password=loan dbname=loan_test port=%s sslmode=disable",
		host, port.Port())
	var gdb *gorm.DB
	deadline := time.Now().Add(30 * time.Second)
	for {
		gdb, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.Silent),
		})
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("postgres not ready: %v", err)
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, Migrate(gdb))
	return NewRepo(gdb)
}

func TestConcurrentCreateLoanSameDevice(t *testing.T) {
	r := setupPostgresRepo(t)
	ctx := context.Background()
	u := seedUser(t, r, "budi", models.RoleUser)
	d := seedDevice(t, r, "PC-001")

	type result struct {
		loan *models.Loan
		err  error
	}
	results := make([]result, 2)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			in := loanInput(u, fmt.Sprintf("SPT/RACE/%d", i), "2025-03-10", 10, parentItem(d))
			loan, err := r.CreateLoan(ctx, in)
			results[i] = result{loan: loan, err: err}
		}(i)
	}
	close(start)
	wg.Wait()

	var won, blocked int
	for _, res := range results {
		if res.err == nil {
			won++
			continue
		}
		var unavailable *UnavailableError
		if assert.ErrorAs(t, res.err, &unavailable) {
			assert.Equal(t, "PC-001", unavailable.DeviceCode)
			blocked++
		}
	}
	assert.Equal(t, 1, won, "exactly one of the racing creations may succeed")
	assert.Equal(t, 1, blocked)
}

func TestConcurrentLoanNumbersStayUnique(t *testing.T) {
	r := setupPostgresRepo(t)
	ctx := context.Background()
	u := seedUser(t, r, "budi", models.RoleUser)

	const n = 4
	devices := make([]*models.Device, n)
	for i := range devices {
		devices[i] = seedDevice(t, r, fmt.Sprintf("CAM-%03d", i+1))
	}

	numbers := make([]string, n)
	errs := make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			loan, err := r.CreateLoan(ctx, loanInput(u, fmt.Sprintf("SPT/SEQ/%d", i), "2025-03-10", 5, parentItem(devices[i])))
			errs[i] = err
			if err == nil {
				numbers[i] = loan.LoanNumber
			}
		}(i)
	}
	close(start)
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[numbers[i]], "loan number %s issued twice", numbers[i])
		seen[numbers[i]] = true
	}
}
