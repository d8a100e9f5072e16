package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transfa/financial-service/internal/domain"
	"github.com/transfa/financial-service/internal/store"
	"github.com/transfa/financial-service/pkg/paystackclient"
	"go.uber.org/zap"
)

type fakeIssuer struct {
	mu       sync.Mutex
	calls    []paystackclient.IssueRequest
	numbers  []string
	err      error
	sequence int
}

func (f *fakeIssuer) Issue(_ context.Context, req paystackclient.IssueRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", f.err
	}
	if f.sequence < len(f.numbers) {
		n := f.numbers[f.sequence]
		f.sequence++
		return n, nil
	}
	f.sequence++
	return fmt.Sprintf("99%08d", f.sequence), nil
}

func (f *fakeIssuer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type publishedEvent struct {
	routingKey string
	body       interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{routingKey: routingKey, body: body})
	return p.err
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.events))
	for _, e := range p.events {
		keys = append(keys, e.routingKey)
	}
	return keys
}

// failingCreateRepo wraps a repository and fails every insert.
type failingCreateRepo struct {
	store.AccountRepository
	err error
}

func (r failingCreateRepo) CreateAccount(context.Context, *domain.Account) (*domain.Account, error) {
	return nil, r.err
}

func newTestService(t *testing.T, issuer AccountIssuer) (*LedgerService, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	return NewLedgerService(store.NewMemoryAccountRepository(), issuer, pub, "NGN", zap.NewNop()), pub
}

func validInput(email string) CreateAccountInput {
	return CreateAccountInput{Email: email, BVN: "123", PhoneNumber: "555", FirstName: "A", LastName: "B"}
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestLedgerWalkthrough(t *testing.T) {
	issuer := &fakeIssuer{numbers: []string{"0001234567"}}
	svc, pub := newTestService(t, issuer)
	ctx := context.Background()

	account, err := svc.CreateAccount(ctx, validInput("a@x.com"))
	require.NoError(t, err)
	assert.Equal(t, "0001234567", account.AccountNumber)
	assert.True(t, account.Balance.IsZero())
	assert.Equal(t, "NGN", account.Currency)
	assert.Equal(t, "123", account.BVN)
	assert.Equal(t, "555", account.PhoneNumber)

	account, err = svc.Deposit(ctx, "a@x.com", dec(t, "100"))
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(dec(t, "100")))

	_, err = svc.Withdraw(ctx, "a@x.com", dec(t, "150"))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	account, err = svc.GetAccount(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(dec(t, "100")), "failed withdrawal must not change balance")

	account, err = svc.Withdraw(ctx, "a@x.com", dec(t, "100"))
	require.NoError(t, err)
	assert.True(t, account.Balance.IsZero())

	assert.Equal(t, []string{
		domain.EventAccountCreated,
		domain.EventAccountCredited,
		domain.EventAccountDebited,
	}, pub.keys())
}

func TestCreateAccountPassesCustomerToIssuer(t *testing.T) {
	issuer := &fakeIssuer{}
	svc, _ := newTestService(t, issuer)

	_, err := svc.CreateAccount(context.Background(), CreateAccountInput{
		Email: "  a@x.com ", BVN: "123", PhoneNumber: "555", FirstName: "Ada", LastName: "Obi",
	})
	require.NoError(t, err)

	require.Len(t, issuer.calls, 1)
	assert.Equal(t, paystackclient.IssueRequest{Email: "a@x.com", FirstName: "Ada", LastName: "Obi", Phone: "555"}, issuer.calls[0])
}

func TestCreateAccountRejectsMissingFields(t *testing.T) {
	tests := []struct {
		name  string
		input CreateAccountInput
	}{
		{name: "email", input: CreateAccountInput{BVN: "1", PhoneNumber: "2", FirstName: "A", LastName: "B"}},
		{name: "bvn", input: CreateAccountInput{Email: "a@x.com", PhoneNumber: "2", FirstName: "A", LastName: "B"}},
		{name: "phone", input: CreateAccountInput{Email: "a@x.com", BVN: "1", FirstName: "A", LastName: "B"}},
		{name: "first name", input: CreateAccountInput{Email: "a@x.com", BVN: "1", PhoneNumber: "2", LastName: "B"}},
		{name: "last name whitespace", input: CreateAccountInput{Email: "a@x.com", BVN: "1", PhoneNumber: "2", FirstName: "A", LastName: "  "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issuer := &fakeIssuer{}
			svc, _ := newTestService(t, issuer)

			_, err := svc.CreateAccount(context.Background(), tt.input)
			require.ErrorIs(t, err, domain.ErrValidation)
			assert.Zero(t, issuer.callCount(), "issuer must not be called for invalid input")
		})
	}
}

func TestCreateAccountTwiceIsDuplicate(t *testing.T) {
	issuer := &fakeIssuer{}
	svc, _ := newTestService(t, issuer)
	ctx := context.Background()

	_, err := svc.CreateAccount(ctx, validInput("a@x.com"))
	require.NoError(t, err)

	_, err = svc.CreateAccount(ctx, validInput("a@x.com"))
	require.ErrorIs(t, err, domain.ErrDuplicateAccount)
	assert.Equal(t, 1, issuer.callCount(), "known duplicates must not reach the issuer")
}

func TestConcurrentCreateAccountYieldsOneAccount(t *testing.T) {
	issuer := &fakeIssuer{}
	svc, _ := newTestService(t, issuer)
	ctx := context.Background()

	const attempts = 10
	var (
		wg         sync.WaitGroup
		successes  atomic.Int32
		duplicates atomic.Int32
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateAccount(ctx, validInput("race@x.com"))
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, domain.ErrDuplicateAccount):
				duplicates.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, successes.Load())
	assert.EqualValues(t, attempts-1, duplicates.Load())
}

func TestCreateAccountIssuerFailureIsTerminal(t *testing.T) {
	issuer := &fakeIssuer{err: errors.New("connection reset")}
	svc, pub := newTestService(t, issuer)
	ctx := context.Background()

	_, err := svc.CreateAccount(ctx, validInput("a@x.com"))
	require.ErrorIs(t, err, domain.ErrIssuerUnavailable)
	assert.Equal(t, 1, issuer.callCount(), "issuer must not be retried")

	_, err = svc.GetAccount(ctx, "a@x.com")
	require.ErrorIs(t, err, domain.ErrNotFound, "no local fallback account may be created")
	assert.Empty(t, pub.keys())
}

func TestCreateAccountStoreFailureReportsOrphan(t *testing.T) {
	pub := &recordingPublisher{}
	repo := failingCreateRepo{
		AccountRepository: store.NewMemoryAccountRepository(),
		err:               fmt.Errorf("insert: %w", domain.ErrStore),
	}
	svc := NewLedgerService(repo, &fakeIssuer{numbers: []string{"0001234567"}}, pub, "", zap.NewNop())

	_, err := svc.CreateAccount(context.Background(), validInput("a@x.com"))
	require.ErrorIs(t, err, domain.ErrStore)

	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.EventAccountOrphaned, pub.events[0].routingKey)
	orphan, ok := pub.events[0].body.(domain.AccountOrphanedEvent)
	require.True(t, ok)
	assert.Equal(t, "0001234567", orphan.AccountNumber)
	assert.Equal(t, "a@x.com", orphan.Email)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewLedgerService(store.NewMemoryAccountRepository(), &fakeIssuer{}, pub, "NGN", zap.NewNop())
	ctx := context.Background()

	_, err := svc.CreateAccount(ctx, validInput("a@x.com"))
	require.NoError(t, err)
	_, err = svc.Deposit(ctx, "a@x.com", decimal.NewFromInt(5))
	require.NoError(t, err)
}

func TestGetAccountUnknownIsNotFound(t *testing.T) {
	svc, _ := newTestService(t, &fakeIssuer{})

	account, err := svc.GetAccount(context.Background(), "nobody@x.com")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Nil(t, account)

	_, err = svc.GetAccount(context.Background(), " ")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestMovementsRejectInvalidAmounts(t *testing.T) {
	svc, _ := newTestService(t, &fakeIssuer{})
	ctx := context.Background()
	_, err := svc.CreateAccount(ctx, validInput("a@x.com"))
	require.NoError(t, err)

	for _, amount := range []string{"0", "-1", "10.005"} {
		t.Run(amount, func(t *testing.T) {
			_, err := svc.Deposit(ctx, "a@x.com", dec(t, amount))
			require.ErrorIs(t, err, domain.ErrValidation)
			_, err = svc.Withdraw(ctx, "a@x.com", dec(t, amount))
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	account, err := svc.GetAccount(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, account.Balance.IsZero())
}

func TestMovementsOnUnknownAccount(t *testing.T) {
	svc, pub := newTestService(t, &fakeIssuer{})
	ctx := context.Background()

	_, err := svc.Deposit(ctx, "ghost@x.com", decimal.NewFromInt(1))
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Withdraw(ctx, "ghost@x.com", decimal.NewFromInt(1))
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, pub.keys())
}

func TestDepositAddsExactAmount(t *testing.T) {
	svc, _ := newTestService(t, &fakeIssuer{})
	ctx := context.Background()
	_, err := svc.CreateAccount(ctx, validInput("a@x.com"))
	require.NoError(t, err)

	before := decimal.Zero
	for _, amount := range []string{"0.01", "10.50", "999999.99", "3"} {
		account, err := svc.Deposit(ctx, "a@x.com", dec(t, amount))
		require.NoError(t, err)
		want := before.Add(dec(t, amount))
		assert.True(t, account.Balance.Equal(want), "got %s want %s", account.Balance, want)
		before = account.Balance
	}
}

func TestConcurrentDepositsAreNotLost(t *testing.T) {
	svc, _ := newTestService(t, &fakeIssuer{})
	ctx := context.Background()
	_, err := svc.CreateAccount(ctx, validInput("a@x.com"))
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Deposit(ctx, "a@x.com", dec(t, "1.25"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	account, err := svc.GetAccount(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(dec(t, "62.50")), "got %s", account.Balance)
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	svc, _ := newTestService(t, &fakeIssuer{})
	ctx := context.Background()
	_, err := svc.CreateAccount(ctx, validInput("a@x.com"))
	require.NoError(t, err)

	initial := decimal.NewFromInt(100)
	_, err = svc.Deposit(ctx, "a@x.com", initial)
	require.NoError(t, err)

	// 40 attempts of 7 sum to 280, far above the balance.
	const attempts = 40
	amount := decimal.NewFromInt(7)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		withdrawn = decimal.Zero
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Withdraw(ctx, "a@x.com", amount)
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
				return
			}
			mu.Lock()
			withdrawn = withdrawn.Add(amount)
			mu.Unlock()
		}()
	}
	wg.Wait()

	account, err := svc.GetAccount(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, account.Balance.IsNegative())
	assert.True(t, withdrawn.LessThanOrEqual(initial))
	assert.True(t, account.Balance.Equal(initial.Sub(withdrawn)), "balance %s, withdrawn %s", account.Balance, withdrawn)
	// 14 withdrawals of 7 fit into 100.
	assert.True(t, withdrawn.Equal(decimal.NewFromInt(98)))
}

func TestReadyDelegatesToStore(t *testing.T) {
	svc, _ := newTestService(t, &fakeIssuer{})
	require.NoError(t, svc.Ready(context.Background()))
}
