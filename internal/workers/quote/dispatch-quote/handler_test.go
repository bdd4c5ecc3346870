package dispatchquote

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"quote-service/internal/common/clock"
	"quote-service/internal/common/errors"
	"quote-service/internal/common/logger"
	"quote-service/internal/dedup"
	emailsend "quote-service/internal/workers/communication/email-send"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Fakes
// ==========================

type fakeSender struct {
	mu     sync.Mutex
	sent   []*emailsend.Input
	failTo map[string]bool
}

func (f *fakeSender) Execute(_ context.Context, input *emailsend.Input) (*emailsend.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[input.To] {
		return nil, errors.NewSMTPError(stderrors.New("550 mailbox unavailable"))
	}
	f.sent = append(f.sent, input)
	return &emailsend.Output{Success: true, Provider: "fake"}, nil
}

func (f *fakeSender) TestConnection(context.Context) error { return nil }

func (f *fakeSender) countTo(addr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, in := range f.sent {
		if in.To == addr {
			n++
		}
	}
	return n
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CheckAndReserve(ctx context.Context, fp string) (dedup.Status, error) {
	args := m.Called(ctx, fp)
	return args.Get(0).(dedup.Status), args.Error(1)
}
func (m *MockStore) Release(ctx context.Context, fp string) error { return m.Called(ctx, fp).Error(0) }
func (m *MockStore) NotifiedRecipients(ctx context.Context, fp string) (map[string]struct{}, error) {
	args := m.Called(ctx, fp)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]struct{}), args.Error(1)
}
func (m *MockStore) MarkNotified(ctx context.Context, fp, addr string) error {
	return m.Called(ctx, fp, addr).Error(0)
}
func (m *MockStore) MarkCompleted(ctx context.Context, fp string) error {
	return m.Called(ctx, fp).Error(0)
}
func (m *MockStore) Sweep(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockStore) Backend() string                 { return "mock" }

// ==========================
// Test Helpers
// ==========================

func createTestStore(t *testing.T) *dedup.MemoryStore {
	t.Helper()
	clk := clock.NewMockClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	return dedup.NewMemoryStore(15*time.Second, clk, logger.NewTestLogger(t))
}

func createTestConfig() *Config {
	return &Config{
		Enabled:         true,
		AdminRecipients: []string{"admin1@x.com", " Admin1@X.com ", "admin2@x.com", ""},
		Currency:        "TND",
	}
}

func createTestInput() *Input {
	return &Input{
		Fingerprint:   "fp-1",
		CustomerName:  "A",
		CustomerEmail: "a@x.com",
		Total:         30,
		Attachment:    &emailsend.Attachment{Filename: "devis-1.pdf", ContentType: "application/pdf", Content: []byte("%PDF")},
		AdminBody:     "<p>admin</p>",
		CustomerBody:  "<p>client</p>",
	}
}

// ==========================
// Dispatch Tests
// ==========================

func TestDispatcher_Execute(t *testing.T) {
	sender := &fakeSender{}
	store := createTestStore(t)
	d := NewDispatcher(createTestConfig(), store, sender, logger.NewTestLogger(t))

	out, err := d.Execute(context.Background(), createTestInput())
	require.NoError(t, err)
	assert.False(t, out.Skipped)
	assert.Equal(t, 3, out.Count(StatusSent))

	require.Len(t, sender.sent, 3)
	assert.Equal(t, "admin1@x.com", sender.sent[0].To)
	assert.Equal(t, "🔔 Nouvelle demande de devis - A (30 TND)", sender.sent[0].Subject)
	assert.Equal(t, "<p>admin</p>", sender.sent[0].Body)
	assert.Equal(t, "admin2@x.com", sender.sent[1].To)
	assert.Equal(t, "a@x.com", sender.sent[2].To)
	assert.Equal(t, "Votre devis - A (30 TND)", sender.sent[2].Subject)
	assert.Equal(t, "<p>client</p>", sender.sent[2].Body)
	for _, in := range sender.sent {
		require.Len(t, in.Attachments, 1)
		assert.Equal(t, "devis-1.pdf", in.Attachments[0].Filename)
	}

	got, _ := store.NotifiedRecipients(context.Background(), "fp-1")
	assert.Len(t, got, 3)
}

func TestDispatcher_AtMostOncePerRecipient(t *testing.T) {
	sender := &fakeSender{}
	store := createTestStore(t)
	d := NewDispatcher(createTestConfig(), store, sender, logger.NewTestLogger(t))

	for i := 0; i < 5; i++ {
		_, err := d.Execute(context.Background(), createTestInput())
		require.NoError(t, err)
	}

	assert.Equal(t, 1, sender.countTo("admin1@x.com"))
	assert.Equal(t, 1, sender.countTo("admin2@x.com"))
	assert.Equal(t, 1, sender.countTo("a@x.com"))
}

func TestDispatcher_FailureDoesNotBlockOthers(t *testing.T) {
	sender := &fakeSender{failTo: map[string]bool{"admin1@x.com": true}}
	store := createTestStore(t)
	d := NewDispatcher(createTestConfig(), store, sender, logger.NewTestLogger(t))

	out, err := d.Execute(context.Background(), createTestInput())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Count(StatusFailed))
	assert.Equal(t, 2, out.Count(StatusSent))
	assert.Equal(t, StatusFailed, out.Outcomes[0].Status)
	assert.Contains(t, out.Outcomes[0].Reason, "550")

	got, _ := store.NotifiedRecipients(context.Background(), "fp-1")
	assert.NotContains(t, got, "admin1@x.com")
	assert.Contains(t, got, "admin2@x.com")
}

func TestDispatcher_CustomerEdgeCases(t *testing.T) {
	tests := []struct {
		name       string
		email      string
		wantSent   int
		wantReason string
	}{
		{name: "no customer email", email: "", wantSent: 2},
		{name: "customer is admin", email: "ADMIN2@x.com", wantSent: 2, wantReason: "customer is an admin recipient"},
		{name: "customer distinct", email: "c@x.com", wantSent: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			d := NewDispatcher(createTestConfig(), createTestStore(t), sender, logger.NewTestLogger(t))
			in := createTestInput()
			in.CustomerEmail = tt.email

			out, err := d.Execute(context.Background(), in)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSent, out.Count(StatusSent))
			if tt.wantReason != "" {
				last := out.Outcomes[len(out.Outcomes)-1]
				assert.Equal(t, RoleCustomer, last.Role)
				assert.Equal(t, tt.wantReason, last.Reason)
			}
		})
	}
}

func TestDispatcher_NoAttachment(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(createTestConfig(), createTestStore(t), sender, logger.NewTestLogger(t))
	in := createTestInput()
	in.Attachment = nil

	_, err := d.Execute(context.Background(), in)
	require.NoError(t, err)
	for _, m := range sender.sent {
		assert.Empty(t, m.Attachments)
	}
}

func TestDispatcher_SkippedWhenNotConfigured(t *testing.T) {
	store := new(MockStore)
	cfg := createTestConfig()
	cfg.Enabled = false
	sender := &fakeSender{}
	d := NewDispatcher(cfg, store, sender, logger.NewTestLogger(t))

	out, err := d.Execute(context.Background(), createTestInput())
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.Empty(t, sender.sent)
	store.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything)
}

func TestDispatcher_StoreErrors(t *testing.T) {
	t.Run("recipient lookup failure aborts", func(t *testing.T) {
		store := new(MockStore)
		store.On("NotifiedRecipients", mock.Anything, "fp-1").Return(nil, stderrors.New("redis down"))
		sender := &fakeSender{}
		d := NewDispatcher(createTestConfig(), store, sender, logger.NewTestLogger(t))

		out, err := d.Execute(context.Background(), createTestInput())
		require.Error(t, err)
		assert.Nil(t, out)
		assert.True(t, errors.IsCode(err, errors.ErrCodeStoreFailed))
		assert.Empty(t, sender.sent)
	})

	t.Run("mark failures are logged only", func(t *testing.T) {
		store := new(MockStore)
		store.On("NotifiedRecipients", mock.Anything, "fp-1").Return(map[string]struct{}{}, nil)
		store.On("MarkNotified", mock.Anything, "fp-1", mock.Anything).Return(stderrors.New("redis down"))
		store.On("MarkCompleted", mock.Anything, "fp-1").Return(stderrors.New("redis down"))
		d := NewDispatcher(createTestConfig(), store, &fakeSender{}, logger.NewTestLogger(t))

		out, err := d.Execute(context.Background(), createTestInput())
		require.NoError(t, err)
		assert.Equal(t, 3, out.Count(StatusSent))
		store.AssertNumberOfCalls(t, "MarkNotified", 3)
		store.AssertExpectations(t)
	})
}

func TestCreateConfigFromAppConfig(t *testing.T) {
	cfg := CreateConfigFromAppConfig(nil, false)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "TND", cfg.Currency)
}

func TestSubjects(t *testing.T) {
	d := NewDispatcher(createTestConfig(), nil, nil, nil)
	assert.Equal(t, "🔔 Nouvelle demande de devis - Société X (1 234.5 TND)", d.AdminSubject("Société X", 1234.5))
	assert.Equal(t, "Votre devis - B (0 TND)", d.CustomerSubject("B", 0))
}
